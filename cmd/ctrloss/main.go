// Package main is the entry point of the ctrloss CLI, which evaluates the speaker-aware and
// topic-aware auxiliary losses on dumped encoder activations.
//
// Usage:
//
//	ctrloss [flags] <command> [args]
//
// Commands:
//
//	eval       - Score an activations dump (token ids + encoder hidden states)
//	sentinels  - Print the special-token table of a tokenizer
//	spans      - Tokenize a dialogue dataset and report its turn structure
package main

import (
	"fmt"
	"os"

	"github.com/gomlx/dialogsum/cmd/ctrloss/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}
