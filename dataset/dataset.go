// Package dataset reads dialogue summarization datasets (SAMSum-style parquet files with
// columns id, dialogue and summary), marks the turn boundaries and tokenizes them.
package dataset

import (
	"context"
	"runtime"
	"strings"

	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const (
	// TurnSeparator is inserted before every turn of a dialogue.
	TurnSeparator = "<sep>"

	// LineBreak separates the turns in the raw dialogues.
	LineBreak = "\r\n"

	// DefaultMaxLength of the encoded dialogues, special tokens included.
	DefaultMaxLength = 1024

	// DefaultMaxTargetLength of the encoded summaries, special tokens included.
	DefaultMaxTargetLength = 128
)

// Dialogue is one row of the dataset.
type Dialogue struct {
	ID       string `parquet:"id"`
	Dialogue string `parquet:"dialogue"`
	Summary  string `parquet:"summary"`
}

// ReadDialogues reads all rows of a parquet file.
func ReadDialogues(path string) ([]Dialogue, error) {
	rows, err := parquet.ReadFile[Dialogue](path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dialogues from %s", path)
	}
	klog.V(1).Infof("dataset: read %d dialogues from %s", len(rows), path)
	return rows, nil
}

// WriteDialogues writes the rows to a parquet file.
func WriteDialogues(path string, rows []Dialogue) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "failed to write dialogues to %s", path)
	}
	return nil
}

// Preprocess prefixes every turn of the dialogue with TurnSeparator:
//
//	"A: hi\r\nB: hello" -> "<sep>A: hi<sep>B: hello"
func Preprocess(dialogue string) string {
	return TurnSeparator + strings.ReplaceAll(dialogue, LineBreak, TurnSeparator)
}

// Turns counts the non-empty turns of a raw dialogue.
func Turns(dialogue string) int {
	var n int
	for turn := range strings.SplitSeq(dialogue, LineBreak) {
		if strings.TrimSpace(turn) != "" {
			n++
		}
	}
	return n
}

// FilterMinTurns returns the dialogues with at least minTurns turns.
func FilterMinTurns(rows []Dialogue, minTurns int) []Dialogue {
	filtered := make([]Dialogue, 0, len(rows))
	for _, row := range rows {
		if Turns(row.Dialogue) >= minTurns {
			filtered = append(filtered, row)
		}
	}
	klog.V(2).Infof("dataset: %d of %d dialogues have at least %d turns", len(filtered), len(rows), minTurns)
	return filtered
}

// Example is a tokenized dialogue.
type Example struct {
	ID       string
	InputIDs []int
	Labels   []int
}

// Options of Encode. Zero values take the defaults.
type Options struct {
	MaxLength       int
	MaxTargetLength int

	// Parallelism is the number of dialogues tokenized concurrently, runtime.NumCPU() by default.
	Parallelism int
}

// Encode preprocesses and tokenizes the dialogues and their summaries. The order of the
// rows is preserved.
func Encode(ctx context.Context, tok api.Tokenizer, rows []Dialogue, opts Options) ([]Example, error) {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxTargetLength <= 0 {
		opts.MaxTargetLength = DefaultMaxTargetLength
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	examples := make([]Example, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, row := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			examples[i] = Example{
				ID:       row.ID,
				InputIDs: EncodeText(tok, Preprocess(row.Dialogue), opts.MaxLength),
				Labels:   EncodeText(tok, row.Summary, opts.MaxTargetLength),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return examples, nil
}

// EncodeText tokenizes text, wrapped with the tokenizer's beginning and end of sentence
// tokens when it has them, and truncated to maxLen tokens (the end of sentence token is kept).
func EncodeText(tok api.Tokenizer, text string, maxLen int) []int {
	ids := tok.Encode(text)
	var prefix, suffix []int
	if id, err := tok.SpecialTokenID(api.TokBeginningOfSentence); err == nil {
		prefix = []int{id}
	}
	if id, err := tok.SpecialTokenID(api.TokEndOfSentence); err == nil {
		suffix = []int{id}
	}
	if room := maxLen - len(prefix) - len(suffix); room >= 0 && len(ids) > room {
		ids = ids[:room]
	}
	encoded := make([]int, 0, len(prefix)+len(ids)+len(suffix))
	encoded = append(encoded, prefix...)
	encoded = append(encoded, ids...)
	return append(encoded, suffix...)
}
