// Package api defines the Tokenizer API shared by the tokenizer implementations, and the
// tokenizer configuration read from a model repository.
package api

import "fmt"

// Tokenizer interface allows one convert text to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// TokenizerWithVocab extends Tokenizer with lookups of individual tokens, as needed to resolve
// the ids of the special tokens listed in a Config.
type TokenizerWithVocab interface {
	Tokenizer

	// TokenToID returns the id of a token of the vocabulary (added tokens included).
	TokenToID(token string) (id int, found bool)
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSeparator
	TokSpecialTokensCount
)

var specialTokenNames = []string{
	"beginning_of_sentence", "end_of_sentence", "unknown", "pad", "mask", "classification", "separator",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return fmt.Sprintf("SpecialToken(%d)", int(t))
	}
	return specialTokenNames[t]
}
