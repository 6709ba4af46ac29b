// Package sentinel builds the table of special-token ids from which the turn separator and
// the speaker delimiter are looked up by locale.
//
// The table is computed once per run from the tokenizer, so the loss computation never
// touches the tokenizer again.
package sentinel

import (
	"fmt"
	"strings"

	"github.com/gomlx/dialogsum/contrastive"
	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/pkg/errors"
)

// Locale is the position of the turn separator in the ordered special tokens. It depends on
// how many special tokens the locale's tokenizer defines before the added "<sep>" and ":".
type Locale int

const (
	// LocaleKorean is used with Korean BART checkpoints.
	LocaleKorean Locale = 4
	// LocaleEnglish is used with English BART checkpoints: <s> </s> <unk> <pad> <mask> <sep> :
	LocaleEnglish Locale = 5
)

// DialogueTokens are the special tokens added to the tokenizer to structure dialogues.
var DialogueTokens = []string{"<sep>", ":"}

// Table is the ordered list of special-token ids of a tokenizer.
type Table struct {
	Tokens []string
	IDs    []int
}

// New creates a Table from parallel lists of tokens and ids.
func New(tokens []string, ids []int) (*Table, error) {
	if len(tokens) != len(ids) {
		return nil, errors.Errorf("%d special tokens but %d ids", len(tokens), len(ids))
	}
	return &Table{Tokens: tokens, IDs: ids}, nil
}

// FromTokenizer resolves the ids of the special tokens listed by cfg, in order.
// It fails if the tokenizer doesn't know one of them.
func FromTokenizer(tok api.TokenizerWithVocab, cfg *api.Config) (*Table, error) {
	if cfg == nil {
		return nil, errors.New("tokenizer configuration is required to list special tokens")
	}
	tokens := cfg.SpecialTokens()
	ids := make([]int, len(tokens))
	for i, token := range tokens {
		id, found := tok.TokenToID(token)
		if !found {
			return nil, errors.Errorf("special token #%d %q is not in the tokenizer vocabulary", i, token)
		}
		ids[i] = id
	}
	return New(tokens, ids)
}

// Len returns the number of special tokens.
func (t *Table) Len() int {
	return len(t.IDs)
}

// Lookup returns the turn separator at position locale and the speaker delimiter following it.
func (t *Table) Lookup(locale Locale) (contrastive.Sentinels, error) {
	if locale < 0 || int(locale)+1 >= len(t.IDs) {
		return contrastive.Sentinels{}, errors.Wrapf(contrastive.ErrInvalidConfig,
			"locale %d needs at least %d special tokens, the tokenizer has %d", locale, locale+2, len(t.IDs))
	}
	return contrastive.Sentinels{
		TurnSeparator:    t.IDs[locale],
		SpeakerDelimiter: t.IDs[locale+1],
	}, nil
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	parts := make([]string, len(t.IDs))
	for i, id := range t.IDs {
		token := ""
		if i < len(t.Tokens) {
			token = t.Tokens[i]
		}
		parts[i] = fmt.Sprintf("%d:%q=%d", i, token, id)
	}
	return strings.Join(parts, " ")
}
