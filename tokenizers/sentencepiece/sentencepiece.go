// Package sentencepiece implements an api.Tokenizer based on a SentencePiece model, as used by
// the multilingual checkpoints.
package sentencepiece

import (
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/dialogsum/hub"
	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/pkg/errors"
)

// ModelFile is the name of the SentencePiece model in a repository.
const ModelFile = "tokenizer.model"

// metaspace is the SentencePiece replacement for spaces.
const metaspace = "▁"

// New creates a SentencePiece tokenizer based on the "tokenizer.model" file, which must be a
// SentencePiece Model proto.
//
// The config may be nil. If given, it resolves the special tokens the model itself doesn't
// define (mask, classification and separator).
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
	if !repo.HasFile(ModelFile) {
		return nil, errors.Errorf("%q file not found in repo %s", ModelFile, repo)
	}
	modelFile, err := repo.DownloadFile(ModelFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't download %s file", ModelFile)
	}
	return NewFromFile(config, modelFile)
}

// NewFromFile creates a SentencePiece tokenizer from a local model file.
func NewFromFile(config *api.Config, path string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", path)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
		config:    config,
	}, nil
}

// Tokenizer implements api.TokenizerWithVocab based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	config *api.Config
}

// Compile time assert that sentencepiece.Tokenizer implements api.TokenizerWithVocab interface.
var _ api.TokenizerWithVocab = &Tokenizer{}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// TokenToID returns the id of the piece encoding token, if token encodes to exactly one piece
// (a lone leading metaspace piece is ignored).
func (p *Tokenizer) TokenToID(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	return singlePiece(p.Processor.Encode(token), token)
}

// singlePiece returns the id of the only token matching piece, with or without a leading
// metaspace, ignoring pure metaspace tokens.
func singlePiece(tokens []esentencepiece.Token, piece string) (int, bool) {
	id, count := 0, 0
	for _, t := range tokens {
		if t.Text == metaspace {
			continue
		}
		count++
		if strings.TrimPrefix(t.Text, metaspace) != piece {
			return 0, false
		}
		id = t.ID
	}
	return id, count == 1
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	id := -1
	switch token {
	case api.TokUnknown:
		id = p.Info.UnknownID
	case api.TokPad:
		id = p.Info.PadID
	case api.TokBeginningOfSentence:
		id = p.Info.BeginningOfSentenceID
	case api.TokEndOfSentence:
		id = p.Info.EndOfSentenceID
	}
	// The model marks the tokens it doesn't define with -1.
	if id >= 0 {
		return id, nil
	}
	if p.config != nil {
		if content := p.config.Token(token); content != "" {
			if id, found := p.TokenToID(content); found {
				return id, nil
			}
		}
	}
	return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
}
