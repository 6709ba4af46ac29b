package api

import (
	"bytes"
	"encoding/json"
	"os"
	"slices"

	"github.com/pkg/errors"
)

// TokenValue is a special token as serialized in tokenizer_config.json: either a plain string
// or an AddedToken object ({"content": "<s>", ...}).
type TokenValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *TokenValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TokenValue(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrapf(err, "special token must be a string or an object with \"content\", got %s", data)
	}
	*v = TokenValue(obj.Content)
	return nil
}

// Config holds the fields of tokenizer_config.json (or special_tokens_map.json) used here.
type Config struct {
	TokenizerClass string `json:"tokenizer_class"`

	BosToken  TokenValue `json:"bos_token"`
	EosToken  TokenValue `json:"eos_token"`
	UnkToken  TokenValue `json:"unk_token"`
	SepToken  TokenValue `json:"sep_token"`
	PadToken  TokenValue `json:"pad_token"`
	ClsToken  TokenValue `json:"cls_token"`
	MaskToken TokenValue `json:"mask_token"`

	AdditionalSpecialTokens []TokenValue `json:"additional_special_tokens"`

	ModelMaxLength float64 `json:"model_max_length"`
	AddPrefixSpace bool    `json:"add_prefix_space"`
}

// ParseConfig parses the content of tokenizer_config.json.
func ParseConfig(content []byte) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal(content, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenizer configuration")
	}
	return config, nil
}

// LoadConfig reads and parses a tokenizer_config.json file.
func LoadConfig(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer configuration %q", path)
	}
	config, err := ParseConfig(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", path)
	}
	return config, nil
}

// Token returns the configured string of a special token, or "" if it is not configured.
func (c *Config) Token(token SpecialToken) string {
	switch token {
	case TokBeginningOfSentence:
		return string(c.BosToken)
	case TokEndOfSentence:
		return string(c.EosToken)
	case TokUnknown:
		return string(c.UnkToken)
	case TokPad:
		return string(c.PadToken)
	case TokMask:
		return string(c.MaskToken)
	case TokClassification:
		return string(c.ClsToken)
	case TokSeparator:
		return string(c.SepToken)
	default:
		return ""
	}
}

// AddSpecialTokens appends tokens to the additional special tokens, skipping those already
// listed. It returns the number of tokens added.
func (c *Config) AddSpecialTokens(tokens ...string) int {
	added := 0
	for _, token := range tokens {
		if token == "" || slices.Contains(c.AdditionalSpecialTokens, TokenValue(token)) {
			continue
		}
		c.AdditionalSpecialTokens = append(c.AdditionalSpecialTokens, TokenValue(token))
		added++
	}
	return added
}

// SpecialTokens lists all special tokens in the canonical order: bos, eos, unk, sep, pad,
// cls, mask, then the additional special tokens. Unset tokens are skipped, and a token
// appearing more than once is kept at its first position.
//
// For BART with "<sep>" and ":" added this gives: <s> </s> <unk> <pad> <mask> <sep> :
func (c *Config) SpecialTokens() []string {
	all := []TokenValue{c.BosToken, c.EosToken, c.UnkToken, c.SepToken, c.PadToken, c.ClsToken, c.MaskToken}
	all = append(all, c.AdditionalSpecialTokens...)
	tokens := make([]string, 0, len(all))
	for _, t := range all {
		if t == "" || slices.Contains(tokens, string(t)) {
			continue
		}
		tokens = append(tokens, string(t))
	}
	return tokens
}
