package hftokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test tokenizer.json content for a byte-level BPE model (BART-style), with merges in both
// the string and the pair forms.
var testBPETokenizerJSON = []byte(`{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "<s>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": true, "special": true},
    {"id": 1, "content": "<pad>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": true, "special": true},
    {"id": 2, "content": "</s>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": true, "special": true},
    {"id": 3, "content": "<unk>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": true, "special": true},
    {"id": 14, "content": "<mask>", "single_word": false, "lstrip": true, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {"type": "ByteLevel", "add_prefix_space": false, "trim_offsets": true, "use_regex": true},
  "post_processor": {"type": "RobertaProcessing", "sep": ["</s>", 2], "cls": ["<s>", 0], "trim_offsets": true, "add_prefix_space": false},
  "decoder": {"type": "ByteLevel", "add_prefix_space": true, "trim_offsets": true, "use_regex": true},
  "model": {
    "type": "BPE",
    "dropout": null,
    "unk_token": "<unk>",
    "continuing_subword_prefix": "",
    "end_of_word_suffix": "",
    "fuse_unk": false,
    "vocab": {
      "<s>": 0, "<pad>": 1, "</s>": 2, "<unk>": 3,
      "A": 4, "n": 5, "An": 6, "Ann": 7, ":": 8, "Ġ": 9, "h": 10, "i": 11, "Ġh": 12, "Ġhi": 13,
      "<mask>": 14, "a": 15
    },
    "merges": ["A n", "An n", ["Ġ", "h"], "Ġh i"]
  }
}`)

var testBARTConfig = &api.Config{
	BosToken:  "<s>",
	EosToken:  "</s>",
	UnkToken:  "<unk>",
	SepToken:  "</s>",
	PadToken:  "<pad>",
	ClsToken:  "<s>",
	MaskToken: "<mask>",
}

func newTestTokenizer(t *testing.T, config *api.Config) *Tokenizer {
	tok, err := NewFromContent(config, testBPETokenizerJSON)
	require.NoError(t, err)
	return tok
}

func TestEncode(t *testing.T) {
	tok := newTestTokenizer(t, nil)
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{"whole words", "Ann: hi", []int{7, 8, 13}},
		{"merges", "Annn", []int{7, 5}},
		{"unknown symbol", "z", []int{3}},
		{"no merge", " a", []int{9, 15}},
		{"added tokens", "<s>An</s>", []int{0, 6, 2}},
		{"lstrip", "Ann <mask>", []int{7, 14}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Encode(tt.input))
		})
	}
}

func TestDecode(t *testing.T) {
	tok := newTestTokenizer(t, nil)
	assert.Equal(t, "<s>Ann: hi</s>", tok.Decode([]int{0, 7, 8, 13, 2}))
	assert.Equal(t, "An a", tok.Decode([]int{6, 9, 15, 1000}))
	assert.Equal(t, "Ann: hi", tok.Decode(tok.Encode("Ann: hi")))
}

func TestAddSpecialTokens(t *testing.T) {
	config := *testBARTConfig
	tok := newTestTokenizer(t, &config)
	vocabSize := tok.VocabSize()

	// ":" is already in the vocabulary and keeps its id; "<sep>" gets a new one.
	assert.Equal(t, 1, tok.AddSpecialTokens("<sep>", ":"))
	assert.Equal(t, 0, tok.AddSpecialTokens("<sep>"))
	assert.Equal(t, vocabSize+1, tok.VocabSize())

	sepID, found := tok.TokenToID("<sep>")
	require.True(t, found)
	assert.Equal(t, 16, sepID)
	colonID, found := tok.TokenToID(":")
	require.True(t, found)
	assert.Equal(t, 8, colonID)

	assert.Equal(t, []int{16, 7, 8, 13, 16, 6, 8, 9, 15}, tok.Encode("<sep>Ann: hi<sep>An: a"))
	assert.Equal(t, "<sep>Ann: hi", tok.Decode([]int{16, 7, 8, 13}))

	// The configuration lists the new special tokens too.
	assert.Equal(t, []string{"<s>", "</s>", "<unk>", "<pad>", "<mask>", "<sep>", ":"}, config.SpecialTokens())

	added := tok.AddedTokensList()
	require.Len(t, added, 7)
	assert.Equal(t, 0, added[0].ID)
	assert.Equal(t, "<sep>", added[6].Content)
}

func TestSpecialTokenID(t *testing.T) {
	for _, config := range []*api.Config{nil, testBARTConfig} {
		tok := newTestTokenizer(t, config)
		tests := []struct {
			token   api.SpecialToken
			want    int
			wantErr bool
		}{
			{api.TokBeginningOfSentence, 0, false},
			{api.TokEndOfSentence, 2, false},
			{api.TokSeparator, 2, false},
			{api.TokClassification, 0, false},
			{api.TokPad, 1, false},
			{api.TokUnknown, 3, false},
			{api.TokMask, 14, false},
			{api.TokSpecialTokensCount, 0, true},
		}
		for _, tt := range tests {
			t.Run(tt.token.String(), func(t *testing.T) {
				got, err := tok.SpecialTokenID(tt.token)
				if tt.wantErr {
					require.Error(t, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestTokenLookups(t *testing.T) {
	tok := newTestTokenizer(t, nil)
	id, found := tok.TokenToID("Ġhi")
	assert.True(t, found)
	assert.Equal(t, 13, id)
	_, found = tok.TokenToID("missing")
	assert.False(t, found)

	token, found := tok.IDToToken(7)
	assert.True(t, found)
	assert.Equal(t, "Ann", token)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), TokenizerFile)
	require.NoError(t, os.WriteFile(path, testBPETokenizerJSON, 0o644))
	tok, err := NewFromFile(nil, path)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, tok.Encode("Ann"))

	_, err = NewFromFile(nil, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestNewFromContentErrors(t *testing.T) {
	_, err := NewFromContent(nil, []byte(`{"model": {"type": "WordPiece", "vocab": {}}}`))
	require.Error(t, err)
	_, err = NewFromContent(nil, []byte(`{"model": {"type": "BPE", "vocab": {}, "merges": ["single"]}}`))
	require.Error(t, err)
	_, err = NewFromContent(nil, []byte(`{"model": {"type": "BPE", "vocab": {}, "merges": [["a", "b", "c"]]}}`))
	require.Error(t, err)
}

func TestGPT2Split(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Hello world", []string{"Hello", " world"}},
		{"I'm  fine\n", []string{"I", "'m", " ", " fine", "\n"}},
		{"abc123", []string{"abc", "123"}},
		{"x!! y", []string{"x", "!!", " y"}},
		{"a  ", []string{"a", "  "}},
		{"\nb", []string{"\n", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, gpt2Split(tt.input))
		})
	}
}

func TestByteLevelRoundTrip(t *testing.T) {
	for _, s := range []string{"hello", " spaced out ", "naïve café", "tab\tand\nnewline", "한국어"} {
		encoded := byteLevelEncode(s)
		assert.NotContains(t, encoded, " ")
		assert.Equal(t, s, byteLevelDecode(encoded))
	}
	assert.Equal(t, "Ġ", byteLevelEncode(" "))
}
