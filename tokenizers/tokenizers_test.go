package tokenizers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/dialogsum/contrastive"
	"github.com/gomlx/dialogsum/sentinel"
	"github.com/gomlx/dialogsum/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenizerJSON = `{
  "added_tokens": [
    {"id": 0, "content": "<s>", "special": true},
    {"id": 1, "content": "<pad>", "special": true},
    {"id": 2, "content": "</s>", "special": true},
    {"id": 3, "content": "<unk>", "special": true},
    {"id": 9, "content": "<mask>", "lstrip": true, "special": true}
  ],
  "pre_tokenizer": {"type": "ByteLevel", "add_prefix_space": false, "use_regex": true},
  "decoder": {"type": "ByteLevel"},
  "model": {
    "type": "BPE",
    "unk_token": "<unk>",
    "vocab": {"<s>": 0, "<pad>": 1, "</s>": 2, "<unk>": 3, "A": 4, "B": 5, ":": 6, "Ġ": 7, "x": 8, "<mask>": 9},
    "merges": []
  }
}`

const testTokenizerConfig = `{
  "tokenizer_class": "BartTokenizer",
  "bos_token": "<s>", "eos_token": "</s>", "unk_token": "<unk>", "sep_token": "</s>",
  "pad_token": "<pad>", "cls_token": "<s>", "mask_token": {"content": "<mask>", "lstrip": true},
  "model_max_length": 1024
}`

func writeModelDir(t *testing.T, withConfig bool) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizerJSON), 0o644))
	if withConfig {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(testTokenizerConfig), 0o644))
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	tok, cfg, err := Load(writeModelDir(t, true), sentinel.DialogueTokens...)
	require.NoError(t, err)
	assert.Equal(t, "BartTokenizer", cfg.TokenizerClass)
	assert.Equal(t, []string{"<s>", "</s>", "<unk>", "<pad>", "<mask>", "<sep>", ":"}, cfg.SpecialTokens())

	sepID, found := tok.TokenToID("<sep>")
	require.True(t, found)
	assert.Equal(t, 10, sepID)
	assert.Equal(t, []int{10, 4, 6, 7, 8}, tok.Encode("<sep>A: x"))

	table, err := sentinel.FromTokenizer(tok, cfg)
	require.NoError(t, err)
	sentinels, err := table.Lookup(sentinel.LocaleEnglish)
	require.NoError(t, err)
	assert.Equal(t, contrastive.Sentinels{TurnSeparator: 10, SpeakerDelimiter: 6}, sentinels)

	bos, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 0, bos)
}

func TestLoadDirWithoutConfig(t *testing.T) {
	tok, cfg, err := Load(writeModelDir(t, false), sentinel.DialogueTokens...)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.TokenizerClass)
	eos, err := tok.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 2, eos)
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(t.TempDir())
	require.Error(t, err)

	dir := writeModelDir(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("{"), 0o644))
	_, _, err = Load(dir)
	require.Error(t, err)
}
