package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/dialogsum/dataset"
	"github.com/gomlx/dialogsum/models/safetensors"
	"github.com/gomlx/dialogsum/report"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	resetFlags(rootCmd)
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		_ = f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

const (
	testSep   = 50
	testDelim = 51
)

// writeDump writes an activations dump of 2 dialogues with 4 alternating turns each.
func writeDump(t *testing.T) string {
	var ids []int64
	var hidden []float32
	const seqLen = 22
	for b := range 2 {
		seq := []int64{0}
		for turn := range 4 {
			seq = append(seq, testSep, int64(10+turn%2), testDelim, int64(60+turn), int64(70+b))
		}
		seq = append(seq, 2)
		require.Len(t, seq, seqLen)
		ids = append(ids, seq...)
		for i, id := range seq {
			hidden = append(hidden, float32(id)/10, float32((i+b)%7))
		}
	}
	path := filepath.Join(t.TempDir(), "dump.safetensors")
	require.NoError(t, safetensors.WriteFile(path, nil,
		safetensors.Int64Entry(safetensors.InputIDsName, []int{2, seqLen}, ids),
		safetensors.Float32Entry(safetensors.HiddenStatesName, []int{2, seqLen, 2}, hidden),
	))
	return path
}

func TestEval(t *testing.T) {
	dump := writeDump(t)
	reportPath := filepath.Join(t.TempDir(), "losses.parquet")
	out, err := runCmd(t, "eval", "--separator-id", "50", "--delimiter-id", "51",
		"--all", "--report", reportPath, "--primary-loss", "2.5", dump)
	require.NoError(t, err)
	assert.Contains(t, out, "auxiliary loss:")
	assert.Contains(t, out, "total loss:")
	assert.Contains(t, out, "speaker")

	records, err := report.ReadParquet(reportPath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, 4, r.Turns)
		assert.Equal(t, 2, r.Speakers)
		assert.Equal(t, 3, r.Utterances)
	}

	// Without --all only the first sequence is scored.
	reportPath = filepath.Join(t.TempDir(), "first.parquet")
	_, err = runCmd(t, "eval", "--separator-id", "50", "--delimiter-id", "51", "--report", reportPath, dump)
	require.NoError(t, err)
	records, err = report.ReadParquet(reportPath)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEvalErrors(t *testing.T) {
	dump := writeDump(t)
	_, err := runCmd(t, "eval", dump)
	require.Error(t, err)

	_, err = runCmd(t, "eval", "--separator-id", "50", "--delimiter-id", "51", "--ids", "missing", dump)
	require.Error(t, err)

	config := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(config, []byte("mode: 7\n"), 0o644))
	_, err = runCmd(t, "eval", "--separator-id", "50", "--delimiter-id", "51", "--config", config, dump)
	require.Error(t, err)
}

func TestEvalDensityPlots(t *testing.T) {
	dump := writeDump(t)
	config := filepath.Join(t.TempDir(), "density.yaml")
	require.NoError(t, os.WriteFile(config, []byte("mode: 2\ncluster:\n  strategy: density\n  eps: 2\n  min_samples: 2\n"), 0o644))
	plotDir := filepath.Join(t.TempDir(), "plots")
	out, err := runCmd(t, "eval", "--separator-id", "50", "--delimiter-id", "51",
		"--config", config, "--plot-dir", plotDir, dump)
	require.NoError(t, err)
	assert.Contains(t, out, "topic:diagnostic")
	plots, err := filepath.Glob(filepath.Join(plotDir, "density-*.png"))
	require.NoError(t, err)
	assert.Len(t, plots, 1)
}

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
  "bos_token": "<s>", "eos_token": "</s>", "unk_token": "<unk>", "sep_token": "</s>",
  "pad_token": "<pad>", "cls_token": "<s>", "mask_token": "<mask>"
}`

func writeTokenizerDir(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizerJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer_config.json"), []byte(testTokenizerConfig), 0o644))
	return dir
}

func TestSentinels(t *testing.T) {
	out, err := runCmd(t, "sentinels", writeTokenizerDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"<sep>"`)
	assert.Contains(t, out, "turn separator")
	assert.Contains(t, out, "locale 5: turn separator 10, speaker delimiter 6")

	_, err = runCmd(t, "sentinels", "--locale", "6", writeTokenizerDir(t))
	require.Error(t, err)
}

func TestSpans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialogues.parquet")
	require.NoError(t, dataset.WriteDialogues(path, []dataset.Dialogue{
		{ID: "1", Dialogue: "A: x\r\nB: x\r\nA: x x\r\nB: x", Summary: "x"},
		{ID: "2", Dialogue: "A: x", Summary: "x"},
	}))
	out, err := runCmd(t, "spans", "--tokenizer", writeTokenizerDir(t), path)
	require.NoError(t, err)
	assert.Contains(t, out, "dialogues")
	assert.Contains(t, out, "too few turns")

	out, err = runCmd(t, "spans", "--tokenizer", writeTokenizerDir(t), "--min-turns", "2", path)
	require.NoError(t, err)
	assert.Contains(t, out, "4.00")
}
