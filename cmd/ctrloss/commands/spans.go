package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/dialogsum/contrastive"
	"github.com/gomlx/dialogsum/dataset"
	"github.com/gomlx/dialogsum/sentinel"
	"github.com/gomlx/dialogsum/tokenizers"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	spansTokenizer string
	spansLocale    int
	spansMinTurns  int
	spansLimit     int
	spansMaxLength int
)

var spansCmd = &cobra.Command{
	Use:   "spans <dialogues.parquet>",
	Short: "Tokenize a dialogue dataset and report its turn structure",
	Long: `Read a SAMSum-style parquet file (columns id, dialogue and summary), mark every
turn with "<sep>", tokenize the dialogues and count the turns, speakers and
utterances recovered from the token ids, and how many dialogues are too short
for each auxiliary loss.`,
	Args: cobra.ExactArgs(1),
	RunE: runSpans,
}

func init() {
	spansCmd.Flags().StringVar(&spansTokenizer, "tokenizer", "", "tokenizer directory or HuggingFace Hub repository")
	spansCmd.Flags().IntVar(&spansLocale, "locale", int(sentinel.LocaleEnglish), "position of the turn separator in the special tokens")
	spansCmd.Flags().IntVar(&spansMinTurns, "min-turns", 0, "skip dialogues with fewer turns")
	spansCmd.Flags().IntVar(&spansLimit, "limit", 0, "only use the first dialogues, if > 0")
	spansCmd.Flags().IntVar(&spansMaxLength, "max-length", dataset.DefaultMaxLength, "maximum number of tokens per dialogue")
	_ = spansCmd.MarkFlagRequired("tokenizer")
	rootCmd.AddCommand(spansCmd)
}

// spanStats accumulates the structure of the tokenized dialogues.
type spanStats struct {
	dialogues, turns, speakers, utterances int
	tooFewTurns, singleSpeaker, tooFewUtterances, truncated int
}

func (s *spanStats) add(ids []int, sentinels contrastive.Sentinels, maxLength int) {
	spans := contrastive.ExtractSpans(ids, sentinels)
	s.dialogues++
	s.turns += len(spans.Separators)
	speakers := spans.NumSpeakers(ids)
	s.speakers += speakers
	s.utterances += len(spans.Utterances)
	if len(ids) >= maxLength {
		s.truncated++
	}
	switch {
	case spans.Degenerate():
		s.tooFewTurns++
	case speakers < 2:
		s.singleSpeaker++
	}
	if len(spans.Utterances) < contrastive.MinUtterances {
		s.tooFewUtterances++
	}
}

func (s *spanStats) render() string {
	mean := func(v int) string {
		if s.dialogues == 0 {
			return "-"
		}
		return fmt.Sprintf("%.2f", float64(v)/float64(s.dialogues))
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "value").
		Rows(
			[]string{"dialogues", fmt.Sprint(s.dialogues)},
			[]string{"turns per dialogue", mean(s.turns)},
			[]string{"speakers per dialogue", mean(s.speakers)},
			[]string{"utterances per dialogue", mean(s.utterances)},
			[]string{"truncated", fmt.Sprint(s.truncated)},
			[]string{"too few turns", fmt.Sprint(s.tooFewTurns)},
			[]string{"single speaker", fmt.Sprint(s.singleSpeaker)},
			[]string{"too few utterances", fmt.Sprint(s.tooFewUtterances)},
		).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return highlight
			}
			return plain
		}).
		Render()
}

func runSpans(cmd *cobra.Command, args []string) error {
	rows, err := dataset.ReadDialogues(args[0])
	if err != nil {
		return err
	}
	if spansMinTurns > 0 {
		rows = dataset.FilterMinTurns(rows, spansMinTurns)
	}
	if spansLimit > 0 && len(rows) > spansLimit {
		rows = rows[:spansLimit]
	}

	tok, cfg, err := tokenizers.Load(spansTokenizer, sentinel.DialogueTokens...)
	if err != nil {
		return err
	}
	tbl, err := sentinel.FromTokenizer(tok, cfg)
	if err != nil {
		return err
	}
	sentinels, err := tbl.Lookup(sentinel.Locale(spansLocale))
	if err != nil {
		return err
	}

	klog.Infof("tokenizing %d dialogue(s) from %s", len(rows), args[0])
	examples, err := dataset.Encode(cmd.Context(), tok, rows, dataset.Options{MaxLength: spansMaxLength})
	if err != nil {
		return errors.WithMessagef(err, "while tokenizing %s", args[0])
	}
	var stats spanStats
	for _, ex := range examples {
		stats.add(ex.InputIDs, sentinels, spansMaxLength)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), stats.render())
	return nil
}
