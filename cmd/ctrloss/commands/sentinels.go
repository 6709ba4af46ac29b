package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/dialogsum/sentinel"
	"github.com/gomlx/dialogsum/tokenizers"
	"github.com/spf13/cobra"
)

var sentinelsLocale int

var sentinelsCmd = &cobra.Command{
	Use:   "sentinels <tokenizer>",
	Short: "Print the special-token table of a tokenizer",
	Long: `Load a tokenizer (a local directory or a HuggingFace Hub repository), add the
dialogue tokens "<sep>" and ":" and print its ordered special tokens with their ids.

The turn separator and the speaker delimiter are the tokens at positions locale
and locale+1 of this table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, cfg, err := tokenizers.Load(args[0], sentinel.DialogueTokens...)
		if err != nil {
			return err
		}
		tbl, err := sentinel.FromTokenizer(tok, cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, renderSentinels(tbl, sentinelsLocale))
		sentinels, err := tbl.Lookup(sentinel.Locale(sentinelsLocale))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "locale %d: turn separator %d, speaker delimiter %d\n",
			sentinelsLocale, sentinels.TurnSeparator, sentinels.SpeakerDelimiter)
		return nil
	},
}

func init() {
	sentinelsCmd.Flags().IntVar(&sentinelsLocale, "locale", int(sentinel.LocaleEnglish), "position of the turn separator in the table")
	rootCmd.AddCommand(sentinelsCmd)
}

var (
	highlight = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")).Padding(0, 1)
	plain     = lipgloss.NewStyle().Padding(0, 1)
)

// renderSentinels formats the table, highlighting the rows selected by locale.
func renderSentinels(tbl *sentinel.Table, locale int) string {
	rows := make([][]string, tbl.Len())
	for i := range rows {
		role := ""
		switch i {
		case locale:
			role = "turn separator"
		case locale + 1:
			role = "speaker delimiter"
		}
		rows[i] = []string{fmt.Sprint(i), fmt.Sprintf("%q", tbl.Tokens[i]), fmt.Sprint(tbl.IDs[i]), role}
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "token", "id", "role").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow || row == locale || row == locale+1 {
				return highlight
			}
			return plain
		}).
		Render()
}
