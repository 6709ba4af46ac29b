package commands

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/gomlx/dialogsum/contrastive"
	"github.com/gomlx/dialogsum/sentinel"
	"github.com/gomlx/dialogsum/tokenizers"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var rootCmd = &cobra.Command{
	Use:   "ctrloss",
	Short: "Speaker and topic contrastive losses for dialogue summarization",
	Long: `ctrloss - evaluate the speaker-aware and topic-aware auxiliary losses used to
fine-tune seq2seq summarizers on dialogues.

The losses are computed from the token ids of a dialogue, where every turn starts
with a turn separator ("<sep>") followed by the speaker name and a speaker
delimiter (":"), and from the encoder hidden states of those tokens.

Examples:
  # Print the special tokens of a tokenizer, after adding "<sep>" and ":"
  ctrloss sentinels facebook/bart-large

  # Report the turn structure of a SAMSum split
  ctrloss spans --tokenizer facebook/bart-large train.parquet

  # Score an activations dump
  ctrloss eval --tokenizer facebook/bart-large --config ctrloss.yaml step_100.safetensors`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is canceled on interrupt.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
}

// sentinelFlags select the turn separator and speaker delimiter ids: either explicitly or
// looked up in the special-token table of a tokenizer.
type sentinelFlags struct {
	tokenizer   string
	separatorID int
	delimiterID int
}

func (f *sentinelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tokenizer, "tokenizer", "", "tokenizer directory or HuggingFace Hub repository")
	cmd.Flags().IntVar(&f.separatorID, "separator-id", -1, "turn separator token id, instead of looking it up in the tokenizer")
	cmd.Flags().IntVar(&f.delimiterID, "delimiter-id", -1, "speaker delimiter token id, instead of looking it up in the tokenizer")
}

// resolve returns the sentinels, looking them up at the locale position if not given
// explicitly.
func (f *sentinelFlags) resolve(locale int) (contrastive.Sentinels, error) {
	if f.separatorID >= 0 && f.delimiterID >= 0 {
		return contrastive.Sentinels{TurnSeparator: f.separatorID, SpeakerDelimiter: f.delimiterID}, nil
	}
	if f.tokenizer == "" {
		return contrastive.Sentinels{}, errors.New("either --tokenizer or both --separator-id and --delimiter-id are required")
	}
	tok, cfg, err := tokenizers.Load(f.tokenizer, sentinel.DialogueTokens...)
	if err != nil {
		return contrastive.Sentinels{}, err
	}
	table, err := sentinel.FromTokenizer(tok, cfg)
	if err != nil {
		return contrastive.Sentinels{}, err
	}
	sentinels, err := table.Lookup(sentinel.Locale(locale))
	if err != nil {
		return contrastive.Sentinels{}, errors.WithMessagef(err, "special tokens of %s: %s", f.tokenizer, table)
	}
	klog.V(1).Infof("sentinels of %s at locale %d: %+v", f.tokenizer, locale, sentinels)
	return sentinels, nil
}
