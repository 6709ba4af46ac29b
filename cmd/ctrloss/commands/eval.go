package commands

import (
	"fmt"

	"github.com/gomlx/dialogsum/contrastive"
	"github.com/gomlx/dialogsum/models/safetensors"
	"github.com/gomlx/dialogsum/report"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	evalSentinels  sentinelFlags
	evalConfigFile string
	evalIDsName    string
	evalHiddenName string
	evalAll        bool
	evalPlotDir    string
	evalReport     string
	evalPrimary    float64
)

var evalCmd = &cobra.Command{
	Use:   "eval <activations.safetensors>",
	Short: "Score an activations dump",
	Long: `Compute the auxiliary loss of the sequences stored in a safetensors file holding
the token ids ([batch, length], int32 or int64) and the encoder hidden states
([batch, length, hidden], float32 or float64) of a batch.

The configuration (mode, margin, weight, locale and clustering strategy) is read
from a YAML file; missing keys take the default values.

Examples:
  ctrloss eval --tokenizer facebook/bart-large step_100.safetensors
  ctrloss eval --separator-id 50265 --delimiter-id 35 --all --report losses.parquet step_100.safetensors
  ctrloss eval --config density.yaml --plot-dir plots/ --separator-id 50265 --delimiter-id 35 step_100.safetensors`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalSentinels.register(evalCmd)
	evalCmd.Flags().StringVarP(&evalConfigFile, "config", "c", "", "YAML configuration file")
	evalCmd.Flags().StringVar(&evalIDsName, "ids", safetensors.InputIDsName, "name of the token ids tensor")
	evalCmd.Flags().StringVar(&evalHiddenName, "hidden", safetensors.HiddenStatesName, "name of the encoder hidden states tensor")
	evalCmd.Flags().BoolVar(&evalAll, "all", false, "score every sequence of the batch, not only the first one")
	evalCmd.Flags().StringVar(&evalPlotDir, "plot-dir", "", "directory for the diagnostic cluster plots")
	evalCmd.Flags().StringVar(&evalReport, "report", "", "write the per-sequence losses to this parquet file")
	evalCmd.Flags().Float64Var(&evalPrimary, "primary-loss", 0, "primary generation loss, to print the total training loss")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg := contrastive.DefaultConfig()
	if evalConfigFile != "" {
		var err error
		if cfg, err = contrastive.LoadConfig(evalConfigFile); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("all") {
		cfg.AllSequences = evalAll
	}
	if evalPlotDir != "" {
		cfg.PlotDir = evalPlotDir
	}

	sentinels, err := evalSentinels.resolve(cfg.Locale)
	if err != nil {
		return err
	}
	obj, err := contrastive.New(cfg, sentinels)
	if err != nil {
		return err
	}
	batch, err := safetensors.LoadBatch(args[0], evalIDsName, evalHiddenName)
	if err != nil {
		return err
	}
	klog.Infof("scoring %d sequence(s) of %s with mode %s", batch.Len(), args[0], cfg.Mode)
	batchLoss, err := obj.Batch(cmd.Context(), batch)
	if err != nil {
		return errors.WithMessagef(err, "while scoring %s", args[0])
	}

	records := report.FromBatch(batch, batchLoss)
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, report.Render(records))
	_, _ = fmt.Fprintf(out, "auxiliary loss: %.6f\n", batchLoss.Auxiliary)
	if cmd.Flags().Changed("primary-loss") {
		total := evalPrimary + cfg.Weight*batchLoss.Auxiliary
		_, _ = fmt.Fprintf(out, "total loss: %.6f (primary %.6f + %g x auxiliary)\n", total, evalPrimary, cfg.Weight)
	}
	if evalReport != "" {
		if err := report.WriteParquet(evalReport, records); err != nil {
			return err
		}
		klog.Infof("report written to %s", evalReport)
	}
	return nil
}
