package contrastive

import (
	"math"
	"os"

	"github.com/gomlx/dialogsum/contrastive/cluster"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of the auxiliary objective. It is fixed for a training run: build it once, pass it
// to New and never mutate it afterwards.
//
// Example YAML:
//
//	mode: 3
//	margin: 1.0
//	weight: 0.07
//	locale: 5
//	cluster:
//	  strategy: sequential
type Config struct {
	// Mode selects the active losses: 0 (none), 1 (speaker), 2 (topic), 3 (both).
	Mode Mode `yaml:"mode"`

	// Margin of the softmax margin loss.
	Margin float64 `yaml:"margin"`

	// Weight scales the auxiliary loss before it is added to the primary loss.
	Weight float64 `yaml:"weight"`

	// Locale is the index of the turn separator in the tokenizer's ordered list of special
	// token ids; the speaker delimiter is the one following it.
	Locale int `yaml:"locale"`

	// Cluster configures the topic clustering strategy.
	Cluster cluster.Config `yaml:"cluster"`

	// AllSequences makes Objective.Batch score every sequence of a batch. By default only the
	// first sequence is scored.
	AllSequences bool `yaml:"all_sequences"`

	// PlotDir, if set, receives a scatter plot for every diagnostic clustering.
	PlotDir string `yaml:"plot_dir"`
}

// DefaultConfig returns the reference configuration: both losses, margin 1.0, weight 0.07,
// English locale and the sequential topic split.
func DefaultConfig() Config {
	return Config{
		Mode:    ModeBoth,
		Margin:  1.0,
		Weight:  0.07,
		Locale:  5,
		Cluster: cluster.DefaultConfig(),
	}
}

// Validate checks the configuration, returning an error wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	if _, err := ParseMode(int(c.Mode)); err != nil {
		return err
	}
	if math.IsNaN(c.Margin) || math.IsInf(c.Margin, 0) || c.Margin < 0 {
		return errors.Wrapf(ErrInvalidConfig, "margin must be a finite non-negative number, got %g", c.Margin)
	}
	if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
		return errors.Wrapf(ErrInvalidConfig, "weight must be a finite non-negative number, got %g", c.Weight)
	}
	if c.Locale < 0 {
		return errors.Wrapf(ErrInvalidConfig, "locale must be >= 0, got %d", c.Locale)
	}
	if err := c.Cluster.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Keys missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	return ParseConfig(content)
}

// ParseConfig parses YAML content on top of DefaultConfig and validates the result.
func ParseConfig(content []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
