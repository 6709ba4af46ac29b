// Package cluster assigns pooled utterance vectors to topic groups.
//
// Three strategies are available, selected by Config.Strategy:
//
//   - StrategyCentroid: k-means with k-means++ seeding.
//   - StrategySequential: first half of the utterances against the second half.
//   - StrategyDensity: DBSCAN, for diagnostics only, with a 2-D projection for plotting.
//
// Clusterers hold no state between calls: each call to Cluster fits from scratch.
package cluster

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned for unusable clustering configurations.
var ErrInvalidConfig = errors.New("invalid clustering configuration")

// Strategy enumerates the clustering strategies.
type Strategy int

const (
	// StrategyCentroid runs k-means.
	StrategyCentroid Strategy = iota
	// StrategySequential splits utterances by position.
	StrategySequential
	// StrategyDensity runs DBSCAN. It is diagnostic only.
	StrategyDensity
)

var strategyNames = []string{"centroid", "sequential", "density"}

// strategyAliases maps the algorithm names to the strategies.
var strategyAliases = map[string]Strategy{
	"kmeans": StrategyCentroid,
	"dbscan": StrategyDensity,
}

// String implements fmt.Stringer.
func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseStrategy accepts a strategy name ("centroid", "sequential", "density"), an algorithm
// name ("kmeans", "dbscan") or the strategy's integer value.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	if s, found := strategyAliases[name]; found {
		return s, nil
	}
	if v, err := strconv.Atoi(name); err == nil && v >= 0 && v < len(strategyNames) {
		return Strategy(v), nil
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown clustering strategy %q, valid values are %q",
		name, strategyNames)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, using ParseStrategy.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Config of the clustering step.
type Config struct {
	Strategy Strategy `yaml:"strategy"`

	// K is the number of clusters for StrategyCentroid.
	K int `yaml:"k"`
	// MaxIter bounds the Lloyd iterations of each k-means run.
	MaxIter int `yaml:"max_iter"`
	// Tolerance on the centroid shift, relative to the mean per-feature variance of the points.
	Tolerance float64 `yaml:"tolerance"`
	// NInit is the number of k-means runs with different seeds; the lowest inertia wins.
	NInit int `yaml:"n_init"`
	// Seed of the random source used by k-means++ seeding. The source is recreated on every
	// call, so equal inputs give equal assignments.
	Seed uint64 `yaml:"seed"`

	// Eps is the DBSCAN neighborhood radius (Euclidean).
	Eps float64 `yaml:"eps"`
	// MinSamples is the number of points, the point itself included, within Eps that make a
	// DBSCAN core point.
	MinSamples int `yaml:"min_samples"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:   StrategySequential,
		K:          2,
		MaxIter:    300,
		Tolerance:  1e-4,
		NInit:      1,
		Seed:       100,
		Eps:        8,
		MinSamples: 5,
	}
}

// Validate returns an error wrapping ErrInvalidConfig if the configuration is unusable.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyCentroid:
		if c.K < 1 {
			return errors.Wrapf(ErrInvalidConfig, "k must be >= 1, got %d", c.K)
		}
		if c.MaxIter < 1 {
			return errors.Wrapf(ErrInvalidConfig, "max_iter must be >= 1, got %d", c.MaxIter)
		}
		if c.NInit < 1 {
			return errors.Wrapf(ErrInvalidConfig, "n_init must be >= 1, got %d", c.NInit)
		}
		if math.IsNaN(c.Tolerance) || c.Tolerance < 0 {
			return errors.Wrapf(ErrInvalidConfig, "tolerance must be >= 0, got %g", c.Tolerance)
		}
	case StrategySequential:
	case StrategyDensity:
		if math.IsNaN(c.Eps) || c.Eps <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "eps must be > 0, got %g", c.Eps)
		}
		if c.MinSamples < 1 {
			return errors.Wrapf(ErrInvalidConfig, "min_samples must be >= 1, got %d", c.MinSamples)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown clustering strategy %s", c.Strategy)
	}
	return nil
}

// Noise is the label DBSCAN gives to points that belong to no cluster.
const Noise = -1

// Assignment is the result of one clustering call.
type Assignment struct {
	// Labels has one cluster label per point. Labels are 0-based; Noise marks outliers.
	Labels []int

	// Centroids has one vector per label: Centroids[c] is the reference vector of label c.
	Centroids [][]float64

	// Projection of the points on 2 principal components, for plotting. Only set by
	// diagnostic strategies.
	Projection [][2]float64

	// Diagnostic assignments are observational: they must not feed the training loss.
	Diagnostic bool
}

// NumClusters returns the number of clusters, noise excluded.
func (a *Assignment) NumClusters() int {
	return len(a.Centroids)
}

// Members returns the positions of the points with the given label, in order.
func (a *Assignment) Members(label int) []int {
	var members []int
	for i, l := range a.Labels {
		if l == label {
			members = append(members, i)
		}
	}
	return members
}

// Clusterer assigns points to clusters.
type Clusterer interface {
	Strategy() Strategy

	// Cluster fits the points from scratch. All points must share the same dimension.
	Cluster(points [][]float64) (*Assignment, error)
}

// New creates the Clusterer for cfg.Strategy.
func New(cfg Config) (Clusterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyCentroid:
		return &KMeans{K: cfg.K, MaxIter: cfg.MaxIter, Tolerance: cfg.Tolerance, NInit: cfg.NInit, Seed: cfg.Seed}, nil
	case StrategySequential:
		return Sequential{}, nil
	default:
		return &Density{Eps: cfg.Eps, MinSamples: cfg.MinSamples}, nil
	}
}

// checkPoints verifies points are non-empty and share the same dimension, and returns it.
func checkPoints(points [][]float64) (int, error) {
	if len(points) == 0 {
		return 0, errors.New("no points to cluster")
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return 0, errors.Errorf("point #%d has dimension %d, point #0 has %d", i, len(p), dim)
		}
	}
	return dim, nil
}

// sqDistance returns the squared Euclidean distance between a and b.
func sqDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
