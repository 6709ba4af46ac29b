package cluster

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// twoBlobs returns 4 points around (0, 0) followed by 4 points around (10, 10).
func twoBlobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0.5, 0}, {0, 0.5}, {0.5, 0.5},
		{10, 10}, {10.5, 10}, {10, 10.5}, {10.5, 10.5},
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  Strategy
	}{
		{"centroid", StrategyCentroid},
		{"kmeans", StrategyCentroid},
		{" Sequential ", StrategySequential},
		{"density", StrategyDensity},
		{"DBSCAN", StrategyDensity},
		{"1", StrategySequential},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseStrategy("spectral")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = ParseStrategy("7")
	require.Error(t, err)
}

func TestConfigYAML(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte("strategy: kmeans\nk: 3\nseed: 7\n"), &cfg))
	assert.Equal(t, StrategyCentroid, cfg.Strategy)
	assert.Equal(t, 3, cfg.K)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 300, cfg.MaxIter)
	require.NoError(t, cfg.Validate())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "strategy: centroid")

	require.Error(t, yaml.Unmarshal([]byte("strategy: spectral\n"), &cfg))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Strategy = StrategyCentroid
	cfg.K = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.Strategy = StrategyDensity
	cfg.Eps = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.Strategy = Strategy(9)
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, s := range []Strategy{StrategyCentroid, StrategySequential, StrategyDensity} {
		cfg := DefaultConfig()
		cfg.Strategy = s
		c, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, s, c.Strategy())
	}
}

func TestSequential(t *testing.T) {
	points := [][]float64{{0}, {1}, {2}, {3}, {4}}
	a, err := Sequential{}.Cluster(points)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, a.Labels)
	// n/4 = 1 and n/2 + n/4 = 3.
	assert.Equal(t, [][]float64{{1}, {3}}, a.Centroids)
	assert.False(t, a.Diagnostic)
	assert.Equal(t, 2, a.NumClusters())
	assert.Equal(t, []int{2, 3, 4}, a.Members(1))

	// Centroids are copies.
	a.Centroids[0][0] = 100
	assert.Equal(t, 1.0, points[1][0])

	again, err := Sequential{}.Cluster(points)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, again.Labels)
	assert.Equal(t, [][]float64{{1}, {3}}, again.Centroids)

	_, err = Sequential{}.Cluster(nil)
	require.Error(t, err)
	_, err = Sequential{}.Cluster([][]float64{{1, 2}, {3}})
	require.Error(t, err)
}

func TestKMeans(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyCentroid
	cfg.NInit = 3
	c, err := New(cfg)
	require.NoError(t, err)

	points := twoBlobs()
	a, err := c.Cluster(points)
	require.NoError(t, err)
	require.Len(t, a.Labels, len(points))
	require.Len(t, a.Centroids, 2)

	first, second := a.Labels[0], a.Labels[4]
	assert.NotEqual(t, first, second)
	for i := range 4 {
		assert.Equal(t, first, a.Labels[i], "point %d", i)
		assert.Equal(t, second, a.Labels[4+i], "point %d", 4+i)
	}
	assert.InDeltaSlice(t, []float64{0.25, 0.25}, a.Centroids[first], 1e-9)
	assert.InDeltaSlice(t, []float64{10.25, 10.25}, a.Centroids[second], 1e-9)

	// Same seed, same assignment.
	again, err := c.Cluster(points)
	require.NoError(t, err)
	assert.Equal(t, a.Labels, again.Labels)
	assert.Equal(t, a.Centroids, again.Centroids)
}

func TestKMeansFewPoints(t *testing.T) {
	km := &KMeans{K: 3, MaxIter: 10, NInit: 1, Seed: 1}
	a, err := km.Cluster([][]float64{{0, 0}, {1, 1}})
	require.NoError(t, err)
	assert.Len(t, a.Centroids, 2)
	assert.ElementsMatch(t, []int{0, 1}, a.Labels)

	// Identical points: a single non-empty cluster per centroid, no NaN.
	a, err = (&KMeans{K: 2, MaxIter: 10, NInit: 1}).Cluster([][]float64{{1, 1}, {1, 1}, {1, 1}})
	require.NoError(t, err)
	for _, centroid := range a.Centroids {
		for _, v := range centroid {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestDensity(t *testing.T) {
	points := [][]float64{
		{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5},
		{50, 50},
		{100, 100}, {101, 100}, {100, 101}, {101, 101}, {100.5, 100.5},
	}
	d := &Density{Eps: 8, MinSamples: 5}
	a, err := d.Cluster(points)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0, Noise, 1, 1, 1, 1, 1}, a.Labels)
	require.Equal(t, 2, a.NumClusters())
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, a.Centroids[0], 1e-9)
	assert.InDeltaSlice(t, []float64{100.5, 100.5}, a.Centroids[1], 1e-9)
	assert.True(t, a.Diagnostic)
	assert.Len(t, a.Projection, len(points))

	// With the reference parameters, a handful of scattered points is all noise.
	a, err = d.Cluster([][]float64{{0}, {20}, {40}})
	require.NoError(t, err)
	assert.Equal(t, []int{Noise, Noise, Noise}, a.Labels)
	assert.Zero(t, a.NumClusters())
}

func TestDensityBorderPoints(t *testing.T) {
	// Point 3 is within eps of the core point 2 only: it joins the cluster without expanding it.
	points := [][]float64{{0}, {1}, {2}, {3.5}}
	labels := dbscan(points, 1.5, 3)
	assert.Equal(t, []int{0, 0, 0, 0}, labels)
}

func TestProject2D(t *testing.T) {
	points := [][]float64{{0, 0, 1}, {1, 1, 1}, {2, 2, 1}}
	projection, err := Project2D(points)
	require.NoError(t, err)
	require.Len(t, projection, 3)
	assert.InDelta(t, math.Sqrt2, math.Abs(projection[0][0]), 1e-9)
	assert.InDelta(t, 0, projection[1][0], 1e-9)
	assert.InDelta(t, math.Sqrt2, math.Abs(projection[2][0]), 1e-9)
	for _, p := range projection {
		assert.InDelta(t, 0, p[1], 1e-9)
	}

	projection, err = Project2D([][]float64{{3, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 0}}, projection)
}

func TestWritePlot(t *testing.T) {
	points := [][]float64{
		{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5},
		{50, 50},
	}
	a, err := (&Density{Eps: 8, MinSamples: 5}).Cluster(points)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"clusters.png", filepath.Join("nested", "clusters.svg")} {
		path := filepath.Join(dir, name)
		require.NoError(t, WritePlot(path, "test clusters", a))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	require.Error(t, WritePlot(filepath.Join(dir, "none.png"), "no projection", &Assignment{Labels: []int{0}}))
}
