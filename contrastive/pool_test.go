package contrastive

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMeanPool(t *testing.T) {
	hidden := mat.NewDense(4, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
		7, 8,
	})
	pooled, err := MeanPool(hidden, []Span{{Start: 0, End: 2}, {Start: 2, End: 3}, {Start: 0, End: 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 3}, {5, 6}, {4, 5}}, pooled)

	// One-row spans return the row unchanged, as a copy.
	pooled[1][0] = 100
	assert.Equal(t, 5.0, hidden.At(2, 0))
}

func TestMeanPoolOrderInvariance(t *testing.T) {
	hidden := mat.NewDense(5, 3, []float64{
		0.1, -2, 3,
		4.5, 0.25, -1,
		7, 8, 9,
		-3, 1, 0.5,
		2, 2, 2,
	})
	permuted := mat.DenseCopyOf(hidden)
	// Rotate rows 1..3, all inside the span [1, 4).
	permuted.SetRow(1, hidden.RawRowView(3))
	permuted.SetRow(2, hidden.RawRowView(1))
	permuted.SetRow(3, hidden.RawRowView(2))

	span := []Span{{Start: 1, End: 4}}
	want, err := MeanPool(hidden, span)
	require.NoError(t, err)
	got, err := MeanPool(permuted, span)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0], got[0], 1e-12)

	// Moving the boundaries changes the result.
	shifted, err := MeanPool(hidden, []Span{{Start: 2, End: 5}})
	require.NoError(t, err)
	assert.NotEqual(t, want[0], shifted[0])
}

func TestMeanPoolErrors(t *testing.T) {
	hidden := mat.NewDense(3, 2, nil)
	for _, span := range []Span{{Start: 1, End: 1}, {Start: 2, End: 1}} {
		_, err := MeanPool(hidden, []Span{span})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidSpan), "span %s", span)
	}
	_, err := MeanPool(hidden, []Span{{Start: 1, End: 4}})
	assert.True(t, errors.Is(err, ErrInvalidSpan))
	_, err = MeanPool(hidden, []Span{{Start: -1, End: 1}})
	assert.True(t, errors.Is(err, ErrInvalidSpan))
	_, err = MeanPool(nil, nil)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	pooled, err := MeanPool(hidden, nil)
	require.NoError(t, err)
	assert.Empty(t, pooled)
}

func TestMarginLoss(t *testing.T) {
	// Equal distances: both softmax terms are 0.5, the loss is the margin.
	assert.InDelta(t, 1.0, MarginLoss(1, 0.3, 0.3), 1e-12)

	// pos = 1-0 = 1, neg = 1-1 = 0: softmax difference is tanh(1/2).
	assert.InDelta(t, 1-math.Tanh(0.5), MarginLoss(1, 0, 1), 1e-12)

	// Positive far closer than the negative, small margin: no penalty.
	assert.Equal(t, 0.0, MarginLoss(0.5, 0, 100))

	// Never negative, even with huge or inverted distances.
	for _, d := range [][2]float64{{0, 1e6}, {1e6, 0}, {-5, 5}, {1e300, 1e300}} {
		for _, margin := range []float64{0, 0.5, 1, 2} {
			loss := MarginLoss(margin, d[0], d[1])
			assert.GreaterOrEqual(t, loss, 0.0, "margin=%g d=%v", margin, d)
			assert.False(t, math.IsNaN(loss), "margin=%g d=%v", margin, d)
		}
	}
}

func TestPairwiseMarginLoss(t *testing.T) {
	assert.Zero(t, PairwiseMarginLoss(1, nil, []float64{1}))
	assert.Zero(t, PairwiseMarginLoss(1, []float64{1}, nil))

	pos, neg := []float64{0, 0.5}, []float64{1, 2, 3}
	var want float64
	for _, n := range neg {
		for _, p := range pos {
			want += MarginLoss(1, p, n)
		}
	}
	assert.InDelta(t, want/6, PairwiseMarginLoss(1, pos, neg), 1e-12)
}
