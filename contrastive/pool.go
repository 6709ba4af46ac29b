package contrastive

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MeanPool averages the rows of hidden (shaped [sequenceLength, hiddenSize]) over each span,
// returning one vector of hiddenSize per span.
//
// An empty span, or one reaching outside the hidden-state rows, is a configuration error:
// it is never silently pooled into a zero vector.
func MeanPool(hidden *mat.Dense, spans []Span) ([][]float64, error) {
	if hidden == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "hidden states are nil")
	}
	rows, cols := hidden.Dims()
	pooled := make([][]float64, len(spans))
	for i, span := range spans {
		if span.End <= span.Start {
			return nil, errors.Wrapf(ErrInvalidSpan, "%s span #%d is empty: [%d, %d)",
				span.Kind, i, span.Start, span.End)
		}
		if span.Start < 0 || span.End > rows {
			return nil, errors.Wrapf(ErrInvalidSpan, "%s span #%d [%d, %d) out of range for %d hidden-state rows",
				span.Kind, i, span.Start, span.End, rows)
		}
		mean := make([]float64, cols)
		for row := span.Start; row < span.End; row++ {
			floats.Add(mean, hidden.RawRowView(row))
		}
		floats.Scale(1/float64(span.Len()), mean)
		pooled[i] = mean
	}
	return pooled, nil
}

// checkDims verifies all vectors share the same dimension and returns it.
func checkDims(vectors [][]float64) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return 0, errors.Wrapf(ErrShapeMismatch, "vector #%d has dimension %d, vector #0 has %d", i, len(v), dim)
		}
	}
	return dim, nil
}
