package contrastive

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MarginLoss is the contrastive penalty for one (positive, negative) pair of distances to a
// benchmark vector:
//
//	ReLU(margin - (softmax(1-dPos) - softmax(1-dNeg)))
//
// with the softmax taken over the two similarities. It is zero only when the positive is
// closer to the benchmark than the negative by enough to satisfy the margin, and it is never
// negative.
func MarginLoss(margin, positiveDistance, negativeDistance float64) float64 {
	pos, neg := 1-positiveDistance, 1-negativeDistance
	shift := math.Max(pos, neg)
	ePos, eNeg := math.Exp(pos-shift), math.Exp(neg-shift)
	sum := ePos + eNeg
	return math.Max(0, margin-(ePos/sum-eNeg/sum))
}

// PairwiseMarginLoss averages MarginLoss over the full cross product of negative and
// positive distances. It returns 0 if either side is empty.
func PairwiseMarginLoss(margin float64, positiveDistances, negativeDistances []float64) float64 {
	if len(positiveDistances) == 0 || len(negativeDistances) == 0 {
		return 0
	}
	var sum float64
	for _, dNeg := range negativeDistances {
		for _, dPos := range positiveDistances {
			sum += MarginLoss(margin, dPos, dNeg)
		}
	}
	return sum / float64(len(positiveDistances)*len(negativeDistances))
}

// distancesTo returns the Euclidean distance from vectors[i] to anchor, for each i in indices.
func distancesTo(vectors [][]float64, indices []int, anchor []float64) []float64 {
	distances := make([]float64, len(indices))
	for i, idx := range indices {
		distances[i] = floats.Distance(vectors[idx], anchor, 2)
	}
	return distances
}
