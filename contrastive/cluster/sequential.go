package cluster

import "slices"

// Sequential splits the points by position: the first half is cluster 0 and the second half
// cluster 1. The centroid of each half is a copy of one representative point of it, at
// positions n/4 and n/2+n/4. It is deterministic and needs at least 2 points.
type Sequential struct{}

var _ Clusterer = Sequential{}

// Strategy implements Clusterer.
func (Sequential) Strategy() Strategy { return StrategySequential }

// Cluster implements Clusterer.
func (Sequential) Cluster(points [][]float64) (*Assignment, error) {
	if _, err := checkPoints(points); err != nil {
		return nil, err
	}
	n := len(points)
	half := n / 2
	if half == 0 {
		return &Assignment{Labels: []int{0}, Centroids: [][]float64{slices.Clone(points[0])}}, nil
	}
	labels := make([]int, n)
	for i := half; i < n; i++ {
		labels[i] = 1
	}
	return &Assignment{
		Labels: labels,
		Centroids: [][]float64{
			slices.Clone(points[n/4]),
			slices.Clone(points[half+n/4]),
		},
	}, nil
}
