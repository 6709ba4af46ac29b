package cluster

import "gonum.org/v1/gonum/floats"

// Density clusters points with DBSCAN over Euclidean distances.
//
// Clusters are numbered from 0 in discovery order and outliers get the Noise label. The
// assignment is diagnostic: centroids are the mean of each cluster's members and the points
// are projected on their first 2 principal components for plotting.
type Density struct {
	Eps        float64
	MinSamples int
}

var _ Clusterer = &Density{}

// Strategy implements Clusterer.
func (d *Density) Strategy() Strategy { return StrategyDensity }

// Cluster implements Clusterer.
func (d *Density) Cluster(points [][]float64) (*Assignment, error) {
	dim, err := checkPoints(points)
	if err != nil {
		return nil, err
	}
	labels := dbscan(points, d.Eps, d.MinSamples)

	numClusters := 0
	for _, l := range labels {
		numClusters = max(numClusters, l+1)
	}
	centroids := make([][]float64, numClusters)
	counts := make([]int, numClusters)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}
	for i, l := range labels {
		if l == Noise {
			continue
		}
		floats.Add(centroids[l], points[i])
		counts[l]++
	}
	for c := range centroids {
		floats.Scale(1/float64(counts[c]), centroids[c])
	}

	projection, err := Project2D(points)
	if err != nil {
		return nil, err
	}
	return &Assignment{
		Labels:     labels,
		Centroids:  centroids,
		Projection: projection,
		Diagnostic: true,
	}, nil
}

// dbscan returns a label per point: 0-based cluster ids, or Noise.
// A point is a core point if at least minSamples points, itself included, lie within eps.
func dbscan(points [][]float64, eps float64, minSamples int) []int {
	const undefined = -2
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = undefined
	}
	eps2 := eps * eps

	cluster := -1
	for i := range points {
		if labels[i] != undefined {
			continue
		}
		neighbors := rangeQuery(points, i, eps2)
		if len(neighbors) < minSamples {
			labels[i] = Noise
			continue
		}

		cluster++
		labels[i] = cluster
		seed := make([]int, 0, len(neighbors))
		for _, j := range neighbors {
			if j != i {
				seed = append(seed, j)
			}
		}
		for len(seed) > 0 {
			q := seed[0]
			seed = seed[1:]
			if labels[q] == Noise {
				// Border point: joins the cluster but does not expand it.
				labels[q] = cluster
			}
			if labels[q] != undefined {
				continue
			}
			labels[q] = cluster
			if qNeighbors := rangeQuery(points, q, eps2); len(qNeighbors) >= minSamples {
				seed = append(seed, qNeighbors...)
			}
		}
	}
	return labels
}

// rangeQuery returns the indices of all points within squared distance eps2 of points[idx],
// idx included.
func rangeQuery(points [][]float64, idx int, eps2 float64) []int {
	var result []int
	for i, p := range points {
		if sqDistance(points[idx], p) <= eps2 {
			result = append(result, i)
		}
	}
	return result
}
