package cluster

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// KMeans clusters points around K centroids (Lloyd's algorithm with k-means++ seeding).
//
// The random source is derived from Seed on every call, so the assignment is a pure function
// of the points. Label numbering follows the seeding order.
type KMeans struct {
	K         int
	MaxIter   int
	Tolerance float64
	NInit     int
	Seed      uint64
}

var _ Clusterer = &KMeans{}

// Strategy implements Clusterer.
func (km *KMeans) Strategy() Strategy { return StrategyCentroid }

// Cluster implements Clusterer. If there are fewer points than K, K is reduced to the number
// of points.
func (km *KMeans) Cluster(points [][]float64) (*Assignment, error) {
	dim, err := checkPoints(points)
	if err != nil {
		return nil, err
	}
	if km.K < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "k must be >= 1, got %d", km.K)
	}
	k := km.K
	if len(points) < k {
		klog.V(2).Infof("k-means: only %d points for k=%d, reducing k", len(points), k)
		k = len(points)
	}
	tolerance := km.Tolerance * meanVariance(points, dim)

	var best *Assignment
	bestInertia := math.Inf(1)
	for run := range max(km.NInit, 1) {
		rng := rand.New(rand.NewPCG(km.Seed, uint64(run)))
		centroids := seedPlusPlus(points, k, rng)
		labels, inertia, iterations := km.lloyd(points, centroids, tolerance)
		klog.V(3).Infof("k-means run %d: inertia %g after %d iteration(s)", run, inertia, iterations)
		if inertia < bestInertia {
			bestInertia = inertia
			best = &Assignment{Labels: labels, Centroids: centroids}
		}
	}
	return best, nil
}

// lloyd refines centroids in place and returns the final labels, the inertia (sum of squared
// distances of points to their centroid) and the number of iterations run.
func (km *KMeans) lloyd(points, centroids [][]float64, tolerance float64) (labels []int, inertia float64, iterations int) {
	k, dim := len(centroids), len(points[0])
	labels = make([]int, len(points))
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	counts := make([]int, k)

	for iterations = 1; iterations <= max(km.MaxIter, 1); iterations++ {
		assign(points, centroids, labels)

		for c := range k {
			clear(sums[c])
			counts[c] = 0
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		relocateEmpty(points, centroids, labels, sums, counts)

		var shift float64
		for c := range k {
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDistance(sums[c], centroids[c])
			copy(centroids[c], sums[c])
		}
		if shift <= tolerance {
			break
		}
	}
	inertia = assign(points, centroids, labels)
	return
}

// assign sets each label to its nearest centroid and returns the inertia.
func assign(points, centroids [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDistance(p, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// relocateEmpty gives each empty cluster the point farthest from its current centroid,
// updating labels, sums and counts.
func relocateEmpty(points, centroids [][]float64, labels []int, sums [][]float64, counts []int) {
	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] <= 1 {
				continue
			}
			if d := sqDistance(p, centroids[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			// Every cluster holds a single point: nothing to move.
			copy(sums[c], centroids[c])
			counts[c] = 1
			continue
		}
		from := labels[far]
		floats.Sub(sums[from], points[far])
		counts[from]--
		copy(sums[c], points[far])
		counts[c] = 1
		labels[far] = c
	}
}

// seedPlusPlus picks k initial centroids: the first uniformly at random, each following one
// with probability proportional to its squared distance to the nearest centroid chosen so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, slices.Clone(points[rng.IntN(len(points))]))

	closest := make([]float64, len(points))
	for i, p := range points {
		closest[i] = sqDistance(p, centroids[0])
	}
	for len(centroids) < k {
		total := floats.Sum(closest)
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range closest {
				target -= d
				if target < 0 {
					next = i
					break
				}
				next = i
			}
		} else {
			// All points coincide with a centroid already.
			next = rng.IntN(len(points))
		}
		centroid := slices.Clone(points[next])
		centroids = append(centroids, centroid)
		for i, p := range points {
			closest[i] = min(closest[i], sqDistance(p, centroid))
		}
	}
	return centroids
}

// meanVariance returns the mean over features of the population variance of the points.
func meanVariance(points [][]float64, dim int) float64 {
	mean := make([]float64, dim)
	for _, p := range points {
		floats.Add(mean, p)
	}
	floats.Scale(1/float64(len(points)), mean)
	var sum float64
	for _, p := range points {
		sum += sqDistance(p, mean)
	}
	return sum / float64(len(points)*max(dim, 1))
}
