package cluster

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Project2D projects the points on their first 2 principal components.
//
// Points are centered first. With fewer than 2 points, or points of dimension 1, the missing
// coordinates are 0.
func Project2D(points [][]float64) ([][2]float64, error) {
	dim, err := checkPoints(points)
	if err != nil {
		return nil, err
	}
	n := len(points)
	projection := make([][2]float64, n)
	if n < 2 || dim == 0 {
		return projection, nil
	}

	x := mat.NewDense(n, dim, nil)
	for i, p := range points {
		x.SetRow(i, p)
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, errors.Errorf("principal component analysis of %d points of dimension %d failed", n, dim)
	}
	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	_, available := vectors.Dims()
	k := min(2, available)

	centered := mat.NewDense(n, dim, nil)
	for j := range dim {
		col := mat.Col(nil, j, x)
		mean := stat.Mean(col, nil)
		for i := range n {
			centered.Set(i, j, col[i]-mean)
		}
	}
	var projected mat.Dense
	projected.Mul(centered, vectors.Slice(0, dim, 0, k))
	for i := range n {
		for j := range k {
			projection[i][j] = projected.At(i, j)
		}
	}
	return projection, nil
}
