package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotSize is the width and height of the plots written by WritePlot.
const PlotSize = 6 * vg.Inch

// WritePlot saves a scatter plot of the assignment's 2-D projection to path, with one glyph
// and color per label. The image format is taken from the file extension (.png, .svg, .pdf, ...).
// The assignment must carry a Projection.
func WritePlot(path, title string, a *Assignment) error {
	if a == nil || len(a.Projection) == 0 {
		return errors.New("assignment has no 2-D projection to plot")
	}
	if len(a.Projection) != len(a.Labels) {
		return errors.Errorf("assignment has %d projected points but %d labels", len(a.Projection), len(a.Labels))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "PC1"
	p.Y.Label.Text = "PC2"

	groups := make(map[int]plotter.XYs)
	for i, label := range a.Labels {
		groups[label] = append(groups[label], plotter.XY{X: a.Projection[i][0], Y: a.Projection[i][1]})
	}
	for label := Noise; label < a.NumClusters(); label++ {
		xys, found := groups[label]
		if !found {
			continue
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to plot cluster %d", label)
		}
		scatter.GlyphStyle.Color = plotutil.Color(label + 1)
		scatter.GlyphStyle.Shape = plotutil.Shape(label + 1)
		p.Add(scatter)
		name := fmt.Sprintf("cluster %d", label)
		if label == Noise {
			name = "noise"
		}
		p.Legend.Add(name, scatter)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create plot directory %q", dir)
		}
	}
	if err := p.Save(PlotSize, PlotSize, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", path)
	}
	return nil
}
