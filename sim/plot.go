package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	smooth "github.com/slamlab/go-smooth"
)

// NewConvergencePlot creates a plot of the recorded optimizer error over
// iterations.
// It returns error if the trace is nil or empty or the plot fails to build.
func NewConvergencePlot(trace *Trace) (*plot.Plot, error) {
	if trace == nil || len(trace.Iterations()) == 0 {
		return nil, fmt.Errorf("invalid trace supplied")
	}

	p := plot.New()
	p.Title.Text = "Convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "error"

	pts := make(plotter.XYs, len(trace.Iterations()))
	for i, it := range trace.Iterations() {
		pts[i].X = float64(i)
		pts[i].Y = it.Error
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	line.Color = color.RGBA{R: 255, B: 128, A: 255}

	p.Add(line)
	p.Legend.Add("error", line)
	p.Legend.Top = true

	return p, nil
}

// NewTrajectoryPlot creates a plot comparing true and estimated scalar pose
// values over the pose index. Keys present in only one of the value sets
// are skipped.
// It returns error if either value set is nil or the plot fails to build.
func NewTrajectoryPlot(truth, estimate *smooth.Values) (*plot.Plot, error) {
	if truth == nil || estimate == nil {
		return nil, fmt.Errorf("invalid values supplied")
	}

	p := plot.New()
	p.Title.Text = "Trajectory"
	p.X.Label.Text = "pose"
	p.Y.Label.Text = "value"

	truthScatter, err := plotter.NewScatter(makePoints(truth))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	truthScatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthScatter.Shape = draw.PyramidGlyph{}
	truthScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(truthScatter)
	p.Legend.Add("truth", truthScatter)

	estScatter, err := plotter.NewScatter(makePoints(estimate))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	estScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169}
	estScatter.Shape = draw.CrossGlyph{}
	estScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(estScatter)
	p.Legend.Add("estimate", estScatter)
	p.Legend.Top = true

	return p, nil
}

func makePoints(vals *smooth.Values) plotter.XYs {
	keys := vals.Keys()
	pts := make(plotter.XYs, 0, len(keys))
	for i, key := range keys {
		v, ok := vals.At(key)
		if !ok || v.Len() == 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v.AtVec(0)})
	}

	return pts
}
