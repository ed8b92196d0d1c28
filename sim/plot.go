package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var palette = []color.RGBA{
	{R: 255, B: 128, A: 255},
	{G: 255, A: 255},
	{R: 169, G: 169, B: 169, A: 255},
	{B: 255, A: 255},
	{R: 255, G: 165, A: 255},
	{R: 128, B: 255, A: 255},
}

// NewTracePlot renders the recorded variance traces as one line per state.
// labels names the traces in legend order; pass nil to use the state
// indices. It returns error if tr is nil or labels does not match the
// number of recorded states.
func NewTracePlot(tr *Trace, labels []string) (*plot.Plot, error) {
	if tr == nil {
		return nil, fmt.Errorf("Invalid trace supplied")
	}

	if labels == nil {
		labels = make([]string, len(tr.states))
		for i, s := range tr.states {
			labels[i] = fmt.Sprintf("state %d", s)
		}
	}

	if len(labels) != len(tr.states) {
		return nil, fmt.Errorf("Invalid label count: %d labels for %d states", len(labels), len(tr.states))
	}

	p := plot.New()

	p.Title.Text = "Covariance"
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "variance"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for col := range tr.states {
		pts := make(plotter.XYs, len(tr.time))
		for k := range tr.time {
			pts[k].X = tr.time[k]
			pts[k].Y = tr.data.At(k, col)
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("Failed to create line: %v", err)
		}
		line.LineStyle.Color = palette[col%len(palette)]
		line.LineStyle.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(labels[col], line)
	}

	return p, nil
}
