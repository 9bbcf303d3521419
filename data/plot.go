package data

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// NewTrajectoryPlot creates a plot of the recorded trajectory of the
// named quantity against the recorded time, one line per component.
// It returns error if either of the following conditions is met:
// * no records exist for the named quantity or for time
// * the time and quantity record counts differ
// * gonum plot fails to be created
func NewTrajectoryPlot(d *Data, name string) (*plot.Plot, error) {
	traj := d.Get(name)
	times := d.Get("time")
	if traj == nil || times == nil {
		return nil, fmt.Errorf("no recorded trajectory for %s", name)
	}

	rows, cols := traj.Dims()
	trows, _ := times.Dims()
	if rows != trows {
		return nil, fmt.Errorf("record count mismatch: %d %s records, %d time records", rows, name, trows)
	}

	p := plot.New()

	p.Title.Text = name
	p.X.Label.Text = "time"
	p.Y.Label.Text = name

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for c := 0; c < cols; c++ {
		pts := make(plotter.XYs, rows)
		for i := 0; i < rows; i++ {
			pts[i].X = times.At(i, 0)
			pts[i].Y = traj.At(i, c)
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		line.LineStyle.Color = color.RGBA{R: uint8(80 * (c + 1)), B: 128, A: 255}
		line.LineStyle.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s[%d]", name, c), line)
	}

	return p, nil
}
