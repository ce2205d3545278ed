package spt

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// NewMSDPlot plots the track-averaged MSD against elapsed time, with the
// fitted line when fit is non-nil
func NewMSDPlot(avg []MSDPoint, fit *DiffusionFit, frameRate float64) (*plot.Plot, error) {
	if len(avg) == 0 {
		return nil, fmt.Errorf("msd plot: %w", ErrEmptyResult)
	}
	if frameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %g", frameRate)
	}

	p := plot.New()
	p.Title.Text = "Mean squared displacement"
	p.X.Label.Text = "Time lag (s)"
	p.Y.Label.Text = "MSD"

	pts := make(plotter.XYs, 0, len(avg))
	for _, a := range avg {
		pts = append(pts, plotter.XY{X: float64(a.Lag) / frameRate, Y: a.MSD})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{0, 0, 255, 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("average", line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = color.RGBA{0, 0, 139, 255}
	p.Add(scatter)

	if fit != nil {
		slope, intercept := fit.Slope, fit.Intercept
		fn := plotter.NewFunction(func(t float64) float64 { return slope*t + intercept })
		fn.Color = color.RGBA{255, 0, 0, 255}
		fn.Width = vg.Points(1)
		fn.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(fn)
		p.Legend.Add(fmt.Sprintf("fit: %.4g t + %.4g (R² %.3f)", slope, intercept, fit.RSquared), fn)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// WriteMSDPlot renders the MSD plot as PNG
func WriteMSDPlot(w io.Writer, avg []MSDPoint, fit *DiffusionFit, frameRate float64) error {
	p, err := NewMSDPlot(avg, fit, frameRate)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering msd plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveMSDPlot writes the MSD plot to a PNG file
func SaveMSDPlot(path string, avg []MSDPoint, fit *DiffusionFit, frameRate float64) (string, error) {
	if err := writeFile(path, func(w io.Writer) error {
		return WriteMSDPlot(w, avg, fit, frameRate)
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("MSD plot saved to %s", path), nil
}
