// Package plotter renders per-frame intensity profiles and their Gaussian fit
// as PNG images.
package plotter

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/units"
)

// Default canvas size, 10x6 inches.
const (
	DefaultWidth  = 10 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

var (
	profileColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fitColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// ProfilePlotter draws one frame's profile overlaid with its fitted curve.
type ProfilePlotter struct {
	Width, Height vg.Length
	// Unit is the display unit for the duration shown in the legend.
	Unit string
}

// New returns a plotter with the default canvas and femtosecond labels.
func New() *ProfilePlotter {
	return &ProfilePlotter{Width: DefaultWidth, Height: DefaultHeight, Unit: units.FS}
}

// Build assembles the plot without rendering it.
func (pp *ProfilePlotter) Build(index int, profile []float64, res fit.Result) (*plot.Plot, error) {
	if len(profile) == 0 {
		return nil, fmt.Errorf("empty profile for frame %d", index)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame %d - Intensity Profile", index)
	p.X.Label.Text = "Pixel Position"
	p.Y.Label.Text = "Intensity"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(profile))
	for i, v := range profile {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = profileColor
	line.Width = vg.Points(1.5)

	curve := res.Curve(len(profile))
	fitPts := make(plotter.XYs, len(curve))
	for i, v := range curve {
		fitPts[i] = plotter.XY{X: float64(i), Y: v}
	}
	fitLine, err := plotter.NewLine(fitPts)
	if err != nil {
		return nil, err
	}
	fitLine.Color = fitColor
	fitLine.Width = vg.Points(1.5)
	fitLine.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}

	p.Add(line, fitLine)
	p.Legend.Add("Intensity Profile", line)
	p.Legend.Add(FitLabel(res, pp.Unit), fitLine)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// Render writes the plot for one frame as PNG to w.
func (pp *ProfilePlotter) Render(w io.Writer, index int, profile []float64, res fit.Result) error {
	p, err := pp.Build(index, profile, res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(pp.Width, pp.Height, "png")
	if err != nil {
		return fmt.Errorf("prepare png for frame %d: %w", index, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot for frame %d: %w", index, err)
	}
	return nil
}

// FitLabel is the legend text for a fitted curve.
func FitLabel(res fit.Result, unit string) string {
	return fmt.Sprintf("Gaussian Fit (FWHM: %.2fpx, Duration: %s)", res.FWHM, units.FormatDuration(res.PulseDuration, unit))
}
