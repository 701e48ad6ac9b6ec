package render

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"riskform/internal/features"
	"riskform/internal/ml"
)

var (
	positiveColor = color.RGBA{R: 0xff, G: 0x00, B: 0x51, A: 255}
	negativeColor = color.RGBA{R: 0x00, G: 0x8b, B: 0xfb, A: 255}
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// AttributionPlot writes a PNG of the attribution vector to path.
func AttributionPlot(row features.FeatureRow, res *ml.Result, path string) error {
	p, err := attributionPlot(row, res)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("save attribution plot: %w", err)
	}
	return nil
}

// WriteAttributionPlot streams the PNG instead of saving it.
func WriteAttributionPlot(w io.Writer, row features.FeatureRow, res *ml.Result) error {
	p, err := attributionPlot(row, res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("encode attribution plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// attributionPlot draws a horizontal bar per feature: red pushes the
// prediction above the base value, blue pulls it below.
func attributionPlot(row features.FeatureRow, res *ml.Result) (*plot.Plot, error) {
	contribs, err := Contributions(row, res)
	if err != nil {
		return nil, err
	}

	pos := make(plotter.Values, len(contribs))
	neg := make(plotter.Values, len(contribs))
	labels := make([]string, len(contribs))
	for i, c := range contribs {
		if c.Attr >= 0 {
			pos[i] = c.Attr
		} else {
			neg[i] = c.Attr
		}
		labels[i] = c.Caption()
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Prediction %s (base value %s)", FormatProbability(res.Probability), FormatBaseValue(res.BaseValue))
	p.X.Label.Text = "contribution (model output units)"

	width := vg.Points(12)
	posBars, err := plotter.NewBarChart(pos, width)
	if err != nil {
		return nil, fmt.Errorf("positive bars: %w", err)
	}
	posBars.Horizontal = true
	posBars.Color = positiveColor
	posBars.LineStyle.Width = 0

	negBars, err := plotter.NewBarChart(neg, width)
	if err != nil {
		return nil, fmt.Errorf("negative bars: %w", err)
	}
	negBars.Horizontal = true
	negBars.Color = negativeColor
	negBars.LineStyle.Width = 0

	zero, err := plotter.NewLine(plotter.XYs{{X: 0, Y: -0.5}, {X: 0, Y: float64(len(contribs)) - 0.5}})
	if err != nil {
		return nil, fmt.Errorf("zero line: %w", err)
	}
	zero.Color = color.Gray{Y: 0x80}
	zero.Width = vg.Points(0.5)

	p.Add(posBars, negBars, zero, plotter.NewGrid())
	p.Legend.Add("raises risk", posBars)
	p.Legend.Add("lowers risk", negBars)
	p.Legend.Top = true
	p.NominalY(labels...)

	return p, nil
}
