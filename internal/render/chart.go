package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"riskform/internal/features"
	"riskform/internal/ml"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttributionChart renders an interactive HTML bar chart of the attribution
// vector.
func AttributionChart(w io.Writer, row features.FeatureRow, res *ml.Result) error {
	contribs, err := Contributions(row, res)
	if err != nil {
		return err
	}

	names := make([]string, len(contribs))
	data := make([]opts.BarData, len(contribs))
	for i, c := range contribs {
		names[i] = c.Caption()
		fill := "#008bfb"
		if c.Attr >= 0 {
			fill = "#ff0051"
		}
		data[i] = opts.BarData{
			Name:      c.Name,
			Value:     c.Attr,
			ItemStyle: &opts.ItemStyle{Color: fill},
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Feature attributions",
			Width:      "900px",
			Height:     fmt.Sprintf("%dpx", 120+28*len(contribs)),
			AssetsHost: echartsAssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Feature attributions",
			Subtitle: fmt.Sprintf("probability=%s base=%s", FormatProbability(res.Probability), FormatBaseValue(res.BaseValue)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "contribution (model output units)", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(names).
		AddSeries("attribution", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
		)
	bar.XYReversal()

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render attribution chart: %w", err)
	}
	return nil
}
