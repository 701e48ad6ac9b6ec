// Package render turns prediction results into text and attribution charts.
// Rendering never mutates the row or result it is given.
package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"riskform/internal/features"
	"riskform/internal/ml"
)

// FormatProbability formats a probability with four decimals.
func FormatProbability(p float64) string {
	return fmt.Sprintf("%.4f", p)
}

// FormatBaseValue formats an explainer base value. It is in the explainer's
// output units (log-odds for tree SHAP), so it is not rounded like a
// probability.
func FormatBaseValue(v float64) string {
	return fmt.Sprintf("%g", v)
}

// Summary is the headline shown for a result: the label verbatim in label
// mode, the formatted probability otherwise.
func Summary(res *ml.Result) string {
	if res == nil {
		return ""
	}
	if res.Mode == ml.ModeLabel {
		return res.Label
	}
	return FormatProbability(res.Probability)
}

// Contribution is one feature's share of a prediction.
type Contribution struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Attr  float64 `json:"attribution"`
}

// Caption labels a contribution as "name = value".
func (c Contribution) Caption() string {
	return c.Name + " = " + strconv.FormatFloat(c.Value, 'g', 6, 64)
}

// Contributions pairs each column with its attribution, ordered by
// increasing magnitude so the strongest feature ends up on top of a
// horizontal chart.
func Contributions(row features.FeatureRow, res *ml.Result) ([]Contribution, error) {
	if res == nil || !res.HasAttributions() {
		return nil, fmt.Errorf("result has no attributions")
	}
	if len(res.Attributions) != row.Len() {
		return nil, fmt.Errorf("%d attributions for %d features", len(res.Attributions), row.Len())
	}

	out := make([]Contribution, row.Len())
	for i := range out {
		name, v := row.At(i)
		out[i] = Contribution{Name: name, Value: v, Attr: res.Attributions[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Attr) < math.Abs(out[j].Attr)
	})
	return out, nil
}
