package ml

import (
	"context"
	"fmt"
)

// OcclusionExplainer attributes a prediction to each feature by replacing that
// column with its baseline value and measuring how much the positive class
// probability drops. The base value is the probability of the baseline row.
type OcclusionExplainer struct {
	classifier    Classifier
	baseline      []float64
	positiveClass int
}

func NewOcclusionExplainer(c Classifier, baseline []float64, positiveClass int) *OcclusionExplainer {
	return &OcclusionExplainer{
		classifier:    c,
		baseline:      append([]float64(nil), baseline...),
		positiveClass: positiveClass,
	}
}

func (e *OcclusionExplainer) Explain(ctx context.Context, rows [][]float64) (Explanation, error) {
	width := len(e.baseline)

	// One batch: the baseline, then per input row the row itself followed by
	// one copy per column with that column occluded.
	batch := make([][]float64, 0, 1+len(rows)*(width+1))
	batch = append(batch, e.baseline)
	for _, row := range rows {
		if len(row) != width {
			return Explanation{}, fmt.Errorf("expected %d features, got %d", width, len(row))
		}
		batch = append(batch, row)
		for j := 0; j < width; j++ {
			occluded := append([]float64(nil), row...)
			occluded[j] = e.baseline[j]
			batch = append(batch, occluded)
		}
	}

	probs, err := e.classifier.PredictProba(ctx, batch)
	if err != nil {
		return Explanation{}, err
	}
	if len(probs) != len(batch) {
		return Explanation{}, fmt.Errorf("expected %d probability rows, got %d", len(batch), len(probs))
	}
	score := func(i int) (float64, error) {
		if e.positiveClass >= len(probs[i]) {
			return 0, fmt.Errorf("positive class %d not in %d class probabilities", e.positiveClass, len(probs[i]))
		}
		return probs[i][e.positiveClass], nil
	}

	base, err := score(0)
	if err != nil {
		return Explanation{}, err
	}
	out := Explanation{BaseValue: base, Attributions: make([][]float64, len(rows))}
	for r := range rows {
		offset := 1 + r*(width+1)
		full, err := score(offset)
		if err != nil {
			return Explanation{}, err
		}
		attr := make([]float64, width)
		for j := 0; j < width; j++ {
			without, err := score(offset + 1 + j)
			if err != nil {
				return Explanation{}, err
			}
			attr[j] = full - without
		}
		out.Attributions[r] = attr
	}
	return out, nil
}
