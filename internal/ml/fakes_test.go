package ml

import (
	"context"
	"sync"
)

// fakeClassifier answers from fixed values and counts calls.
type fakeClassifier struct {
	mu          sync.Mutex
	label       string
	proba       func(row []float64) []float64
	attrs       []float64
	baseValue   float64
	err         error
	explainErr  error
	calls       int
	explainRows [][]float64
}

func (f *fakeClassifier) Predict(_ context.Context, rows [][]float64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, len(rows))
	for i := range rows {
		out[i] = f.label
	}
	return out, nil
}

func (f *fakeClassifier) PredictProba(_ context.Context, rows [][]float64) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = f.proba(row)
	}
	return out, nil
}

func (f *fakeClassifier) Explain(_ context.Context, rows [][]float64) (Explanation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explainRows = append(f.explainRows, rows...)
	if f.explainErr != nil {
		return Explanation{}, f.explainErr
	}
	out := Explanation{BaseValue: f.baseValue}
	for range rows {
		out.Attributions = append(out.Attributions, append([]float64(nil), f.attrs...))
	}
	return out, nil
}

func constProba(p float64) func([]float64) []float64 {
	return func([]float64) []float64 { return []float64{1 - p, p} }
}
