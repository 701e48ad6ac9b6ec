// Package ml invokes the pre-trained classifier and, in probability mode, the
// explanation engine for a single feature row.
//
// Backends are interchangeable behind Classifier and Explainer: a persistent
// Python worker for the pickled CatBoost model, an ONNX Runtime session for an
// exported model, and an HTTP client for a remote inference endpoint. Models
// without a native explainer get attributions from OcclusionExplainer.
package ml

import "context"

// Classifier is the trained model's contract. Rows are in feature order.
type Classifier interface {
	// Predict returns the hard class decision for every row.
	Predict(ctx context.Context, rows [][]float64) ([]string, error)

	// PredictProba returns one probability per class for every row.
	PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error)
}

// Explainer produces per-feature attributions for single predictions.
type Explainer interface {
	Explain(ctx context.Context, rows [][]float64) (Explanation, error)
}

// Explanation holds one attribution vector per row, aligned with the row's
// columns, and the baseline the attributions are relative to.
type Explanation struct {
	Attributions [][]float64 `json:"attributions"`
	BaseValue    float64     `json:"base_value"`
}

// MetricsInterface defines metrics methods needed by the service
type MetricsInterface interface {
	PredictionsInc(mode string)
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	ProbabilityObserve(float64)
}

// bridgeRequest is the wire format shared by the Python worker and the remote
// inference endpoint.
type bridgeRequest struct {
	Op            string      `json:"op"`
	Columns       []string    `json:"columns"`
	Rows          [][]float64 `json:"rows"`
	PositiveClass int         `json:"positive_class"`
}

type bridgeResponse struct {
	Ready         bool        `json:"ready,omitempty"`
	FeatureNames  []string    `json:"feature_names,omitempty"`
	Labels        []string    `json:"labels,omitempty"`
	Probabilities [][]float64 `json:"probabilities,omitempty"`
	Attributions  [][]float64 `json:"attributions,omitempty"`
	ExpectedValue *float64    `json:"expected_value,omitempty"`
	Error         string      `json:"error,omitempty"`
}

const (
	opPredict      = "predict"
	opPredictProba = "predict_proba"
	opExplain      = "explain"
)

func (r *bridgeResponse) explanation() (Explanation, error) {
	if r.ExpectedValue == nil {
		return Explanation{}, errMissing("expected_value")
	}
	return Explanation{Attributions: r.Attributions, BaseValue: *r.ExpectedValue}, nil
}
