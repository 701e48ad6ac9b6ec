package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"riskform/internal/features"
)

// Mode selects which classifier entry point a prediction uses.
type Mode string

const (
	// ModeLabel returns the classifier's hard decision.
	ModeLabel Mode = "label"
	// ModeProbability returns the positive class probability plus a
	// per-feature attribution vector.
	ModeProbability Mode = "probability"
)

// DefaultPositiveClass matches the training-time label convention.
const DefaultPositiveClass = 1

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLabel, ModeProbability:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown prediction mode %q (want %q or %q)", s, ModeLabel, ModeProbability)
	}
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Mode          Mode
	PositiveClass int
	Classifier    Classifier
	Explainer     Explainer
	Metrics       MetricsInterface
	Tracker       *AttributionTracker
}

// Service is created once at startup and shared read-only by every request.
type Service struct {
	mode          Mode
	positiveClass int
	classifier    Classifier
	explainer     Explainer
	metrics       MetricsInterface
	tracker       *AttributionTracker
}

// Result is the outcome of one prediction. In JSON, probability and
// base_value are present exactly in probability mode, zero values included.
type Result struct {
	Mode         Mode
	Label        string
	Probability  float64
	Attributions []float64
	BaseValue    float64
}

type resultJSON struct {
	Mode         Mode      `json:"mode"`
	Label        string    `json:"label,omitempty"`
	Probability  *float64  `json:"probability,omitempty"`
	Attributions []float64 `json:"attributions,omitempty"`
	BaseValue    *float64  `json:"base_value,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Mode: r.Mode, Label: r.Label, Attributions: r.Attributions}
	if r.Mode == ModeProbability {
		p, base := r.Probability, r.BaseValue
		out.Probability, out.BaseValue = &p, &base
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{Mode: in.Mode, Label: in.Label, Attributions: in.Attributions}
	if in.Probability != nil {
		r.Probability = *in.Probability
	}
	if in.BaseValue != nil {
		r.BaseValue = *in.BaseValue
	}
	return nil
}

// HasAttributions reports whether an attribution vector is attached.
func (r *Result) HasAttributions() bool {
	return len(r.Attributions) > 0
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeProbability && cfg.Explainer == nil {
		return nil, errors.New("probability mode requires an explainer")
	}
	if cfg.PositiveClass < 0 {
		return nil, fmt.Errorf("positive class index must be >= 0, got %d", cfg.PositiveClass)
	}
	return &Service{
		mode:          cfg.Mode,
		positiveClass: cfg.PositiveClass,
		classifier:    cfg.Classifier,
		explainer:     cfg.Explainer,
		metrics:       cfg.Metrics,
		tracker:       cfg.Tracker,
	}, nil
}

func (s *Service) Mode() Mode { return s.mode }

// Predict runs the configured mode on one feature row. Any backend failure is
// returned as a *PredictionError matching ErrPredictionFailed.
func (s *Service) Predict(ctx context.Context, row features.FeatureRow) (*Result, error) {
	if s == nil {
		return nil, fmt.Errorf("service is nil")
	}

	start := time.Now()
	var (
		res *Result
		err error
	)
	switch s.mode {
	case ModeLabel:
		res, err = s.predictLabel(ctx, row)
	default:
		res, err = s.predictProbability(ctx, row)
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.PredictionLatencyObserve(elapsed.Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.PredictionFailuresInc()
		}
		log.Error().Err(err).Str("mode", string(s.mode)).Dur("latency", elapsed).Msg("prediction failed")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PredictionsInc(string(s.mode))
		if s.mode == ModeProbability {
			s.metrics.ProbabilityObserve(res.Probability)
		}
	}
	if s.tracker != nil && res.HasAttributions() {
		s.tracker.Observe(row.Names(), res.Attributions)
	}

	log.Debug().
		Str("mode", string(s.mode)).
		Stringer("row", row).
		Str("label", res.Label).
		Float64("probability", res.Probability).
		Dur("latency", elapsed).
		Msg("prediction successful")

	return res, nil
}

func (s *Service) predictLabel(ctx context.Context, row features.FeatureRow) (*Result, error) {
	labels, err := s.classifier.Predict(ctx, [][]float64{row.Values()})
	if err != nil {
		return nil, &PredictionError{Op: opPredict, Err: err}
	}
	if len(labels) != 1 {
		return nil, &PredictionError{Op: opPredict, Err: fmt.Errorf("expected 1 label, got %d", len(labels))}
	}
	return &Result{Mode: ModeLabel, Label: labels[0]}, nil
}

func (s *Service) predictProbability(ctx context.Context, row features.FeatureRow) (*Result, error) {
	values := row.Values()

	probs, err := s.classifier.PredictProba(ctx, [][]float64{values})
	if err != nil {
		return nil, &PredictionError{Op: opPredictProba, Err: err}
	}
	if len(probs) != 1 {
		return nil, &PredictionError{Op: opPredictProba, Err: fmt.Errorf("expected 1 probability row, got %d", len(probs))}
	}
	if s.positiveClass >= len(probs[0]) {
		return nil, &PredictionError{Op: opPredictProba, Err: fmt.Errorf("positive class %d not in %d class probabilities", s.positiveClass, len(probs[0]))}
	}
	p := probs[0][s.positiveClass]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, &PredictionError{Op: opPredictProba, Err: fmt.Errorf("invalid probability %v", p)}
	}

	expl, err := s.explainer.Explain(ctx, [][]float64{values})
	if err != nil {
		return nil, &PredictionError{Op: opExplain, Err: err}
	}
	if len(expl.Attributions) != 1 || len(expl.Attributions[0]) != row.Len() {
		return nil, &PredictionError{Op: opExplain, Err: fmt.Errorf("attributions not aligned with %d features", row.Len())}
	}

	return &Result{
		Mode:         ModeProbability,
		Probability:  p,
		Attributions: append([]float64(nil), expl.Attributions[0]...),
		BaseValue:    expl.BaseValue,
	}, nil
}
