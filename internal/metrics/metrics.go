// Package metrics provides Prometheus metrics for the risk form service.
// It covers predictions, input validation, the loaded model and live form
// connections, all exposed via the /metrics endpoint.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	Predictions        *prometheus.CounterVec // Successful predictions by mode
	PredictionFailures prometheus.Counter     // Model or explainer failures
	ValidationErrors   *prometheus.CounterVec // Rejected field values by error kind
	PredictionLatency  prometheus.Histogram   // End-to-end prediction latency
	Probability        prometheus.Histogram   // Distribution of positive class probabilities
	ModelAge           prometheus.Gauge       // Seconds since the model artifact was written
	WSConnections      prometheus.Gauge       // Open live-normalization sockets
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of successful predictions",
		}, []string{"mode"}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed model or explainer calls",
		}),
		ValidationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "validation_errors_total",
			Help: "Total number of rejected field values",
		}, []string{"kind"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end, including explanation)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		Probability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_probability",
			Help:    "Distribution of positive class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of open live-normalization WebSocket connections",
		}),
	}
}

func (m *Metrics) PredictionsInc(mode string) { m.Predictions.WithLabelValues(mode).Inc() }

func (m *Metrics) PredictionFailuresInc() { m.PredictionFailures.Inc() }

func (m *Metrics) PredictionLatencyObserve(v float64) { m.PredictionLatency.Observe(v) }

func (m *Metrics) ProbabilityObserve(v float64) { m.Probability.Observe(v) }

// ValidationErrorInc counts one rejected field. Kind is a short error class
// such as "out_of_range" or "invalid_label".
func (m *Metrics) ValidationErrorInc(kind string) { m.ValidationErrors.WithLabelValues(kind).Inc() }

func (m *Metrics) ModelAgeSet(v float64) { m.ModelAge.Set(v) }

func (m *Metrics) WSConnectionsInc() { m.WSConnections.Inc() }

func (m *Metrics) WSConnectionsDec() { m.WSConnections.Dec() }

// TrackModelAge refreshes the model age gauge every interval until ctx ends.
func (m *Metrics) TrackModelAge(ctx context.Context, modTime time.Time, interval time.Duration) {
	m.ModelAgeSet(time.Since(modTime).Seconds())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ModelAgeSet(time.Since(modTime).Seconds())
		}
	}
}
