package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPredictionCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.PredictionsInc("label")
	m.PredictionsInc("label")
	m.PredictionsInc("probability")
	m.PredictionFailuresInc()

	if v := testutil.ToFloat64(m.Predictions.WithLabelValues("label")); v != 2 {
		t.Errorf("Expected 2 label predictions, got %f", v)
	}
	if v := testutil.ToFloat64(m.Predictions.WithLabelValues("probability")); v != 1 {
		t.Errorf("Expected 1 probability prediction, got %f", v)
	}
	if v := testutil.ToFloat64(m.PredictionFailures); v != 1 {
		t.Errorf("Expected 1 failure, got %f", v)
	}
}

func TestValidationErrors(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ValidationErrorInc("out_of_range")
	m.ValidationErrorInc("invalid_label")
	m.ValidationErrorInc("out_of_range")

	if v := testutil.ToFloat64(m.ValidationErrors.WithLabelValues("out_of_range")); v != 2 {
		t.Errorf("Expected 2 out_of_range errors, got %f", v)
	}
	if n := testutil.CollectAndCount(m.ValidationErrors); n != 2 {
		t.Errorf("Expected 2 label combinations, got %d", n)
	}
}

func TestHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	for _, v := range []float64{0.01, 0.2, 1.5} {
		m.PredictionLatencyObserve(v)
	}
	m.ProbabilityObserve(0.75)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	counts := map[string]uint64{}
	for _, mf := range families {
		for _, metric := range mf.Metric {
			if h := metric.GetHistogram(); h != nil {
				counts[mf.GetName()] = h.GetSampleCount()
			}
		}
	}
	if counts["prediction_latency_seconds"] != 3 {
		t.Errorf("Expected 3 latency samples, got %d", counts["prediction_latency_seconds"])
	}
	if counts["prediction_probability"] != 1 {
		t.Errorf("Expected 1 probability sample, got %d", counts["prediction_probability"])
	}
}

func TestGauges(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.WSConnectionsInc()
	m.WSConnectionsInc()
	m.WSConnectionsDec()
	if v := testutil.ToFloat64(m.WSConnections); v != 1 {
		t.Errorf("Expected 1 open connection, got %f", v)
	}

	m.ModelAgeSet(42)
	if v := testutil.ToFloat64(m.ModelAge); v != 42 {
		t.Errorf("Expected model age 42, got %f", v)
	}
}

func TestTrackModelAge(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.TrackModelAge(ctx, time.Now().Add(-time.Hour), 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TrackModelAge did not stop after cancel")
	}

	if v := testutil.ToFloat64(m.ModelAge); v < 3600 {
		t.Errorf("Expected model age of at least one hour, got %f", v)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	NewWithRegistry(registry)
}
