package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requestLog struct {
	mu   sync.Mutex
	reqs []bridgeRequest
}

func (l *requestLog) all() []bridgeRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bridgeRequest(nil), l.reqs...)
}

func newInferenceServer(t *testing.T) (*httptest.Server, *requestLog) {
	t.Helper()
	seen := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req bridgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen.mu.Lock()
		seen.reqs = append(seen.reqs, req)
		seen.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case len(req.Rows) > 0 && req.Rows[0][0] == 13:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model crashed"}`))
		case req.Op == opPredict:
			_, _ = w.Write([]byte(`{"labels":["0"]}`))
		case req.Op == opPredictProba:
			_, _ = w.Write([]byte(`{"probabilities":[[0.9,0.1]]}`))
		case req.Op == opExplain:
			_, _ = w.Write([]byte(`{"attributions":[[0.01,0.02]],"expected_value":0.3}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestRemoteClassifier(t *testing.T) {
	srv, seen := newInferenceServer(t)
	c := NewRemoteClassifier(srv.URL+"/", []string{"a", "b"}, 1, 2*time.Second)
	ctx := context.Background()

	labels, err := c.Predict(ctx, [][]float64{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, labels)

	probs, err := c.PredictProba(ctx, [][]float64{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.9, 0.1}}, probs)

	expl, err := c.Explain(ctx, [][]float64{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 0.3, expl.BaseValue)
	assert.Equal(t, [][]float64{{0.01, 0.02}}, expl.Attributions)

	reqs := seen.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"a", "b"}, reqs[0].Columns)
	assert.Equal(t, opExplain, reqs[2].Op)
	assert.Equal(t, 1, reqs[2].PositiveClass)
}

func TestRemoteClassifier_ServerError(t *testing.T) {
	srv, _ := newInferenceServer(t)
	c := NewRemoteClassifier(srv.URL, []string{"a", "b"}, 1, 2*time.Second)

	_, err := c.Predict(context.Background(), [][]float64{{13, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestRemoteClassifier_Unreachable(t *testing.T) {
	srv, _ := newInferenceServer(t)
	url := srv.URL
	srv.Close()

	c := NewRemoteClassifier(url, nil, 1, time.Second)
	_, err := c.PredictProba(context.Background(), [][]float64{{1, 2}})
	assert.Error(t, err)
}
