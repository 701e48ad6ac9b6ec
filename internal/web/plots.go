package web

import (
	"bytes"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"riskform/internal/features"
	"riskform/internal/ml"
	"riskform/internal/render"
)

// lookupArtifact finds a prediction with attributions in the cache, falling
// back to the history store.
func (s *Server) lookupArtifact(id string) (*artifact, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	if a, ok := s.artifacts.get(id); ok {
		return a, true
	}
	if s.history == nil {
		return nil, false
	}
	rec, err := s.history.Get(id)
	if err != nil || len(rec.Attributions) == 0 {
		return nil, false
	}
	return &artifact{
		row: rec.Row,
		result: ml.Result{
			Mode:         ml.Mode(rec.Mode),
			Label:        rec.Label,
			Probability:  rec.Probability,
			Attributions: rec.Attributions,
			BaseValue:    rec.BaseValue,
		},
	}, true
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupArtifact(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	if a.plotPath != "" {
		w.Header().Set("Content-Type", "image/png")
		http.ServeFile(w, r, a.plotPath)
		return
	}
	s.streamPlot(w, a.row, &a.result)
}

func (s *Server) streamPlot(w http.ResponseWriter, row features.FeatureRow, res *ml.Result) {
	var buf bytes.Buffer
	if err := render.WriteAttributionPlot(&buf, row, res); err != nil {
		http.Error(w, "failed to render plot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupArtifact(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	if err := render.AttributionChart(&buf, a.row, &a.result); err != nil {
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
