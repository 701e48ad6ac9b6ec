package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"riskform/internal/codebook"
	"riskform/internal/features"
	"riskform/internal/ml"
	"riskform/internal/render"
	"riskform/internal/storage"
)

const maxBodyBytes = 1 << 20

type predictResponse struct {
	ID           string              `json:"id"`
	Mode         ml.Mode             `json:"mode"`
	Summary      string              `json:"summary"`
	Label        string              `json:"label,omitempty"`
	Probability  *float64            `json:"probability,omitempty"`
	Row          features.FeatureRow `json:"row"`
	Attributions []float64           `json:"attributions,omitempty"`
	BaseValue    *float64            `json:"base_value,omitempty"`
	PlotURL      string              `json:"plot_url,omitempty"`
	ChartURL     string              `json:"chart_url,omitempty"`
}

type normalizeResponse struct {
	Row    features.FeatureRow `json:"row"`
	Values []float64           `json:"values"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type fieldView struct {
	Name        string              `json:"name"`
	Kind        string              `json:"kind"`
	Min         *float64            `json:"min,omitempty"`
	Max         *float64            `json:"max,omitempty"`
	Default     *float64            `json:"default,omitempty"`
	Step        float64             `json:"step,omitempty"`
	Unit        string              `json:"unit,omitempty"`
	Description string              `json:"description,omitempty"`
	Categories  []codebook.Category `json:"categories,omitempty"`
}

type codebookResponse struct {
	FeatureOrder []string    `json:"feature_order"`
	Fields       []fieldView `json:"fields"`
}

func newPredictResponse(out *outcome) predictResponse {
	res := out.Result
	resp := predictResponse{
		ID:           out.ID,
		Mode:         res.Mode,
		Summary:      render.Summary(res),
		Label:        res.Label,
		Row:          out.Row,
		Attributions: res.Attributions,
		PlotURL:      out.PlotURL,
		ChartURL:     out.ChartURL,
	}
	if res.Mode == ml.ModeProbability {
		p, base := res.Probability, res.BaseValue
		resp.Probability = &p
		resp.BaseValue = &base
	}
	return resp
}

func (s *Server) decodeRawInput(w http.ResponseWriter, r *http.Request) (features.RawInput, bool) {
	var raw features.RawInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
		return nil, false
	}
	return raw, true
}

// handlePredictAPI validates a JSON RawInput and runs the model on it.
func (s *Server) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.decodeRawInput(w, r)
	if !ok {
		return
	}

	row, errs := s.normalize(raw, nil)
	if len(errs) > 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid input", fieldMessages(errs))
		return
	}

	out, err := s.predict(r.Context(), row)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ml.ErrPredictionFailed) {
			status = http.StatusBadGateway
		}
		writeJSONError(w, status, err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, newPredictResponse(out))
}

// handleNormalizeAPI returns the feature row for a RawInput without calling
// the model.
func (s *Server) handleNormalizeAPI(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.decodeRawInput(w, r)
	if !ok {
		return
	}

	row, errs := s.normalize(raw, nil)
	if len(errs) > 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid input", fieldMessages(errs))
		return
	}
	writeJSON(w, http.StatusOK, normalizeResponse{Row: row, Values: row.Values()})
}

func (s *Server) handleCodebookAPI(w http.ResponseWriter, r *http.Request) {
	cb := s.builder.Codebook()
	resp := codebookResponse{FeatureOrder: cb.Order()}
	for _, spec := range cb.Fields() {
		v := fieldView{
			Name:        spec.Name,
			Kind:        spec.Kind.String(),
			Step:        spec.Step,
			Unit:        spec.Unit,
			Description: spec.Description,
			Categories:  spec.Categories,
		}
		if spec.Kind == codebook.Continuous {
			lo, hi, def := spec.Min, spec.Max, spec.Default
			v.Min, v.Max, v.Default = &lo, &hi, &def
		}
		resp.Fields = append(resp.Fields, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttributionsAPI(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeJSON(w, http.StatusOK, []ml.AttributionStats{})
		return
	}
	if top := r.URL.Query().Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "top must be a positive integer", nil)
			return
		}
		writeJSON(w, http.StatusOK, s.tracker.Top(n))
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleHistoryAPI(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "prediction history is disabled", nil)
		return
	}

	limit := s.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		if n < limit {
			limit = n
		}
	}

	records, err := s.history.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read prediction history")
		writeJSONError(w, http.StatusInternalServerError, "failed to read history", nil)
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "prediction history is disabled", nil)
		return
	}

	rec, err := s.history.Get(mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "prediction not found", nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read prediction")
		writeJSONError(w, http.StatusInternalServerError, "failed to read prediction", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "prediction history is disabled", nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
	if err := s.history.ExportCSV(w, s.builder.Codebook().Order()); err != nil {
		log.Error().Err(err).Msg("Failed to export prediction history")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"mode":    s.predictor.Mode(),
		"history": s.history != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, errorResponse{Error: msg, Fields: fields})
}
