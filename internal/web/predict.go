package web

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"riskform/internal/codebook"
	"riskform/internal/features"
	"riskform/internal/ml"
	"riskform/internal/render"
	"riskform/internal/storage"
)

// outcome is a successful prediction plus links to its rendered artifacts.
type outcome struct {
	ID       string
	Row      features.FeatureRow
	Result   *ml.Result
	PlotURL  string
	ChartURL string
}

// normalize builds the feature row. Parse errors from form decoding take the
// place of the "missing" error the builder reports for the same field.
func (s *Server) normalize(raw features.RawInput, parseErrs features.ValidationErrors) (features.FeatureRow, features.ValidationErrors) {
	row, err := s.builder.Build(raw)
	if err == nil && len(parseErrs) == 0 {
		return row, nil
	}

	byField := make(map[string]*codebook.FieldError, len(parseErrs))
	for _, fe := range parseErrs {
		byField[fe.Field] = fe
	}

	var errs features.ValidationErrors
	var built features.ValidationErrors
	if err != nil && !errors.As(err, &built) {
		built = features.ValidationErrors{{Err: err}}
	}
	for _, fe := range built {
		if pe, ok := byField[fe.Field]; ok {
			errs = append(errs, pe)
			delete(byField, fe.Field)
			continue
		}
		errs = append(errs, fe)
	}
	for _, fe := range parseErrs {
		if _, ok := byField[fe.Field]; ok {
			errs = append(errs, fe)
		}
	}

	for _, fe := range errs {
		s.metrics.ValidationErrorInc(errorKind(fe.Err))
	}
	return features.FeatureRow{}, errs
}

// predict runs the model on a valid row, renders the attribution plot and
// records the outcome in the history when enabled. Only the model call can
// fail the request.
func (s *Server) predict(ctx context.Context, row features.FeatureRow) (*outcome, error) {
	res, err := s.predictor.Predict(ctx, row)
	if err != nil {
		return nil, err
	}

	out := &outcome{ID: uuid.NewString(), Row: row, Result: res}

	if res.HasAttributions() {
		a := &artifact{row: row, result: *res}
		if s.plotDir != "" {
			path := filepath.Join(s.plotDir, out.ID+".png")
			if err := render.AttributionPlot(row, res, path); err != nil {
				log.Warn().Err(err).Str("id", out.ID).Msg("Failed to render attribution plot")
			} else {
				a.plotPath = path
				out.PlotURL = "/plots/" + out.ID + ".png"
			}
		}
		s.artifacts.put(out.ID, a)
		out.ChartURL = "/charts/" + out.ID
	}

	if s.history != nil {
		_, err := s.history.Save(storage.Record{
			ID:           out.ID,
			Mode:         string(res.Mode),
			Row:          row,
			Label:        res.Label,
			Probability:  res.Probability,
			Attributions: res.Attributions,
			BaseValue:    res.BaseValue,
		})
		if err != nil {
			log.Error().Err(err).Str("id", out.ID).Msg("Failed to store prediction")
		}
	}

	return out, nil
}

// errorKind is the metrics label for a field error cause.
func errorKind(err error) string {
	switch {
	case errors.Is(err, features.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, features.ErrIncompleteInput):
		return "incomplete_input"
	case errors.Is(err, features.ErrInvalidNumber):
		return "invalid_number"
	case errors.Is(err, codebook.ErrInvalidLabel):
		return "invalid_label"
	case errors.Is(err, codebook.ErrWrongKind):
		return "wrong_kind"
	case errors.Is(err, codebook.ErrUnknownField):
		return "unknown_field"
	default:
		return "other"
	}
}

// fieldMessages flattens validation errors for display. Errors without a
// field are keyed by the empty string.
func fieldMessages(errs features.ValidationErrors) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	return errs.ByField()
}
