package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"riskform/internal/codebook"
	"riskform/internal/features"
	"riskform/internal/ml"
	"riskform/internal/render"
)

type pageData struct {
	Mode        ml.Mode
	Continuous  []formField
	Categorical []formField
	Message     string
	Row         []inputColumn
	Result      *resultView
}

type formField struct {
	Name        string
	Unit        string
	Description string
	Min, Max    float64
	Step        string
	Value       string
	Options     []formOption
	Error       string
}

type formOption struct {
	Label    string
	Selected bool
}

type inputColumn struct {
	Name    string
	Code    string
	Display string
}

type resultView struct {
	ID            string
	Summary       string
	IsProbability bool
	BaseValue     string
	PlotURL       string
	ChartURL      string
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	cb := s.builder.Codebook()
	values := make(map[string]string, cb.Len())
	for name, v := range features.Defaults(cb) {
		values[name] = v.String()
	}
	s.page.render(w, http.StatusOK, s.formData(values, nil))
}

// handleFormSubmit validates the submitted widgets, and when every field is
// valid runs the model and shows the input row, the result and the plot.
// Field errors and model failures are shown inline on the re-rendered page.
func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form submission", http.StatusBadRequest)
		return
	}
	cb := s.builder.Codebook()

	raw, perr := features.ParseForm(cb, r.PostForm)
	var parseErrs features.ValidationErrors
	errors.As(perr, &parseErrs)

	row, errs := s.normalize(raw, parseErrs)
	data := s.formData(submittedValues(cb, r.PostForm), fieldMessages(errs))
	if len(errs) > 0 {
		s.page.render(w, http.StatusOK, data)
		return
	}

	data.Row = inputColumns(cb, row)
	out, err := s.predict(r.Context(), row)
	if err != nil {
		data.Message = err.Error()
		s.page.render(w, http.StatusOK, data)
		return
	}

	res := out.Result
	data.Result = &resultView{
		ID:            out.ID,
		Summary:       render.Summary(res),
		IsProbability: res.Mode == ml.ModeProbability,
		PlotURL:       out.PlotURL,
		ChartURL:      out.ChartURL,
	}
	if data.Result.IsProbability {
		data.Result.BaseValue = render.FormatBaseValue(res.BaseValue)
	}
	s.page.render(w, http.StatusOK, data)
}

func (s *Server) formData(values, errs map[string]string) pageData {
	cb := s.builder.Codebook()
	data := pageData{Mode: s.predictor.Mode()}

	for _, spec := range cb.Continuous() {
		step := "any"
		if spec.Step > 0 {
			step = strconv.FormatFloat(spec.Step, 'f', -1, 64)
		}
		data.Continuous = append(data.Continuous, formField{
			Name:        spec.Name,
			Unit:        spec.Unit,
			Description: spec.Description,
			Min:         spec.Min,
			Max:         spec.Max,
			Step:        step,
			Value:       values[spec.Name],
			Error:       errs[spec.Name],
		})
	}

	for _, spec := range cb.Categorical() {
		f := formField{
			Name:        spec.Name,
			Description: spec.Description,
			Value:       values[spec.Name],
			Error:       errs[spec.Name],
		}
		for _, label := range spec.Labels() {
			f.Options = append(f.Options, formOption{Label: label, Selected: label == f.Value})
		}
		data.Categorical = append(data.Categorical, f)
	}

	return data
}

func submittedValues(cb *codebook.Codebook, form url.Values) map[string]string {
	values := make(map[string]string, cb.Len())
	for _, name := range cb.Order() {
		if _, ok := form[name]; ok {
			values[name] = form.Get(name)
		}
	}
	return values
}

// inputColumns is the "Input Data" table: the exact row sent to the model,
// with the label behind every code.
func inputColumns(cb *codebook.Codebook, row features.FeatureRow) []inputColumn {
	described := features.Describe(cb, row)
	out := make([]inputColumn, row.Len())
	for i := range out {
		name, v := row.At(i)
		out[i] = inputColumn{
			Name:    name,
			Code:    strconv.FormatFloat(v, 'f', -1, 64),
			Display: described[name].String(),
		}
	}
	return out
}
