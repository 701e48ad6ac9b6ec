package features

import (
	"net/url"
	"strconv"
	"strings"

	"riskform/internal/codebook"
)

// ParseForm reads one value per codebook field from submitted form values.
// Absent fields stay absent so Build reports them; numbers that do not parse
// are reported here.
func ParseForm(cb *codebook.Codebook, form url.Values) (RawInput, error) {
	raw := make(RawInput, cb.Len())
	var errs ValidationErrors

	for _, spec := range cb.Fields() {
		if _, ok := form[spec.Name]; !ok {
			continue
		}
		s := strings.TrimSpace(form.Get(spec.Name))
		if spec.Kind == codebook.Categorical {
			raw[spec.Name] = Label(s)
			continue
		}
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, &codebook.FieldError{Field: spec.Name, Err: ErrInvalidNumber, Detail: strconv.Quote(s)})
			continue
		}
		raw[spec.Name] = Number(f)
	}

	if len(errs) > 0 {
		return raw, errs
	}
	return raw, nil
}

// Defaults is the input the form starts with: range midpoints and the first
// label of every code table.
func Defaults(cb *codebook.Codebook) RawInput {
	raw := make(RawInput, cb.Len())
	for _, spec := range cb.Continuous() {
		raw[spec.Name] = Number(spec.Default)
	}
	for _, spec := range cb.Categorical() {
		raw[spec.Name] = Label(spec.Categories[0].Label)
	}
	return raw
}

// Describe maps a built row back to the labels shown to the user.
func Describe(cb *codebook.Codebook, row FeatureRow) RawInput {
	raw := make(RawInput, row.Len())
	for i := 0; i < row.Len(); i++ {
		name, v := row.At(i)
		spec, ok := cb.Field(name)
		if !ok {
			continue
		}
		if spec.Kind == codebook.Categorical {
			if label, err := cb.Decode(name, int(v)); err == nil {
				raw[name] = Label(label)
				continue
			}
		}
		raw[name] = Number(v)
	}
	return raw
}
