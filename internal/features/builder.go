package features

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"riskform/internal/codebook"
)

var (
	ErrOutOfRange      = errors.New("value out of range")
	ErrIncompleteInput = errors.New("required field missing")
	ErrInvalidNumber   = errors.New("not a number")
)

// ValidationErrors collects every field problem found while building a row,
// ordered by feature order. errors.Is matches any of the contained causes.
type ValidationErrors []*codebook.FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Error()
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	out := make([]error, len(v))
	for i, fe := range v {
		out[i] = fe
	}
	return out
}

// ByField indexes the messages by field name for inline display.
func (v ValidationErrors) ByField() map[string]string {
	out := make(map[string]string, len(v))
	for _, fe := range v {
		msg := fe.Err.Error()
		if fe.Detail != "" {
			msg += ": " + fe.Detail
		}
		out[fe.Field] = msg
	}
	return out
}

// Builder translates RawInput into FeatureRow using a fixed codebook.
type Builder struct {
	cb *codebook.Codebook
}

func NewBuilder(cb *codebook.Codebook) *Builder {
	return &Builder{cb: cb}
}

// Codebook returns the codebook the builder validates against.
func (b *Builder) Codebook() *codebook.Codebook {
	return b.cb
}

// Build walks the feature order, translating labels to codes and range
// checking numbers. Missing fields are never defaulted and out-of-range values
// are never clamped; every problem is returned as ValidationErrors.
func (b *Builder) Build(raw RawInput) (FeatureRow, error) {
	order := b.cb.Order()
	values := make([]float64, len(order))
	var errs ValidationErrors

	for i, name := range order {
		spec, _ := b.cb.Field(name)
		v, ok := raw[name]
		if !ok {
			errs = append(errs, &codebook.FieldError{Field: name, Err: ErrIncompleteInput})
			continue
		}

		switch spec.Kind {
		case codebook.Categorical:
			if !v.IsLabel() {
				errs = append(errs, &codebook.FieldError{Field: name, Err: codebook.ErrWrongKind, Detail: "expected a label"})
				continue
			}
			code, err := b.cb.Encode(name, v.Text())
			if err != nil {
				var fe *codebook.FieldError
				if errors.As(err, &fe) {
					errs = append(errs, fe)
				} else {
					errs = append(errs, &codebook.FieldError{Field: name, Err: err})
				}
				continue
			}
			values[i] = float64(code)
		case codebook.Continuous:
			if v.IsLabel() {
				errs = append(errs, &codebook.FieldError{Field: name, Err: codebook.ErrWrongKind, Detail: "expected a number"})
				continue
			}
			if !spec.Contains(v.Float()) {
				errs = append(errs, &codebook.FieldError{
					Field:  name,
					Err:    ErrOutOfRange,
					Detail: fmt.Sprintf("%v not in [%v, %v]", v.Float(), spec.Min, spec.Max),
				})
				continue
			}
			values[i] = v.Float()
		}
	}

	var unknown []string
	for name := range raw {
		if _, ok := b.cb.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, &codebook.FieldError{Field: name, Err: codebook.ErrUnknownField})
	}

	if len(errs) > 0 {
		return FeatureRow{}, errs
	}
	return FeatureRow{names: order, values: values}, nil
}
