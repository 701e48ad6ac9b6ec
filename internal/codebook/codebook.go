// Package codebook holds the registry of input fields the classifier was
// trained on: which fields are continuous, their inclusive bounds, which are
// categorical and the closed code table behind each of them, plus the column
// order the model expects.
//
// A Codebook is validated once when it is built and never changes afterwards,
// so it can be shared by every request without synchronization.
package codebook

import (
	"fmt"
	"math"
	"sort"
)

// Kind distinguishes numeric fields from code-table fields.
type Kind int

const (
	Continuous Kind = iota + 1
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Category is one entry of a categorical field's code table. Code is what the
// model consumes, Label is the only thing shown to the user.
type Category struct {
	Code  int    `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

// FieldSpec describes one input field.
type FieldSpec struct {
	Name        string     `json:"name"`
	Kind        Kind       `json:"-"`
	Min         float64    `json:"min,omitempty"`
	Max         float64    `json:"max,omitempty"`
	Default     float64    `json:"default,omitempty"`
	HasDefault  bool       `json:"-"` // Default was configured, even if zero
	Step        float64    `json:"step,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Description string     `json:"description,omitempty"`
	Categories  []Category `json:"categories,omitempty"`
}

// Contains reports whether v lies inside the inclusive bounds.
func (f FieldSpec) Contains(v float64) bool {
	return v >= f.Min && v <= f.Max
}

// Midpoint of the inclusive range.
func (f FieldSpec) Midpoint() float64 {
	return (f.Min + f.Max) / 2
}

// Labels returns the category labels in code-table order.
func (f FieldSpec) Labels() []string {
	out := make([]string, len(f.Categories))
	for i, c := range f.Categories {
		out[i] = c.Label
	}
	return out
}

func (f FieldSpec) clone() FieldSpec {
	f.Categories = append([]Category(nil), f.Categories...)
	return f
}

type field struct {
	spec    FieldSpec
	byLabel map[string]int
	byCode  map[int]string
}

// Codebook is the immutable set of field specs plus the feature order.
type Codebook struct {
	fields      map[string]*field
	order       []string
	continuous  []string
	categorical []string
}

// New validates the given field groups against the feature order and returns
// a Codebook. Any inconsistency is reported as ErrConfigMismatch.
//
// A continuous field without a configured Default gets the midpoint of its
// range.
func New(continuous, categorical []FieldSpec, order []string) (*Codebook, error) {
	cb := &Codebook{
		fields: make(map[string]*field, len(continuous)+len(categorical)),
	}

	for _, spec := range continuous {
		spec = spec.clone()
		spec.Kind = Continuous
		if err := checkContinuous(&spec); err != nil {
			return nil, err
		}
		if err := cb.add(spec, nil, nil); err != nil {
			return nil, err
		}
		cb.continuous = append(cb.continuous, spec.Name)
	}

	for _, spec := range categorical {
		spec = spec.clone()
		spec.Kind = Categorical
		byLabel, byCode, err := checkCategorical(spec)
		if err != nil {
			return nil, err
		}
		if err := cb.add(spec, byLabel, byCode); err != nil {
			return nil, err
		}
		cb.categorical = append(cb.categorical, spec.Name)
	}

	if len(order) == 0 {
		return nil, mismatch("feature order is empty")
	}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if seen[name] {
			return nil, mismatch("feature %q appears twice in feature order", name)
		}
		seen[name] = true
		if _, ok := cb.fields[name]; !ok {
			return nil, mismatch("feature %q is in feature order but not in codebook", name)
		}
	}
	if len(seen) != len(cb.fields) {
		var missing []string
		for name := range cb.fields {
			if !seen[name] {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		return nil, mismatch("codebook fields missing from feature order: %v", missing)
	}
	cb.order = append([]string(nil), order...)

	return cb, nil
}

func (cb *Codebook) add(spec FieldSpec, byLabel map[string]int, byCode map[int]string) error {
	if spec.Name == "" {
		return mismatch("field with empty name")
	}
	if existing, ok := cb.fields[spec.Name]; ok {
		if existing.spec.Kind != spec.Kind {
			return mismatch("field %q is declared both continuous and categorical", spec.Name)
		}
		return mismatch("field %q declared twice", spec.Name)
	}
	cb.fields[spec.Name] = &field{spec: spec, byLabel: byLabel, byCode: byCode}
	return nil
}

func checkContinuous(spec *FieldSpec) error {
	if math.IsNaN(spec.Min) || math.IsNaN(spec.Max) || spec.Min >= spec.Max {
		return mismatch("field %q has invalid range [%v, %v]", spec.Name, spec.Min, spec.Max)
	}
	if len(spec.Categories) > 0 {
		return mismatch("continuous field %q has a code table", spec.Name)
	}
	if !spec.HasDefault {
		spec.Default = spec.Midpoint()
		spec.HasDefault = true
	}
	if !spec.Contains(spec.Default) {
		return mismatch("field %q default %v outside [%v, %v]", spec.Name, spec.Default, spec.Min, spec.Max)
	}
	return nil
}

func checkCategorical(spec FieldSpec) (map[string]int, map[int]string, error) {
	if len(spec.Categories) == 0 {
		return nil, nil, mismatch("categorical field %q has no categories", spec.Name)
	}
	byLabel := make(map[string]int, len(spec.Categories))
	byCode := make(map[int]string, len(spec.Categories))
	for _, c := range spec.Categories {
		if c.Code <= 0 {
			return nil, nil, mismatch("field %q has non-positive code %d", spec.Name, c.Code)
		}
		if c.Label == "" {
			return nil, nil, mismatch("field %q code %d has an empty label", spec.Name, c.Code)
		}
		if _, dup := byCode[c.Code]; dup {
			return nil, nil, mismatch("field %q has duplicate code %d", spec.Name, c.Code)
		}
		if _, dup := byLabel[c.Label]; dup {
			return nil, nil, mismatch("field %q has duplicate label %q", spec.Name, c.Label)
		}
		byCode[c.Code] = c.Label
		byLabel[c.Label] = c.Code
	}
	return byLabel, byCode, nil
}

// Order returns a copy of the feature order.
func (cb *Codebook) Order() []string {
	return append([]string(nil), cb.order...)
}

// Len is the number of model columns.
func (cb *Codebook) Len() int {
	return len(cb.order)
}

// Field looks up a field spec by name.
func (cb *Codebook) Field(name string) (FieldSpec, bool) {
	f, ok := cb.fields[name]
	if !ok {
		return FieldSpec{}, false
	}
	return f.spec.clone(), true
}

// Continuous returns the continuous fields in declaration order.
func (cb *Codebook) Continuous() []FieldSpec {
	return cb.specs(cb.continuous)
}

// Categorical returns the categorical fields in declaration order.
func (cb *Codebook) Categorical() []FieldSpec {
	return cb.specs(cb.categorical)
}

// Fields returns every field in feature order.
func (cb *Codebook) Fields() []FieldSpec {
	return cb.specs(cb.order)
}

func (cb *Codebook) specs(names []string) []FieldSpec {
	out := make([]FieldSpec, len(names))
	for i, name := range names {
		out[i] = cb.fields[name].spec.clone()
	}
	return out
}

// CheckColumns compares externally reported model columns (for example the
// feature names stored in a model artifact) with the feature order.
func (cb *Codebook) CheckColumns(columns []string) error {
	if len(columns) != len(cb.order) {
		return mismatch("model expects %d columns, feature order has %d", len(columns), len(cb.order))
	}
	for i, name := range columns {
		if cb.order[i] != name {
			return mismatch("model column %d is %q, feature order has %q", i, name, cb.order[i])
		}
	}
	return nil
}
