package features

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FeatureRow is the ordered model input. It is immutable: accessors return
// copies.
type FeatureRow struct {
	names  []string
	values []float64
}

// NewFeatureRow pairs column names with values. Both slices are copied.
func NewFeatureRow(names []string, values []float64) FeatureRow {
	return FeatureRow{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}
}

func (r FeatureRow) Len() int { return len(r.values) }

// Names returns the column names in model order.
func (r FeatureRow) Names() []string {
	return append([]string(nil), r.names...)
}

// Values returns the numeric row in model order.
func (r FeatureRow) Values() []float64 {
	return append([]float64(nil), r.values...)
}

// At returns column i.
func (r FeatureRow) At(i int) (string, float64) {
	return r.names[i], r.values[i]
}

// Get looks a column up by name.
func (r FeatureRow) Get(name string) (float64, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return 0, false
}

// Float32 converts the row for backends that take single precision input.
func (r FeatureRow) Float32() []float32 {
	out := make([]float32, len(r.values))
	for i, v := range r.values {
		out[i] = float32(v)
	}
	return out
}

// Column is one named cell of a row, used for display and JSON.
type Column struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Columns returns the row as name/value pairs in model order.
func (r FeatureRow) Columns() []Column {
	out := make([]Column, len(r.values))
	for i := range r.values {
		out[i] = Column{Name: r.names[i], Value: r.values[i]}
	}
	return out
}

func (r FeatureRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Columns())
}

func (r *FeatureRow) UnmarshalJSON(data []byte) error {
	var cols []Column
	if err := json.Unmarshal(data, &cols); err != nil {
		return err
	}
	r.names = make([]string, len(cols))
	r.values = make([]float64, len(cols))
	for i, c := range cols {
		r.names[i] = c.Name
		r.values[i] = c.Value
	}
	return nil
}

func (r FeatureRow) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range r.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.names[i])
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
