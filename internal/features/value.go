// Package features turns the raw values collected from the form into the
// ordered numeric row the classifier consumes.
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is one raw input: a number for continuous fields or a label for
// categorical ones.
type Value struct {
	num     float64
	label   string
	isLabel bool
}

// Number wraps a continuous value.
func Number(v float64) Value {
	return Value{num: v}
}

// Label wraps a categorical label.
func Label(s string) Value {
	return Value{label: s, isLabel: true}
}

func (v Value) IsLabel() bool { return v.isLabel }

func (v Value) Float() float64 { return v.num }

func (v Value) Text() string { return v.label }

// String renders the value the way the form shows it.
func (v Value) String() string {
	if v.isLabel {
		return v.label
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isLabel {
		return json.Marshal(v.label)
	}
	return json.Marshal(v.num)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		// A null is not a value; absent fields must stay absent.
		return fmt.Errorf("value must be a number or a label, got null")
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Label(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("value must be a number or a label: %w", err)
	}
	*v = Number(f)
	return nil
}

// RawInput maps field names to the values the user selected. It is built per
// interaction and discarded once translated.
type RawInput map[string]Value
