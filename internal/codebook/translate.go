package codebook

import "fmt"

// Encode translates a categorical label into the code the model consumes.
// An unregistered label is an error; there is no default code.
func (cb *Codebook) Encode(name, label string) (int, error) {
	f, err := cb.categoricalField(name)
	if err != nil {
		return 0, err
	}
	code, ok := f.byLabel[label]
	if !ok {
		return 0, &FieldError{Field: name, Err: ErrInvalidLabel, Detail: fmt.Sprintf("%q is not one of %q", label, f.spec.Labels())}
	}
	return code, nil
}

// Decode is the reverse of Encode, used for display.
func (cb *Codebook) Decode(name string, code int) (string, error) {
	f, err := cb.categoricalField(name)
	if err != nil {
		return "", err
	}
	label, ok := f.byCode[code]
	if !ok {
		return "", &FieldError{Field: name, Err: ErrInvalidCode, Detail: fmt.Sprintf("%d", code)}
	}
	return label, nil
}

func (cb *Codebook) categoricalField(name string) (*field, error) {
	f, ok := cb.fields[name]
	if !ok {
		return nil, &FieldError{Field: name, Err: ErrUnknownField}
	}
	if f.spec.Kind != Categorical {
		return nil, &FieldError{Field: name, Err: ErrWrongKind, Detail: "field is " + f.spec.Kind.String()}
	}
	return f, nil
}
