package codebook

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMismatch is returned when the codebook and the feature order
	// disagree, or when a field table is internally inconsistent. It is fatal
	// at startup.
	ErrConfigMismatch = errors.New("codebook configuration mismatch")
	ErrInvalidLabel   = errors.New("invalid label")
	ErrInvalidCode    = errors.New("invalid code")
	ErrUnknownField   = errors.New("unknown field")
	ErrWrongKind      = errors.New("wrong value kind for field")
)

// FieldError ties a validation failure to the input field that caused it.
type FieldError struct {
	Field  string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigMismatch, fmt.Sprintf(format, args...))
}
