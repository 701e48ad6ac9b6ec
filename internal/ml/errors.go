package ml

import (
	"errors"
	"fmt"
)

// ErrPredictionFailed marks any failure of the model or explainer call. The
// cause is kept and the call is never retried.
var ErrPredictionFailed = errors.New("prediction failed")

// PredictionError carries the failing operation and the underlying cause.
type PredictionError struct {
	Op  string
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed during %s: %v", e.Op, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

func (e *PredictionError) Is(target error) bool {
	return target == ErrPredictionFailed
}

func errMissing(field string) error {
	return fmt.Errorf("response is missing %s", field)
}
