package core

import (
	"errors"
	"fmt"
)

// ErrValidation marks input that cannot produce a payload: missing mandatory
// analysis fields, an unrecognized output type, or a structural invariant
// violation in an assembled message list. Builds never fall back to a default
// on such input, so the caller can distinguish bad data from transient
// failures.
var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
