package features

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when request metadata cannot be turned into a
// context vector. It can be checked with errors.Is().
var ErrValidation = errors.New("invalid request metadata")

// ValidationError describes a single malformed or missing metadata field.
// Requests that fail validation must be rejected before selection.
type ValidationError struct {
	// Field is the metadata field that failed validation.
	Field string

	// Reason explains why the field was rejected.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request metadata: field %q %s", e.Field, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
