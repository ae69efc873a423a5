package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the grading pipeline.
var (
	// ErrTransportFailure indicates the raw reply is an API error blob, not
	// model output; the sample terminates before parsing.
	ErrTransportFailure = errors.New("transport failure in model reply")

	// ErrParseFailure indicates no field map could be extracted from the
	// reply text.
	ErrParseFailure = errors.New("response parse failure")

	// ErrGoldUnavailable indicates reference data is missing for a sample,
	// so gold-dependent scores are marked unavailable rather than computed.
	ErrGoldUnavailable = errors.New("gold reference unavailable")

	// ErrInvalidConfiguration indicates the run configuration is incomplete
	// or malformed; it is fatal for the run.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError accumulates configuration validation failures so a run
// reports every problem at once instead of the first.
type ValidationError struct {
	Entity string
	Errors []string
}

// NewValidationError creates an empty ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity}
}

// AddError appends a message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failures were recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap ties every validation error to ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }
