package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrWizardNotFound   = fmt.Errorf("%w: wizard", ErrNotFound)
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrVariableNotFound = fmt.Errorf("%w: variable", ErrNotFound)

	// Wizard lifecycle errors
	ErrWizardClosed = errors.New("wizard is closed")
	ErrStepBlocked  = errors.New("step requirements not met")
	ErrBusy         = errors.New("a request is already outstanding")
	ErrAtLastStep   = errors.New("already at the last step")
	ErrNoAction     = errors.New("current step has no action")
	ErrNotEditable  = errors.New("not editable on the current step")

	// Validation errors
	ErrNotClusterable  = errors.New("variable is not numeric-compatible")
	ErrInvalidRange    = errors.New("invalid candidate range")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrNothingToRender = errors.New("no result to render")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrWizardClosed) ||
		errors.Is(err, ErrStepBlocked) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrAtLastStep) ||
		errors.Is(err, ErrNoAction) ||
		errors.Is(err, ErrNotEditable)
}
