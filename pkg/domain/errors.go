package domain

import "errors"

// Definition validation errors.
var (
	ErrEmptySequenceName = errors.New("sequence has empty name")
	ErrNoSteps           = errors.New("sequence has no steps")
	ErrEmptyStepKey      = errors.New("step has empty key")
	ErrUnknownStep       = errors.New("order references unknown step")
	ErrNoHandlers        = errors.New("step has no handlers")
	ErrNilHandler        = errors.New("step has nil handler")
	ErrInvalidPolicy     = errors.New("invalid step policy")
)

// Evaluation errors. These are the causes wrapped by StepError.
var (
	ErrValueNotNull = errors.New("value is not null")
	ErrHandlerPanic = errors.New("handler panicked")
)

// UnknownErrorMessage is recorded when a handler fails with a value that
// carries no error message.
const UnknownErrorMessage = "Unknown error"

// ValidationError reports an invalid sequence definition.
type ValidationError struct {
	StepKey string // step where the problem was found, empty for sequence-level problems
	Field   string // offending field
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.StepKey != "" {
		return "step " + e.StepKey + ": " + e.Message
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError.
func NewValidationError(stepKey, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepKey: stepKey,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// StepError is the failure of a single step, captured with enough context to
// diagnose it without re-running the sequence.
//
// State is the output as it was when the step was entered; Input is the run's
// input. Message is the failure reason: the handler's error text, "value is
// not null" for a null-policy violation, or UnknownErrorMessage.
type StepError struct {
	StepKey string
	State   Record
	Input   Record
	Message string
	Err     error
}

// Error returns a fixed summary naming the failing step. Full context lives in
// the struct fields.
func (e *StepError) Error() string {
	return "error in step: " + e.StepKey
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a StepError. State and input are copied so later
// changes by the caller cannot alter the captured context.
func NewStepError(stepKey string, state, input Record, message string, err error) *StepError {
	return &StepError{
		StepKey: stepKey,
		State:   state.Clone(),
		Input:   input.Clone(),
		Message: message,
		Err:     err,
	}
}
