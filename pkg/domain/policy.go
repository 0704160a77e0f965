package domain

import (
	"fmt"
	"strings"
)

// NotNullPolicy decides what happens when a step's output field is already
// populated before the step runs.
type NotNullPolicy string

const (
	// NotNullReevaluate runs the handler chain anyway, possibly overwriting the field.
	NotNullReevaluate NotNullPolicy = "Reevaluate"
	// NotNullReturn skips the step and keeps the existing value.
	NotNullReturn NotNullPolicy = "Return"
	// NotNullThrowException fails the step with ErrValueNotNull.
	NotNullThrowException NotNullPolicy = "ThrowException"
)

// ChainPolicy decides what happens when a handler in a step's chain has
// produced a non-nil value and further handlers remain.
type ChainPolicy string

const (
	// ChainEvaluateAll invokes the remaining handlers; the last one wins.
	ChainEvaluateAll ChainPolicy = "EvaluateAll"
	// ChainReturn stops the chain at the first non-nil value.
	ChainReturn ChainPolicy = "Return"
)

// StepErrorPolicy decides whether a failing step aborts the run.
type StepErrorPolicy string

const (
	// StepErrorThrowException aborts the run with the step's StepError.
	StepErrorThrowException StepErrorPolicy = "ThrowException"
	// StepErrorReturn absorbs the failure, keeps the prior output and continues.
	StepErrorReturn StepErrorPolicy = "Return"
)

// StepPolicy is the policy triple applied to one step. An empty field means
// "inherit from the run-level defaults".
type StepPolicy struct {
	WhenNotNull    NotNullPolicy   `json:"whenNotNull,omitempty" yaml:"when_not_null,omitempty"`
	WhenNotNullSFA ChainPolicy     `json:"whenNotNullSFA,omitempty" yaml:"when_not_null_sfa,omitempty"`
	OnStepError    StepErrorPolicy `json:"onStepError,omitempty" yaml:"on_step_error,omitempty"`
}

// EvaluationOptions are the run-level defaults of a sequence processor.
type EvaluationOptions struct {
	StepPolicy     `yaml:",inline"`
	LoggingEnabled bool `json:"loggingEnabled" yaml:"logging_enabled"`
}

// DefaultEvaluationOptions returns the options used when none are supplied.
func DefaultEvaluationOptions() EvaluationOptions {
	return EvaluationOptions{
		StepPolicy: StepPolicy{
			WhenNotNull:    NotNullReevaluate,
			WhenNotNullSFA: ChainReturn,
			OnStepError:    StepErrorThrowException,
		},
		LoggingEnabled: true,
	}
}

// WithDefaults fills unset policy fields from DefaultEvaluationOptions.
// LoggingEnabled is kept as given.
func (o EvaluationOptions) WithDefaults() EvaluationOptions {
	o.StepPolicy = DefaultEvaluationOptions().StepPolicy.Merge(&o.StepPolicy)
	return o
}

// Merge returns p with every non-empty field of override applied on top.
// A nil override returns p unchanged.
func (p StepPolicy) Merge(override *StepPolicy) StepPolicy {
	if override == nil {
		return p
	}
	if override.WhenNotNull != "" {
		p.WhenNotNull = override.WhenNotNull
	}
	if override.WhenNotNullSFA != "" {
		p.WhenNotNullSFA = override.WhenNotNullSFA
	}
	if override.OnStepError != "" {
		p.OnStepError = override.OnStepError
	}
	return p
}

// Validate rejects values outside the known enumerations. Empty fields are valid.
func (p StepPolicy) Validate() error {
	switch p.WhenNotNull {
	case "", NotNullReevaluate, NotNullReturn, NotNullThrowException:
	default:
		return fmt.Errorf("%w: whenNotNull %q", ErrInvalidPolicy, p.WhenNotNull)
	}
	switch p.WhenNotNullSFA {
	case "", ChainEvaluateAll, ChainReturn:
	default:
		return fmt.Errorf("%w: whenNotNullSFA %q", ErrInvalidPolicy, p.WhenNotNullSFA)
	}
	switch p.OnStepError {
	case "", StepErrorThrowException, StepErrorReturn:
	default:
		return fmt.Errorf("%w: onStepError %q", ErrInvalidPolicy, p.OnStepError)
	}
	return nil
}

// ParseNotNullPolicy parses a case-insensitive policy name.
func ParseNotNullPolicy(raw string) (NotNullPolicy, error) {
	for _, p := range []NotNullPolicy{NotNullReevaluate, NotNullReturn, NotNullThrowException} {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: whenNotNull %q", ErrInvalidPolicy, raw)
}

// ParseChainPolicy parses a case-insensitive policy name.
func ParseChainPolicy(raw string) (ChainPolicy, error) {
	for _, p := range []ChainPolicy{ChainEvaluateAll, ChainReturn} {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: whenNotNullSFA %q", ErrInvalidPolicy, raw)
}

// ParseStepErrorPolicy parses a case-insensitive policy name.
func ParseStepErrorPolicy(raw string) (StepErrorPolicy, error) {
	for _, p := range []StepErrorPolicy{StepErrorThrowException, StepErrorReturn} {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: onStepError %q", ErrInvalidPolicy, raw)
}
