package domain

import (
	"context"
	"fmt"
	"sort"
)

// HandlerContext is what a handler sees: the run's input and the output
// accumulated so far, with the handler's own field set to the chain's
// running value.
type HandlerContext struct {
	Input  Record
	Output Record
}

// Handler computes the value of one step field. Handlers of a chain run
// strictly in order; a returned error fails the step.
type Handler func(ctx context.Context, hc HandlerContext) (any, error)

// Step describes how one output field is produced.
type Step struct {
	Handlers []Handler
	Policy   *StepPolicy // optional per-step override
	Index    int         // position when the definition has no explicit Order
}

// SequenceDefinition is the data-only description of a sequence: its name,
// its steps keyed by output field, and optionally an explicit order.
type SequenceDefinition struct {
	Name  string
	Steps map[string]Step
	// Order lists step keys in evaluation order. Duplicates are collapsed to
	// their first occurrence. When empty, steps are ordered by Step.Index.
	Order []string
}

// StepOrder returns the de-duplicated evaluation order.
func (d SequenceDefinition) StepOrder() []string {
	if len(d.Order) > 0 {
		seen := make(map[string]bool, len(d.Order))
		order := make([]string, 0, len(d.Order))
		for _, key := range d.Order {
			if seen[key] {
				continue
			}
			seen[key] = true
			order = append(order, key)
		}
		return order
	}

	order := make([]string, 0, len(d.Steps))
	for key := range d.Steps {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := d.Steps[order[i]], d.Steps[order[j]]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return order[i] < order[j]
	})
	return order
}

// Validate checks the definition so that evaluation never meets a missing
// step, an empty chain or an unknown policy value.
func (d SequenceDefinition) Validate() error {
	if d.Name == "" {
		return NewValidationError("", "name", "sequence name is required", ErrEmptySequenceName)
	}
	if len(d.Steps) == 0 {
		return NewValidationError("", "steps", fmt.Sprintf("sequence %q has no steps", d.Name), ErrNoSteps)
	}

	for _, key := range d.Order {
		if _, ok := d.Steps[key]; !ok {
			return NewValidationError(key, "order", fmt.Sprintf("order references unknown step: %s", key), ErrUnknownStep)
		}
	}

	for _, key := range sortedKeys(d.Steps) {
		step := d.Steps[key]
		if key == "" {
			return NewValidationError("", "steps", "step key is required", ErrEmptyStepKey)
		}
		if len(step.Handlers) == 0 {
			return NewValidationError(key, "handlers", "at least one handler is required", ErrNoHandlers)
		}
		for i, h := range step.Handlers {
			if h == nil {
				return NewValidationError(key, "handlers", fmt.Sprintf("handler %d is nil", i+1), ErrNilHandler)
			}
		}
		if step.Policy != nil {
			if err := step.Policy.Validate(); err != nil {
				return NewValidationError(key, "policy", err.Error(), err)
			}
		}
	}

	return nil
}

func sortedKeys(steps map[string]Step) []string {
	keys := make([]string, 0, len(steps))
	for key := range steps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
