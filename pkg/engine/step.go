package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/polisai/polis-sequence/pkg/engine/runtime"
	"github.com/polisai/polis-sequence/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// evaluateStep runs one step against output and returns the output for the
// next step. A non-nil StepError aborts the run.
func (p *SequenceProcessor) evaluateStep(ctx context.Context, r *run, position int, stepKey string, output domain.Record) (domain.Record, *domain.StepError) {
	step := p.definition.Steps[stepKey]
	policy := p.ResolvePolicy(stepKey)
	logger := NewStepLogger(stepKey, r.logger)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sequence.step", trace.WithAttributes(
		attribute.String("step.key", stepKey),
		attribute.Int("step.position", position),
	))
	defer span.End()
	telemetry.RecordStepPolicy(span, policy)

	report := runtime.StepReport{
		Sequence: p.definition.Name,
		RunID:    r.id,
		StepKey:  stepKey,
		Position: position,
		State:    runtime.StatePending,
	}
	start := time.Now()
	finish := func(state runtime.StepState) {
		report.State = state
		report.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("step.state", string(state)),
			attribute.Int("step.handlers.invoked", report.HandlersInvoked),
			attribute.Bool("step.blocked", report.Blocked),
		)
		p.recordStep(ctx, report)
	}

	logger.Log("Evaluating step:", output, r.input)

	var cause error
	if output.Has(stepKey) {
		switch policy.WhenNotNull {
		case domain.NotNullReturn:
			logger.Log("Evaluation of step skipped:", output, r.input)
			finish(runtime.StateSkipped)
			return output, nil
		case domain.NotNullThrowException:
			logger.Log("Evaluation of step blocked:", output, r.input)
			report.Blocked = true
			telemetry.RecordStepBlocked(span, output.Get(stepKey))
			cause = domain.ErrValueNotNull
		default:
			logger.Log("Evaluation of step proceeding:", output, r.input)
		}
	}

	if cause == nil {
		telemetry.RecordStepEvaluating(span, len(step.Handlers))
		value, invoked, err := evaluateChain(ctx, step.Handlers, policy.WhenNotNullSFA, stepKey, output, r.input, logger)
		report.HandlersInvoked = invoked
		if err == nil {
			next := output.With(stepKey, value)
			logger.Log("Evaluation of step complete:", next, r.input)
			finish(runtime.StateComplete)
			return next, nil
		}
		cause = err
	}

	message := failureMessage(cause)
	report.ErrorMessage = message
	span.RecordError(cause)

	if policy.OnStepError == domain.StepErrorReturn {
		logger.Log("Evaluation of step aborted:", output, r.input)
		telemetry.RecordStepAborted(span, message)
		finish(runtime.StateAborted)
		return output, nil
	}

	logger.Log("Evaluation of step failed:", output, r.input)
	span.SetStatus(codes.Error, message)
	finish(runtime.StateFailed)
	return output, domain.NewStepError(stepKey, output, r.input, message, cause)
}

// evaluateChain threads a value through handlers, seeded with the step's
// current field value. Once the value is set, the chain policy decides
// whether the remaining handlers still run. It returns the final value, the
// number of handlers invoked and the first handler failure.
func evaluateChain(
	ctx context.Context,
	handlers []domain.Handler,
	policy domain.ChainPolicy,
	stepKey string,
	output, input domain.Record,
	logger *StepLogger,
) (any, int, error) {
	logger.Log("Evaluating functions for step:", output, input)

	value := output.Get(stepKey)
	invoked := 0
	for i, handler := range handlers {
		label := fmt.Sprintf("step function %d", i+1)
		current := output.With(stepKey, value)
		logger.Log("Evaluating "+label+" for step:", current, input)

		if !domain.IsNil(value) {
			if policy != domain.ChainEvaluateAll {
				logger.Log("Evaluation of "+label+" skipped for step:", current, input)
				return value, invoked, nil
			}
			logger.Log("Evaluation of "+label+" proceeding for step:", current, input)
		}

		next, err := invokeHandler(ctx, handler, domain.HandlerContext{Input: input, Output: current})
		invoked++
		if err != nil {
			return nil, invoked, err
		}
		value = next
		logger.Log("Evaluated "+label+" for step:", output.With(stepKey, value), input)
	}
	return value, invoked, nil
}

// invokeHandler calls handler and converts a panic into a handlerPanic error.
func invokeHandler(ctx context.Context, handler domain.Handler, hc domain.HandlerContext) (value any, err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		value = nil
		if cause, ok := recovered.(error); ok {
			message := cause.Error()
			if message == "" {
				message = domain.UnknownErrorMessage
			}
			err = &handlerPanic{message: message, cause: cause}
			return
		}
		err = &handlerPanic{message: domain.UnknownErrorMessage, value: recovered}
	}()
	return handler(ctx, hc)
}

// handlerPanic records a panic raised by a handler.
type handlerPanic struct {
	message string
	cause   error
	value   any
}

func (e *handlerPanic) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", domain.ErrHandlerPanic.Error(), e.value)
	}
	return domain.ErrHandlerPanic.Error() + ": " + e.message
}

func (e *handlerPanic) Unwrap() []error {
	if e.cause == nil {
		return []error{domain.ErrHandlerPanic}
	}
	return []error{domain.ErrHandlerPanic, e.cause}
}

// failureMessage returns the reason recorded on a StepError.
func failureMessage(err error) string {
	var panicked *handlerPanic
	if errors.As(err, &panicked) {
		return panicked.message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return domain.UnknownErrorMessage
}
