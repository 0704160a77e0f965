package telemetry

import (
	"github.com/polisai/polis-sequence/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordStepPolicy annotates the provided span with the policy resolved for a step.
func RecordStepPolicy(span trace.Span, policy domain.StepPolicy) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("step.policy.when_not_null", string(policy.WhenNotNull)),
		attribute.String("step.policy.when_not_null_sfa", string(policy.WhenNotNullSFA)),
		attribute.String("step.policy.on_step_error", string(policy.OnStepError)),
	)
}

// RecordStepEvaluating marks the start of a step's handler chain.
func RecordStepEvaluating(span trace.Span, handlers int) {
	if !span.IsRecording() {
		return
	}

	span.AddEvent("step.evaluating", trace.WithAttributes(
		attribute.Int("step.handlers", handlers),
	))
}

// RecordStepBlocked marks a step refused by the ThrowException not-null policy.
func RecordStepBlocked(span trace.Span, existing any) {
	if !span.IsRecording() {
		return
	}

	span.AddEvent("step.blocked", trace.WithAttributes(
		attribute.String("step.existing_type", typeName(existing)),
	))
}

// RecordStepAborted marks a failure absorbed by the Return step-error policy.
func RecordStepAborted(span trace.Span, reason string) {
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{}
	if reason != "" {
		attrs = append(attrs, attribute.String("step.abort_reason", reason))
	}
	span.AddEvent("step.aborted", trace.WithAttributes(attrs...))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "float"
	default:
		return "other"
	}
}
