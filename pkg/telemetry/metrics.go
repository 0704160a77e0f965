package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/polisai/polis-sequence/pkg/engine/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce              sync.Once
	metricsInitErr           error
	stepEvaluationCounter    metric.Int64Counter
	stepDurationHistogram    metric.Float64Histogram
	handlerInvocationCounter metric.Int64Counter
	runEvaluationCounter     metric.Int64Counter
	runDurationHistogram     metric.Float64Histogram
)

// RecordStepMetrics emits counters and histograms describing how a step ended.
func RecordStepMetrics(ctx context.Context, report runtime.StepReport) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sequence.name", report.Sequence),
		attribute.String("step.key", report.StepKey),
		attribute.String("step.state", string(report.State)),
		attribute.Bool("step.blocked", report.Blocked),
	}

	stepEvaluationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if report.Duration > 0 {
		stepDurationHistogram.Record(ctx, float64(report.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if report.HandlersInvoked > 0 {
		handlerInvocationCounter.Add(ctx, int64(report.HandlersInvoked), metric.WithAttributes(
			attribute.String("sequence.name", report.Sequence),
			attribute.String("step.key", report.StepKey),
		))
	}
}

// RecordRunMetrics emits counters and histograms describing how a run ended.
func RecordRunMetrics(ctx context.Context, report runtime.RunReport) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sequence.name", report.Sequence),
		attribute.String("sequence.outcome", string(report.Outcome)),
	}
	if report.FailedStep != "" {
		attrs = append(attrs, attribute.String("sequence.failed_step", report.FailedStep))
	}

	runEvaluationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if report.Duration > 0 {
		runDurationHistogram.Record(ctx, float64(report.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("sequence.engine")

		stepEvaluationCounter, metricsInitErr = meter.Int64Counter(
			"sequence.step.evaluations_total",
			metric.WithDescription("Step evaluations partitioned by terminal state"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stepDurationHistogram, metricsInitErr = meter.Float64Histogram(
			"sequence.step.duration_ms",
			metric.WithDescription("Observed step evaluation latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		handlerInvocationCounter, metricsInitErr = meter.Int64Counter(
			"sequence.handler.invocations_total",
			metric.WithDescription("Handler functions invoked while evaluating steps"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runEvaluationCounter, metricsInitErr = meter.Int64Counter(
			"sequence.run.evaluations_total",
			metric.WithDescription("Sequence runs partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runDurationHistogram, metricsInitErr = meter.Float64Histogram(
			"sequence.run.duration_ms",
			metric.WithDescription("Observed sequence run latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
