package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/polisai/polis-sequence/pkg/engine/runtime"
	"github.com/polisai/polis-sequence/pkg/logging"
	"github.com/polisai/polis-sequence/pkg/result"
	"github.com/polisai/polis-sequence/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sequence.engine"

// SequenceProcessor evaluates one sequence definition. It is immutable after
// construction and safe for concurrent use by multiple callers.
type SequenceProcessor struct {
	definition domain.SequenceDefinition
	order      []string
	options    domain.EvaluationOptions
	sink       LogSink
	recorders  []runtime.Recorder
}

// SequenceProcessorConfig holds dependencies for creating a SequenceProcessor.
type SequenceProcessorConfig struct {
	Definition domain.SequenceDefinition
	// Options are the run-level defaults. Nil means DefaultEvaluationOptions.
	Options *domain.EvaluationOptions
	// Sink receives trace lines. Nil logs through slog.Default.
	Sink LogSink
	// Recorders observe step and run outcomes in addition to otel metrics.
	Recorders []runtime.Recorder
}

// Evaluation is the outcome of one run.
type Evaluation = result.Result[domain.Record, *domain.StepError]

// NewSequenceProcessor validates the definition and options and binds them
// into a processor.
func NewSequenceProcessor(cfg SequenceProcessorConfig) (*SequenceProcessor, error) {
	if err := cfg.Definition.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sequence definition: %w", err)
	}

	options := domain.DefaultEvaluationOptions()
	if cfg.Options != nil {
		options = cfg.Options.WithDefaults()
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation options: %w", err)
	}

	sink := cfg.Sink
	if sink == nil {
		sink = logging.NewSink(nil)
	}

	definition := copyDefinition(cfg.Definition)
	return &SequenceProcessor{
		definition: definition,
		order:      definition.StepOrder(),
		options:    options,
		sink:       sink,
		recorders:  slices.Clone(cfg.Recorders),
	}, nil
}

// WithOptions returns a processor sharing p's definition with different
// run-level defaults. p itself is unchanged.
func (p *SequenceProcessor) WithOptions(opts domain.EvaluationOptions) (*SequenceProcessor, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation options: %w", err)
	}
	next := *p
	next.options = opts
	return &next, nil
}

// Name returns the sequence name.
func (p *SequenceProcessor) Name() string {
	return p.definition.Name
}

// Order returns the de-duplicated evaluation order.
func (p *SequenceProcessor) Order() []string {
	return slices.Clone(p.order)
}

// Options returns the run-level defaults.
func (p *SequenceProcessor) Options() domain.EvaluationOptions {
	return p.options
}

// ResolvePolicy returns the effective policy of a step: each field of the
// step's override when set, otherwise the run-level default.
func (p *SequenceProcessor) ResolvePolicy(stepKey string) domain.StepPolicy {
	return p.options.StepPolicy.Merge(p.definition.Steps[stepKey].Policy)
}

// run carries the per-invocation state shared by all steps of one Evaluate call.
type run struct {
	id     string
	input  domain.Record
	logger *SequenceLogger
}

// Evaluate runs every step in order, starting from initialOutput, and returns
// the final output or the first step failure that was not absorbed by its
// policy. It never panics on handler failures.
func (p *SequenceProcessor) Evaluate(ctx context.Context, initialOutput, input domain.Record) Evaluation {
	r := &run{
		id:     uuid.NewString(),
		input:  input.Clone(),
		logger: NewSequenceLogger(p.options.LoggingEnabled, p.definition.Name, p.sink),
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "sequence.evaluate", trace.WithAttributes(
		attribute.String("sequence.name", p.definition.Name),
		attribute.String("sequence.run_id", r.id),
		attribute.Int("sequence.steps", len(p.order)),
	))
	defer span.End()

	start := time.Now()
	output := initialOutput.Clone()
	r.logger.Log("Evaluating sequence:", output, r.input)

	for position, stepKey := range p.order {
		next, stepErr := p.evaluateStep(ctx, r, position, stepKey, output)
		if stepErr != nil {
			r.logger.LogError("Evaluation error:", stepErr)
			span.RecordError(stepErr)
			span.SetStatus(codes.Error, stepErr.Message)
			span.SetAttributes(
				attribute.String("sequence.outcome", string(runtime.OutcomeErr)),
				attribute.String("sequence.failed_step", stepKey),
			)
			p.recordRun(ctx, runtime.RunReport{
				Sequence:   p.definition.Name,
				RunID:      r.id,
				Outcome:    runtime.OutcomeErr,
				FailedStep: stepKey,
				Steps:      position + 1,
				Duration:   time.Since(start),
			})
			return result.Err[domain.Record](stepErr)
		}
		output = next
	}

	r.logger.Log("Evaluation of sequence complete:", output, r.input)
	span.SetAttributes(attribute.String("sequence.outcome", string(runtime.OutcomeOk)))
	p.recordRun(ctx, runtime.RunReport{
		Sequence: p.definition.Name,
		RunID:    r.id,
		Outcome:  runtime.OutcomeOk,
		Steps:    len(p.order),
		Duration: time.Since(start),
	})
	return result.Ok[domain.Record, *domain.StepError](output)
}

// Run is Evaluate in (value, error) form. The error, when non-nil, is a
// *domain.StepError.
func (p *SequenceProcessor) Run(ctx context.Context, initialOutput, input domain.Record) (domain.Record, error) {
	res := p.Evaluate(ctx, initialOutput, input)
	if res.IsErr() {
		return nil, res.Err()
	}
	return res.Value(), nil
}

func (p *SequenceProcessor) recordStep(ctx context.Context, report runtime.StepReport) {
	telemetry.RecordStepMetrics(ctx, report)
	for _, rec := range p.recorders {
		rec.RecordStep(ctx, report)
	}
}

func (p *SequenceProcessor) recordRun(ctx context.Context, report runtime.RunReport) {
	telemetry.RecordRunMetrics(ctx, report)
	for _, rec := range p.recorders {
		rec.RecordRun(ctx, report)
	}
}

// copyDefinition detaches the processor from later changes to the caller's maps and slices.
func copyDefinition(def domain.SequenceDefinition) domain.SequenceDefinition {
	steps := make(map[string]domain.Step, len(def.Steps))
	for key, step := range def.Steps {
		step.Handlers = slices.Clone(step.Handlers)
		if step.Policy != nil {
			policy := *step.Policy
			step.Policy = &policy
		}
		steps[key] = step
	}
	return domain.SequenceDefinition{
		Name:  def.Name,
		Steps: steps,
		Order: slices.Clone(def.Order),
	}
}
