package telemetry

import (
	"context"
	"net/http"

	"github.com/polisai/polis-sequence/pkg/engine/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exposes step and run outcomes as Prometheus metrics on a
// private registry. It implements runtime.Recorder.
type PrometheusRecorder struct {
	stepsTotal         *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	handlerInvocations *prometheus.CounterVec
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	policyReloads      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusRecorder creates a recorder with all sequencer metrics registered.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	r := &PrometheusRecorder{
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_step_evaluations_total",
				Help: "Total number of step evaluations by terminal state",
			},
			[]string{"sequence", "step", "state"},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sequencer_step_duration_seconds",
				Help:    "Step evaluation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sequence", "step"},
		),

		handlerInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_handler_invocations_total",
				Help: "Total number of handler functions invoked",
			},
			[]string{"sequence", "step"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_runs_total",
				Help: "Total number of sequence runs by outcome",
			},
			[]string{"sequence", "outcome"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sequencer_run_duration_seconds",
				Help:    "Sequence run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sequence"},
		),

		policyReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_policy_reloads_total",
				Help: "Total number of policy file reloads by status",
			},
			[]string{"status"},
		),

		registry: registry,
	}

	registry.MustRegister(
		r.stepsTotal,
		r.stepDuration,
		r.handlerInvocations,
		r.runsTotal,
		r.runDuration,
		r.policyReloads,
	)

	return r
}

// RecordStep records the terminal state and latency of one step.
func (r *PrometheusRecorder) RecordStep(_ context.Context, report runtime.StepReport) {
	r.stepsTotal.WithLabelValues(report.Sequence, report.StepKey, string(report.State)).Inc()
	r.stepDuration.WithLabelValues(report.Sequence, report.StepKey).Observe(report.Duration.Seconds())
	if report.HandlersInvoked > 0 {
		r.handlerInvocations.WithLabelValues(report.Sequence, report.StepKey).Add(float64(report.HandlersInvoked))
	}
}

// RecordRun records the outcome and latency of one run.
func (r *PrometheusRecorder) RecordRun(_ context.Context, report runtime.RunReport) {
	r.runsTotal.WithLabelValues(report.Sequence, string(report.Outcome)).Inc()
	r.runDuration.WithLabelValues(report.Sequence).Observe(report.Duration.Seconds())
}

// RecordPolicyReload records a policy file reload attempt ("success" or "error").
func (r *PrometheusRecorder) RecordPolicyReload(status string) {
	r.policyReloads.WithLabelValues(status).Inc()
}

// Handler returns the HTTP handler serving the recorder's registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}
