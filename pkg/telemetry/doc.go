// Package telemetry wires OpenTelemetry and Prometheus instrumentation for
// sequence processors.
//
// It centralises trace provider setup, owns the otel metric instruments the
// processor records step and run outcomes into, and offers a Prometheus
// recorder for processes that expose a scrape endpoint instead of pushing
// OTLP.
package telemetry
