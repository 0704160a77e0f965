// Package engine evaluates sequences: ordered steps, each deriving one output
// field from the run input and the output accumulated so far.
//
// Layout:
//
// processor.go - SequenceProcessor construction, Evaluate/Run, policy resolution, recorders
// step.go      - per-step lifecycle, handler chain, panic recovery
// logger.go    - sequence and step trace loggers over a LogSink
// registry.go  - named handler registry used by declarative sequence files
//
// Every run gets a "sequence.evaluate" span with one "sequence.step" child per
// step, and reports step and run outcomes to the telemetry instruments and
// any configured runtime.Recorder.
package engine
