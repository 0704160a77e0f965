// Package domain defines the core types of the sequence evaluation engine.
//
// This package has ZERO external dependencies outside the Go standard library.
// It holds:
//
// - Record, the immutable key/value shape used for sequence inputs and outputs
// - SequenceDefinition and Step, the data-only description of a sequence
// - StepPolicy and EvaluationOptions, the policies governing step edge cases
// - StepError and ValidationError, the structured failures of the engine
//
// Execution lives in the engine package; this package only describes what a
// sequence is and validates that description. The dependency direction is:
//
//	engine, config, telemetry → domain (CORRECT)
//	domain → engine, config, telemetry (FORBIDDEN)
package domain
