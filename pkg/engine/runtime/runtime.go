// Package runtime defines the contracts shared by the sequence processor and
// its observers, keeping telemetry decoupled from execution mechanics.
package runtime

import (
	"context"
	"time"
)

// StepState is how a step ended:
//
//	pending → skipped | complete | aborted | failed
//
// A step refused by the ThrowException not-null policy ends as aborted or
// failed, with StepReport.Blocked set.
type StepState string

const (
	// StatePending is the state of a step that has not been entered yet.
	StatePending StepState = "pending"
	// StateSkipped means the field was already set and the not-null policy was Return.
	StateSkipped StepState = "skipped"
	// StateComplete means the chain produced the step's value.
	StateComplete StepState = "complete"
	// StateAborted means the step failed and the failure was absorbed.
	StateAborted StepState = "aborted"
	// StateFailed means the step failed and the failure aborts the run.
	StateFailed StepState = "failed"
)

// RunOutcome classifies a whole sequence run.
type RunOutcome string

const (
	// OutcomeOk indicates every step completed or was absorbed.
	OutcomeOk RunOutcome = "ok"
	// OutcomeErr indicates a step failure reached the run boundary.
	OutcomeErr RunOutcome = "err"
)

// StepReport describes how one step of one run ended.
type StepReport struct {
	Sequence        string
	RunID           string
	StepKey         string
	Position        int
	State           StepState
	Blocked         bool
	HandlersInvoked int
	Duration        time.Duration
	ErrorMessage    string
}

// RunReport describes how one sequence run ended.
type RunReport struct {
	Sequence   string
	RunID      string
	Outcome    RunOutcome
	FailedStep string
	Steps      int
	Duration   time.Duration
}

// Recorder observes step and run completion. Implementations must not block
// for long and can never influence the run's result.
type Recorder interface {
	RecordStep(ctx context.Context, report StepReport)
	RecordRun(ctx context.Context, report RunReport)
}
