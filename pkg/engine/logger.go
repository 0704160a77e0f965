package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polisai/polis-sequence/pkg/domain"
)

// LogSink receives formatted trace lines. logging.Sink adapts an slog.Logger
// to it.
type LogSink interface {
	Info(msg string)
	Debug(msg string)
	Error(msg string)
}

// SequenceLogger emits sequence-level trace lines.
type SequenceLogger struct {
	enabled      bool
	sequenceName string
	sink         LogSink
}

// NewSequenceLogger creates a logger for one sequence. A disabled logger
// emits nothing.
func NewSequenceLogger(enabled bool, sequenceName string, sink LogSink) *SequenceLogger {
	return &SequenceLogger{enabled: enabled, sequenceName: sequenceName, sink: sink}
}

// Log emits an action together with the current state and input.
func (l *SequenceLogger) Log(action string, state, input domain.Record) {
	l.emit(action, l.sequenceName, "State:", state, "Input:", input)
}

// LogError emits an action together with a step failure and its captured context.
func (l *SequenceLogger) LogError(action string, stepErr *domain.StepError) {
	l.emit(action, l.sequenceName, "Error:", stepErr, "Reason:", stepErr.Message,
		"State:", stepErr.State, "Input:", stepErr.Input)
}

func (l *SequenceLogger) emit(items ...any) {
	if l == nil || !l.enabled || l.sink == nil {
		return
	}
	l.sink.Debug(formatItems(items...))
}

// StepLogger emits step-level trace lines through its sequence logger.
type StepLogger struct {
	stepKey string
	logger  *SequenceLogger
}

// NewStepLogger creates a logger labelled with stepKey.
func NewStepLogger(stepKey string, logger *SequenceLogger) *StepLogger {
	return &StepLogger{stepKey: stepKey, logger: logger}
}

// Log emits an action together with the current state and input.
func (l *StepLogger) Log(action string, state, input domain.Record) {
	l.logger.emit(action, l.stepKey, "State:", state, "Input:", input)
}

// formatItems renders items one per line. Strings pass through, errors are
// reduced to their message and everything else is JSON encoded.
func formatItems(items ...any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, formatItem(item))
	}
	return strings.Join(parts, "\n")
}

func formatItem(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case error:
		return v.Error()
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprintf("%v", item)
	}
	return string(data)
}
