package logging

import (
	"context"
	"log/slog"
)

// Sink forwards pre-formatted trace messages to a slog logger. It satisfies
// engine.LogSink.
type Sink struct {
	logger *slog.Logger
}

// NewSink wraps logger. A nil logger falls back to slog.Default at call time.
func NewSink(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) log() *slog.Logger {
	if s == nil || s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Info logs msg at info level.
func (s *Sink) Info(msg string) { s.log().Log(context.Background(), slog.LevelInfo, msg) }

// Debug logs msg at debug level.
func (s *Sink) Debug(msg string) { s.log().Log(context.Background(), slog.LevelDebug, msg) }

// Error logs msg at error level.
func (s *Sink) Error(msg string) { s.log().Log(context.Background(), slog.LevelError, msg) }

// NopSink discards every message.
type NopSink struct{}

func (NopSink) Info(string)  {}
func (NopSink) Debug(string) {}
func (NopSink) Error(string) {}
