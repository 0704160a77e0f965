package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseLevel(raw), "level %q", raw)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Output: &buf})

	logger.Debug("hidden")
	logger.Info("shown", "sequence", "demo")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "demo", entry["sequence"])
}

func TestNewLoggerPretty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Pretty: true, Output: &buf})

	logger.Debug("trace line")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), `msg="trace line"`)
}

func TestSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(NewLogger(Config{Level: "debug", Pretty: true, Output: &buf}))

	sink.Debug("d")
	sink.Info("i")
	sink.Error("e")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "level=DEBUG")
	assert.Contains(t, string(lines[0]), "msg=d")
	assert.Contains(t, string(lines[1]), "level=INFO")
	assert.Contains(t, string(lines[1]), "msg=i")
	assert.Contains(t, string(lines[2]), "level=ERROR")
	assert.Contains(t, string(lines[2]), "msg=e")
}

func TestNopSink(t *testing.T) {
	var sink NopSink
	assert.NotPanics(t, func() {
		sink.Debug("x")
		sink.Info("x")
		sink.Error("x")
	})
}
