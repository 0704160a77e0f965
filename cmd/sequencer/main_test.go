package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/polisai/polis-sequence/pkg/config"
	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodedResult struct {
	Ok     bool           `json:"ok"`
	Output map[string]any `json:"output"`
	Error  *struct {
		StepKey string         `json:"stepKey"`
		Message string         `json:"message"`
		State   map[string]any `json:"state"`
		Input   map[string]any `json:"input"`
	} `json:"error"`
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return stdout.String(), err
}

func decode(t *testing.T, raw string) decodedResult {
	t.Helper()
	var res decodedResult
	require.NoError(t, json.Unmarshal([]byte(raw), &res), "output: %s", raw)
	return res
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestListCommand(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Equal(t,
		"double-convert\tconvertA -> processB\n"+
			"root-of-squares\tconvertA -> convertB -> squareA -> squareB -> evaluateC\n",
		out)
}

func TestRunRootOfSquares(t *testing.T) {
	out, err := execute(t, "run", "root-of-squares", "-q", "-i", "a=12", "-i", "b=14")
	require.NoError(t, err)

	res := decode(t, out)
	require.True(t, res.Ok)
	assert.Nil(t, res.Error)
	assert.InDelta(t, 18.439088914585774, res.Output["evaluateC"], 1e-9)
	assert.EqualValues(t, 144, res.Output["squareA"])
}

func TestRunReportsStepError(t *testing.T) {
	out, err := execute(t, "run", "root-of-squares", "-q", "-i", "a=twelve", "-i", "b=14")
	require.Error(t, err)
	assert.ErrorIs(t, err, errEvaluationFailed)

	res := decode(t, out)
	assert.False(t, res.Ok)
	require.NotNil(t, res.Error)
	assert.Equal(t, "convertA", res.Error.StepKey)
	assert.Equal(t, "input is not a number", res.Error.Message)
	assert.Equal(t, "twelve", res.Error.Input["a"])
	assert.Empty(t, res.Error.State)
}

func TestRunDefinitionFile(t *testing.T) {
	path := writeFile(t, "sequence.yaml", `
name: doubled
defaults:
  on_step_error: Return
steps:
  convertA:
    index: 0
    handlers: [convert.double, convert.double]
    policy:
      when_not_null_sfa: EvaluateAll
  processB:
    index: 1
    handlers: [process.b]
`)

	out, err := execute(t, "run", "--definition", path, "-q", "-i", "a=3")
	require.NoError(t, err)

	res := decode(t, out)
	require.True(t, res.Ok)
	assert.EqualValues(t, 6, res.Output["convertA"])
	assert.EqualValues(t, 106, res.Output["processB"])
}

func TestRunPolicyFileBlocksPopulatedField(t *testing.T) {
	policy := writeFile(t, "policy.yaml", "when_not_null: ThrowException\n")

	out, err := execute(t, "run", "root-of-squares", "-q",
		"--policy", policy,
		"-i", "a=12", "-i", "b=14",
		"-o", "convertA=1")
	require.ErrorIs(t, err, errEvaluationFailed)

	res := decode(t, out)
	require.NotNil(t, res.Error)
	assert.Equal(t, "convertA", res.Error.StepKey)
	assert.Equal(t, "value is not null", res.Error.Message)
	assert.EqualValues(t, 1, res.Error.State["convertA"])
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown sequence", args: []string{"run", "nope"}, want: `unknown sequence "nope"`},
		{name: "no sequence", args: []string{"run"}, want: "no sequence specified"},
		{name: "bad input", args: []string{"run", "root-of-squares", "-i", "a"}, want: "invalid --input"},
		{name: "missing definition", args: []string{"run", "-d", "/does/not/exist.yaml"}, want: "exist.yaml"},
		{name: "bad log level", args: []string{"run", "root-of-squares", "-l", "loud"}, want: "loud"},
		{name: "watch without policy", args: []string{"watch", "root-of-squares"}, want: "watch requires --policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NotErrorIs(t, err, errEvaluationFailed)
		})
	}
}

func TestRunRejectsInvalidDefinitionDefaults(t *testing.T) {
	path := writeFile(t, "sequence.yaml", `
name: broken
defaults:
  on_step_error: Retry
steps:
  convertA: {index: 0, handlers: [convert.a]}
`)

	_, err := execute(t, "run", "--definition", path, "-i", "a=1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
	assert.NotErrorIs(t, err, errEvaluationFailed)
}

func TestBasePolicyLayersDefinitionDefaults(t *testing.T) {
	disabled := false
	a := &app{cfg: &config.Config{Defaults: config.PolicyConfig{
		WhenNotNull:    "Return",
		LoggingEnabled: &disabled,
	}}}

	policy := a.basePolicy(&config.PolicyConfig{OnStepError: "Return"})
	opts, err := policy.Options()
	require.NoError(t, err)
	assert.Equal(t, domain.NotNullReturn, opts.WhenNotNull)
	assert.Equal(t, domain.ChainReturn, opts.WhenNotNullSFA)
	assert.Equal(t, domain.StepErrorReturn, opts.OnStepError)
	assert.False(t, opts.LoggingEnabled)

	assert.Equal(t, a.cfg.Defaults, a.basePolicy(nil))
}

func TestQuietFlagExplainsTraceLevel(t *testing.T) {
	for _, name := range []string{"run", "watch"} {
		cmd, _, err := newRootCmd().Find([]string{name})
		require.NoError(t, err)
		assert.Contains(t, cmd.Flags().Lookup("quiet").Usage, "--log-level debug", name)
	}
}

func TestParseAssignments(t *testing.T) {
	record, err := parseAssignments([]string{"a=12", " b =x=y", "c="}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.Record{"a": "12", "b": "x=y", "c": ""}, record)

	typed, err := parseAssignments([]string{"n=4", "f=1.5", "s=hello", "t=true", "z=null"}, true)
	require.NoError(t, err)
	assert.Equal(t, domain.Record{"n": 4, "f": 1.5, "s": "hello", "t": true, "z": nil}, typed)

	_, err = parseAssignments([]string{"=1"}, false)
	require.Error(t, err)
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{raw: "42", want: 42},
		{raw: "-7", want: -7},
		{raw: "2.25", want: 2.25},
		{raw: `"quoted"`, want: "quoted"},
		{raw: "false", want: false},
		{raw: "plain", want: "plain"},
		{raw: `{"a":1}`, want: `{"a":1}`},
		{raw: "[1,2]", want: "[1,2]"},
		{raw: "1 2", want: "1 2"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseScalar(tt.raw))
		})
	}
}

// syncBuffer lets the test read output while the watch loop writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchReevaluatesOnPolicyChange(t *testing.T) {
	policy := writeFile(t, "policy.yaml", "on_step_error: ThrowException\n")

	var stdout syncBuffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"watch", "root-of-squares", "-q",
		"--policy", policy,
		"-i", "a=0", "-i", "b=14"})
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), `"stepKey": "squareA"`)
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(policy, []byte("on_step_error: Return\n"), 0o600))

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), `"ok": true`)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
