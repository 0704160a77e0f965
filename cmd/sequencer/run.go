package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/polisai/polis-sequence/pkg/config"
	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/polisai/polis-sequence/pkg/engine"
	"github.com/polisai/polis-sequence/pkg/engine/runtime"
	"github.com/polisai/polis-sequence/pkg/logging"
	"github.com/polisai/polis-sequence/pkg/sequences"
	"github.com/spf13/cobra"
)

// runOptions holds the flags shared by run and watch.
type runOptions struct {
	Sequence   string
	Definition string
	Policy     string
	Inputs     []string
	Outputs    []string
	Quiet      bool
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("input", "i", nil, "Input field as key=value (repeatable)")
	cmd.Flags().StringArrayP("output", "o", nil, "Initial output field as key=value; values are parsed as JSON scalars (repeatable)")
	cmd.Flags().StringP("definition", "d", "", "Path to a sequence definition file (YAML)")
	cmd.Flags().StringP("policy", "p", "", "Path to a policy file (YAML)")
	cmd.Flags().BoolP("quiet", "q", false, "Disable step trace logging (trace lines are logged at debug level and need --log-level debug)")
}

func parseRunOptions(cmd *cobra.Command, args []string) (*runOptions, error) {
	opts := &runOptions{}
	if len(args) > 0 {
		opts.Sequence = args[0]
	}

	var err error
	if opts.Inputs, err = cmd.Flags().GetStringArray("input"); err != nil {
		return nil, fmt.Errorf("failed to get input flag: %w", err)
	}
	if opts.Outputs, err = cmd.Flags().GetStringArray("output"); err != nil {
		return nil, fmt.Errorf("failed to get output flag: %w", err)
	}
	if opts.Definition, err = cmd.Flags().GetString("definition"); err != nil {
		return nil, fmt.Errorf("failed to get definition flag: %w", err)
	}
	if opts.Policy, err = cmd.Flags().GetString("policy"); err != nil {
		return nil, fmt.Errorf("failed to get policy flag: %w", err)
	}
	if opts.Quiet, err = cmd.Flags().GetBool("quiet"); err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	if opts.Sequence == "" && opts.Definition == "" {
		return nil, fmt.Errorf("no sequence specified; use one of %s or --definition", strings.Join(sequences.Names(), ", "))
	}
	return opts, nil
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [sequence]",
		Short: "Evaluate a sequence once and print the result as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseRunOptions(cmd, args)
			if err != nil {
				return err
			}
			return a.run(cmd, opts)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func (a *app) run(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	stopTelemetry, err := a.startTelemetry(ctx)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	def, defaults, err := loadDefinition(opts)
	if err != nil {
		return err
	}
	policy := a.basePolicy(defaults)
	if opts.Policy != "" {
		file, err := config.LoadPolicyFile(opts.Policy)
		if err != nil {
			return err
		}
		policy = policy.Override(file)
	}
	if opts.Quiet {
		policy = silence(policy)
	}

	processor, err := a.newProcessor(def, policy, nil)
	if err != nil {
		return err
	}
	input, initial, err := parseRecords(opts)
	if err != nil {
		return err
	}

	res := processor.Evaluate(ctx, initial, input)
	if err := writeResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.IsErr() {
		return fmt.Errorf("%w: %s: %s", errEvaluationFailed, res.Err().Error(), res.Err().Message)
	}
	return nil
}

// loadDefinition resolves the sequence from a definition file or the
// built-ins. The returned policy holds the file's defaults, if any.
func loadDefinition(opts *runOptions) (domain.SequenceDefinition, *config.PolicyConfig, error) {
	if opts.Definition == "" {
		def, ok := sequences.Lookup(opts.Sequence)
		if !ok {
			return domain.SequenceDefinition{}, nil, fmt.Errorf("unknown sequence %q; available: %s", opts.Sequence, strings.Join(sequences.Names(), ", "))
		}
		return def, nil, nil
	}

	file, err := config.LoadSequenceFile(opts.Definition)
	if err != nil {
		return domain.SequenceDefinition{}, nil, err
	}
	def, err := file.Build(sequences.NewRegistry())
	if err != nil {
		return domain.SequenceDefinition{}, nil, fmt.Errorf("sequence file %s: %w", opts.Definition, err)
	}
	return def, file.Defaults, nil
}

// basePolicy layers the definition file defaults over the configured ones.
func (a *app) basePolicy(defaults *config.PolicyConfig) config.PolicyConfig {
	policy := a.cfg.Defaults
	if defaults != nil {
		policy = policy.Override(*defaults)
	}
	return policy
}

// silence disables trace logging regardless of any policy.
func silence(policy config.PolicyConfig) config.PolicyConfig {
	disabled := false
	policy.LoggingEnabled = &disabled
	return policy
}

func (a *app) newProcessor(def domain.SequenceDefinition, policy config.PolicyConfig, recorders []runtime.Recorder) (*engine.SequenceProcessor, error) {
	evalOpts, err := policy.Options()
	if err != nil {
		return nil, err
	}
	return engine.NewSequenceProcessor(engine.SequenceProcessorConfig{
		Definition: def,
		Options:    &evalOpts,
		Sink:       logging.NewSink(a.logger),
		Recorders:  recorders,
	})
}

func parseRecords(opts *runOptions) (domain.Record, domain.Record, error) {
	input, err := parseAssignments(opts.Inputs, false)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --input: %w", err)
	}
	initial, err := parseAssignments(opts.Outputs, true)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --output: %w", err)
	}
	return input, initial, nil
}

// parseAssignments turns key=value pairs into a record. With typed set,
// values are decoded as JSON scalars and fall back to plain strings.
func parseAssignments(pairs []string, typed bool) (domain.Record, error) {
	record := make(domain.Record, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		if typed {
			record[key] = parseScalar(value)
		} else {
			record[key] = value
		}
	}
	return record, nil
}

// parseScalar decodes a JSON scalar. Integral numbers become int.
func parseScalar(raw string) any {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil || decoder.More() {
		return raw
	}
	switch v := value.(type) {
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return raw
	case map[string]any, []any:
		return raw
	default:
		return v
	}
}

type stepErrorView struct {
	StepKey string        `json:"stepKey"`
	Message string        `json:"message"`
	State   domain.Record `json:"state"`
	Input   domain.Record `json:"input"`
}

type resultView struct {
	Ok     bool           `json:"ok"`
	Output domain.Record  `json:"output,omitempty"`
	Error  *stepErrorView `json:"error,omitempty"`
}

func writeResult(w io.Writer, res engine.Evaluation) error {
	view := resultView{Ok: res.IsOk()}
	if res.IsOk() {
		view.Output = res.Value()
	} else {
		stepErr := res.Err()
		view.Error = &stepErrorView{
			StepKey: stepErr.StepKey,
			Message: stepErr.Message,
			State:   stepErr.State,
			Input:   stepErr.Input,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(view); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
