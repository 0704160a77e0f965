// Package main is the entry point for the sequencer binary.
// It evaluates built-in or declarative sequences from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/polisai/polis-sequence/pkg/config"
	"github.com/polisai/polis-sequence/pkg/logging"
	"github.com/polisai/polis-sequence/pkg/sequences"
	"github.com/polisai/polis-sequence/pkg/telemetry"
	"github.com/spf13/cobra"
)

const telemetryShutdownTimeout = 5 * time.Second

// errEvaluationFailed marks a run that finished with a step error. The result
// has already been printed.
var errEvaluationFailed = errors.New("sequence evaluation failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by subcommands once the root flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// newRootCmd creates the root command for sequencer
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "sequencer",
		Short: "Evaluate ordered step sequences",
		Long: `Evaluate sequences of steps, each deriving one output field from the
run input and the output accumulated so far.

Example:
  sequencer run root-of-squares --input a=12 --input b=14`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Use human readable log output")

	rootCmd.AddCommand(newListCmd(), newRunCmd(a), newWatchCmd(a))
	return rootCmd
}

// init loads configuration and installs the process logger.
func (a *app) init(cmd *cobra.Command) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}
	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return fmt.Errorf("failed to get pretty flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Flags take precedence over file and environment.
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}
	if pretty {
		cfg.Logging.Pretty = true
	}

	a.cfg = cfg
	a.logger = logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger)
	return nil
}

// startTelemetry installs the trace provider when an endpoint is configured.
func (a *app) startTelemetry(ctx context.Context) (func(), error) {
	shutdown, err := telemetry.SetupProvider(ctx, a.cfg.TelemetrySetup())
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown error", "error", err)
		}
	}, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in sequences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range sequences.Names() {
				def, _ := sequences.Lookup(name)
				fmt.Fprintf(out, "%s\t%s\n", name, strings.Join(def.StepOrder(), " -> "))
			}
			return nil
		},
	}
}
