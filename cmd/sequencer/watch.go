package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/polisai/polis-sequence/pkg/config"
	"github.com/polisai/polis-sequence/pkg/engine/runtime"
	"github.com/polisai/polis-sequence/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const gracefulShutdownTimeout = 5 * time.Second

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [sequence]",
		Short: "Re-evaluate a sequence whenever its policy file changes",
		Long: `Evaluate a sequence with the options from a policy file, then evaluate it
again each time the file changes. Results are printed as JSON, one per run.

Example:
  sequencer watch double-convert --policy policy.yaml --input a=3 --metrics-addr :9464`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseRunOptions(cmd, args)
			if err != nil {
				return err
			}
			if opts.Policy == "" {
				return fmt.Errorf("watch requires --policy")
			}
			metricsAddr, err := cmd.Flags().GetString("metrics-addr")
			if err != nil {
				return fmt.Errorf("failed to get metrics-addr flag: %w", err)
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Address
			}
			return a.watch(cmd, opts, metricsAddr)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled when empty)")
	return cmd
}

func (a *app) watch(cmd *cobra.Command, opts *runOptions, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopTelemetry, err := a.startTelemetry(ctx)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	def, defaults, err := loadDefinition(opts)
	if err != nil {
		return err
	}
	input, initial, err := parseRecords(opts)
	if err != nil {
		return err
	}

	recorder := telemetry.NewPrometheusRecorder()
	base := a.basePolicy(defaults)
	processor, err := a.newProcessor(def, base, []runtime.Recorder{recorder})
	if err != nil {
		return err
	}

	provider, err := config.NewFileProvider(config.FileProviderConfig{
		Path:   opts.Policy,
		Base:   &base,
		Logger: a.logger,
		OnReload: func(err error) {
			if err != nil {
				recorder.RecordPolicyReload("error")
				return
			}
			recorder.RecordPolicyReload("success")
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			a.logger.Warn("policy watcher close error", "error", err)
		}
	}()

	if metricsAddr != "" {
		server, err := startMetricsServer(metricsAddr, recorder, a)
		if err != nil {
			return err
		}
		defer shutdownMetricsServer(server, a)
	}

	a.logger.Info("watching policy file", "sequence", processor.Name(), "policy", opts.Policy)

	out := cmd.OutOrStdout()
	updates := provider.Subscribe()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watch stopped")
			return nil
		case evalOpts := <-updates:
			if opts.Quiet {
				evalOpts.LoggingEnabled = false
			}
			current, err := processor.WithOptions(evalOpts)
			if err != nil {
				a.logger.Error("rejected policy update", "error", err)
				continue
			}
			res := current.Evaluate(ctx, initial, input)
			if err := writeResult(out, res); err != nil {
				return err
			}
			if res.IsErr() {
				a.logger.Warn("sequence evaluation failed", "step", res.Err().StepKey, "reason", res.Err().Message)
			}
		}
	}
}

// startMetricsServer serves the recorder's registry on /metrics.
func startMetricsServer(addr string, recorder *telemetry.PrometheusRecorder, a *app) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(mux, "sequencer.metrics"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server listen error: %w", err)
	}
	a.logger.Info("metrics server listening", "address", ln.Addr().String())

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()
	return server, nil
}

func shutdownMetricsServer(server *http.Server, a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Warn("metrics server shutdown error", "error", err)
	}
}
