// Package config provides configuration structures and loading logic for the
// sequencer: the application config, declarative sequence files and the
// watched policy file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/polisai/polis-sequence/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the sequencer.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Defaults  PolicyConfig    `yaml:"defaults"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	ServiceName        string            `yaml:"service_name"`
	ServiceVersion     string            `yaml:"service_version"`
	OTLPEndpoint       string            `yaml:"otlp_endpoint"`
	Insecure           bool              `yaml:"insecure"`
	Environment        string            `yaml:"environment"`
	Headers            map[string]string `yaml:"headers"`
	ResourceAttributes map[string]string `yaml:"resource_attributes"`
	// SampleRatio is the fraction of runs traced, in [0, 1]. Zero traces every run.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: telemetry.DefaultServiceName,
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SEQUENCER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("SEQUENCER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("SEQUENCER_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("SEQUENCER_METRICS_ADDR"); val != "" {
		cfg.Metrics.Address = val
	}
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration: %w", err)
	}
	if _, err := c.Defaults.Options(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// EvaluationOptions returns the configured run-level defaults.
func (c *Config) EvaluationOptions() (domain.EvaluationOptions, error) {
	return c.Defaults.Options()
}

// TelemetrySetup converts the telemetry section for telemetry.SetupProvider.
func (c *Config) TelemetrySetup() telemetry.Config {
	return telemetry.Config{
		ServiceName:        c.Telemetry.ServiceName,
		ServiceVersion:     c.Telemetry.ServiceVersion,
		Endpoint:           c.Telemetry.OTLPEndpoint,
		Environment:        c.Telemetry.Environment,
		Insecure:           c.Telemetry.Insecure,
		Headers:            c.Telemetry.Headers,
		ResourceAttributes: c.Telemetry.ResourceAttributes,
		SampleRatio:        c.Telemetry.SampleRatio,
	}
}

// Validate performs validation of telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = telemetry.DefaultServiceName
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio %v must be between 0 and 1", c.SampleRatio)
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}
