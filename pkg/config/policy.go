package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/polisai/polis-sequence/pkg/domain"
	"gopkg.in/yaml.v3"
)

// PolicyConfig is the YAML form of a step policy. Empty fields inherit.
type PolicyConfig struct {
	WhenNotNull    string `yaml:"when_not_null,omitempty" json:"whenNotNull,omitempty"`
	WhenNotNullSFA string `yaml:"when_not_null_sfa,omitempty" json:"whenNotNullSFA,omitempty"`
	OnStepError    string `yaml:"on_step_error,omitempty" json:"onStepError,omitempty"`
	// LoggingEnabled only applies at run level. Nil means enabled.
	LoggingEnabled *bool `yaml:"logging_enabled,omitempty" json:"loggingEnabled,omitempty"`
}

// StepPolicy parses the policy names. Names are case-insensitive.
func (p PolicyConfig) StepPolicy() (domain.StepPolicy, error) {
	var (
		policy domain.StepPolicy
		err    error
	)
	if p.WhenNotNull != "" {
		if policy.WhenNotNull, err = domain.ParseNotNullPolicy(p.WhenNotNull); err != nil {
			return domain.StepPolicy{}, err
		}
	}
	if p.WhenNotNullSFA != "" {
		if policy.WhenNotNullSFA, err = domain.ParseChainPolicy(p.WhenNotNullSFA); err != nil {
			return domain.StepPolicy{}, err
		}
	}
	if p.OnStepError != "" {
		if policy.OnStepError, err = domain.ParseStepErrorPolicy(p.OnStepError); err != nil {
			return domain.StepPolicy{}, err
		}
	}
	return policy, nil
}

// Options converts p into run-level options, filling unset fields with the
// defaults.
func (p PolicyConfig) Options() (domain.EvaluationOptions, error) {
	policy, err := p.StepPolicy()
	if err != nil {
		return domain.EvaluationOptions{}, fmt.Errorf("invalid policy: %w", err)
	}
	opts := domain.EvaluationOptions{StepPolicy: policy, LoggingEnabled: true}
	if p.LoggingEnabled != nil {
		opts.LoggingEnabled = *p.LoggingEnabled
	}
	return opts.WithDefaults(), nil
}

// Override layers the non-empty fields of other on top of p.
func (p PolicyConfig) Override(other PolicyConfig) PolicyConfig {
	if other.WhenNotNull != "" {
		p.WhenNotNull = other.WhenNotNull
	}
	if other.WhenNotNullSFA != "" {
		p.WhenNotNullSFA = other.WhenNotNullSFA
	}
	if other.OnStepError != "" {
		p.OnStepError = other.OnStepError
	}
	if other.LoggingEnabled != nil {
		enabled := *other.LoggingEnabled
		p.LoggingEnabled = &enabled
	}
	return p
}

// PolicyConfigFrom converts options back into their YAML form.
func PolicyConfigFrom(opts domain.EvaluationOptions) PolicyConfig {
	enabled := opts.LoggingEnabled
	return PolicyConfig{
		WhenNotNull:    string(opts.WhenNotNull),
		WhenNotNullSFA: string(opts.WhenNotNullSFA),
		OnStepError:    string(opts.OnStepError),
		LoggingEnabled: &enabled,
	}
}

// LoadPolicyFile reads a policy file: a YAML (or JSON) document holding the
// PolicyConfig fields at top level.
func LoadPolicyFile(path string) (PolicyConfig, error) {
	//nolint:gosec // Policy file path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyConfig{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return PolicyConfig{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicy decodes a policy document, falling back to JSON, and checks the
// policy names.
func ParsePolicy(data []byte) (PolicyConfig, error) {
	var policy PolicyConfig
	if err := yaml.Unmarshal(data, &policy); err != nil {
		if jsonErr := json.Unmarshal(data, &policy); jsonErr != nil {
			return PolicyConfig{}, fmt.Errorf("failed to parse policy: %w", err)
		}
	}
	if _, err := policy.StepPolicy(); err != nil {
		return PolicyConfig{}, err
	}
	return policy, nil
}
