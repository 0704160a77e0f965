package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/polisai/polis-sequence/pkg/engine"
	"gopkg.in/yaml.v3"
)

// ErrUnknownHandler is returned when a sequence file names a handler the
// registry does not know.
var ErrUnknownHandler = errors.New("unknown handler")

// SequenceFile is the declarative form of a sequence definition. Handlers are
// referenced by registry name.
type SequenceFile struct {
	Name     string              `yaml:"name" json:"name"`
	Order    []string            `yaml:"order,omitempty" json:"order,omitempty"`
	Defaults *PolicyConfig       `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Steps    map[string]StepSpec `yaml:"steps" json:"steps"`
}

// StepSpec declares one step of a sequence file.
type StepSpec struct {
	Index    int           `yaml:"index" json:"index"`
	Handlers []string      `yaml:"handlers" json:"handlers"`
	Policy   *PolicyConfig `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// LoadSequenceFile reads and parses a sequence file.
func LoadSequenceFile(path string) (*SequenceFile, error) {
	//nolint:gosec // Sequence file path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence file %s: %w", path, err)
	}
	file, err := ParseSequenceFile(data)
	if err != nil {
		return nil, fmt.Errorf("sequence file %s: %w", path, err)
	}
	return file, nil
}

// ParseSequenceFile decodes YAML, falling back to JSON.
func ParseSequenceFile(data []byte) (*SequenceFile, error) {
	var file SequenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse sequence file: %w", err)
		}
	}
	return &file, nil
}

// Build resolves handler names against registry and returns the validated
// definition. The file's defaults are checked but not applied; callers layer
// them with Defaults or take them from Options.
func (f *SequenceFile) Build(registry *engine.HandlerRegistry) (domain.SequenceDefinition, error) {
	if f.Defaults != nil {
		if _, err := f.Defaults.StepPolicy(); err != nil {
			return domain.SequenceDefinition{}, fmt.Errorf("defaults: %w", err)
		}
	}

	steps := make(map[string]domain.Step, len(f.Steps))
	for key, spec := range f.Steps {
		step := domain.Step{Index: spec.Index}
		for _, name := range spec.Handlers {
			handler, _, ok := registry.Resolve(name)
			if !ok {
				return domain.SequenceDefinition{}, domain.NewValidationError(key, "handlers",
					fmt.Sprintf("unknown handler %q", name), ErrUnknownHandler)
			}
			step.Handlers = append(step.Handlers, handler)
		}
		if spec.Policy != nil {
			policy, err := spec.Policy.StepPolicy()
			if err != nil {
				return domain.SequenceDefinition{}, domain.NewValidationError(key, "policy", err.Error(), err)
			}
			step.Policy = &policy
		}
		steps[key] = step
	}

	def := domain.SequenceDefinition{Name: f.Name, Steps: steps, Order: f.Order}
	if err := def.Validate(); err != nil {
		return domain.SequenceDefinition{}, err
	}
	return def, nil
}

// Options converts the file's defaults into run-level options. It returns nil
// when the file declares none.
func (f *SequenceFile) Options() (*domain.EvaluationOptions, error) {
	if f.Defaults == nil {
		return nil, nil
	}
	opts, err := f.Defaults.Options()
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	return &opts, nil
}
