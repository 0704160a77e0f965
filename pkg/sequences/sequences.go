// Package sequences ships the built-in sequence definitions and exposes their
// handlers by name for declarative sequence files.
package sequences

import (
	"fmt"
	"slices"
	"sort"

	"github.com/polisai/polis-sequence/pkg/domain"
	"github.com/polisai/polis-sequence/pkg/engine"
)

// Built-in sequence names.
const (
	RootOfSquaresName = "root-of-squares"
	DoubleConvertName = "double-convert"
)

// RootOfSquares converts input fields "a" and "b" to integers, squares them
// and computes the root of their sum into "evaluateC".
func RootOfSquares() domain.SequenceDefinition {
	return domain.SequenceDefinition{
		Name:  RootOfSquaresName,
		Order: []string{"convertA", "convertB", "squareA", "squareB", "evaluateC"},
		Steps: map[string]domain.Step{
			"convertA":  {Index: 0, Handlers: []domain.Handler{ConvertA}},
			"convertB":  {Index: 1, Handlers: []domain.Handler{ConvertB}},
			"squareA":   {Index: 2, Handlers: []domain.Handler{SquareA}},
			"squareB":   {Index: 3, Handlers: []domain.Handler{SquareB}},
			"evaluateC": {Index: 4, Handlers: []domain.Handler{RootC}},
		},
	}
}

// DoubleConvert parses input field "a" and doubles it in a second pass of the
// same handler, then adds 100 into "processB".
func DoubleConvert() domain.SequenceDefinition {
	return domain.SequenceDefinition{
		Name:  DoubleConvertName,
		Order: []string{"convertA", "processB"},
		Steps: map[string]domain.Step{
			"convertA": {
				Index:    0,
				Handlers: []domain.Handler{ConvertDouble, ConvertDouble},
				Policy: &domain.StepPolicy{
					WhenNotNull:    domain.NotNullReevaluate,
					WhenNotNullSFA: domain.ChainEvaluateAll,
					OnStepError:    domain.StepErrorThrowException,
				},
			},
			"processB": {Index: 1, Handlers: []domain.Handler{ProcessB}},
		},
	}
}

var builtins = map[string]func() domain.SequenceDefinition{
	RootOfSquaresName: RootOfSquares,
	DoubleConvertName: DoubleConvert,
}

// Lookup returns a fresh copy of a built-in definition.
func Lookup(name string) (domain.SequenceDefinition, bool) {
	build, ok := builtins[name]
	if !ok {
		return domain.SequenceDefinition{}, false
	}
	return build(), true
}

// Names returns the built-in sequence names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type namedHandler struct {
	kind    string
	handler domain.Handler
	aliases []string
}

var handlerTable = []namedHandler{
	{kind: "convert.a", handler: ConvertA},
	{kind: "convert.b", handler: ConvertB},
	{kind: "square.a", handler: SquareA},
	{kind: "square.b", handler: SquareB},
	{kind: "root.c", handler: RootC, aliases: []string{"evaluate.c"}},
	{kind: "convert.double", handler: ConvertDouble},
	{kind: "process.b", handler: ProcessB},
}

// HandlerVersion is the version every built-in handler is registered under.
const HandlerVersion = "v1"

// RegisterHandlers adds the built-in handlers to registry as kind@v1, with
// the bare kind as an alias.
func RegisterHandlers(registry *engine.HandlerRegistry) error {
	for _, h := range handlerTable {
		if err := registry.Register(h.kind, HandlerVersion, h.handler, slices.Clone(h.aliases)...); err != nil {
			return fmt.Errorf("register built-in handler %s: %w", h.kind, err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in handlers.
func NewRegistry() *engine.HandlerRegistry {
	registry := engine.NewHandlerRegistry()
	if err := RegisterHandlers(registry); err != nil {
		panic(err)
	}
	return registry
}
