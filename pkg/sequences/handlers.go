package sequences

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/polisai/polis-sequence/pkg/domain"
)

// Handler failures. The messages are reported verbatim as step error reasons.
//
//nolint:staticcheck // capitalised messages are part of the output contract
var (
	ErrNoValueToConvert = errors.New("No value to convert")
	ErrNotANumber       = errors.New("input is not a number")
	ErrNoValueToSquare  = errors.New("No value to square")
	ErrCannotRoot       = errors.New("Cannot calculate root for C")
	ErrNothingToProcess = errors.New("no input to process")
)

// leadingInt matches the integer prefix of a string, so "12px" parses as 12.
var leadingInt = regexp.MustCompile(`^\s*[+-]?\d+`)

// parseLeadingInt parses the decimal integer prefix of raw.
func parseLeadingInt(raw string) (int, error) {
	match := leadingInt.FindString(raw)
	if match == "" {
		return 0, ErrNotANumber
	}
	n, err := strconv.Atoi(strings.TrimSpace(match))
	if err != nil {
		return 0, ErrNotANumber
	}
	return n, nil
}

// convert parses a non-empty string input field.
func convert(input domain.Record, field string) (any, error) {
	raw, _ := domain.Field[string](input, field)
	if raw == "" {
		return nil, ErrNoValueToConvert
	}
	return parseLeadingInt(raw)
}

// square squares a previously computed output field.
func square(output domain.Record, field string) (any, error) {
	n, ok := domain.Field[int](output, field)
	if !ok || n == 0 {
		return nil, ErrNoValueToSquare
	}
	return n * n, nil
}

// ConvertA parses input field "a".
func ConvertA(_ context.Context, hc domain.HandlerContext) (any, error) {
	return convert(hc.Input, "a")
}

// ConvertB parses input field "b".
func ConvertB(_ context.Context, hc domain.HandlerContext) (any, error) {
	return convert(hc.Input, "b")
}

// SquareA squares output field "convertA".
func SquareA(_ context.Context, hc domain.HandlerContext) (any, error) {
	return square(hc.Output, "convertA")
}

// SquareB squares output field "convertB".
func SquareB(_ context.Context, hc domain.HandlerContext) (any, error) {
	return square(hc.Output, "convertB")
}

// RootC returns sqrt(squareA + squareB).
func RootC(_ context.Context, hc domain.HandlerContext) (any, error) {
	a, okA := domain.Field[int](hc.Output, "squareA")
	b, okB := domain.Field[int](hc.Output, "squareB")
	if !okA || !okB || a == 0 || b == 0 {
		return nil, ErrCannotRoot
	}
	return math.Sqrt(float64(a + b)), nil
}

// ConvertDouble doubles the current "convertA" value, or parses input field
// "a" when there is none yet.
func ConvertDouble(_ context.Context, hc domain.HandlerContext) (any, error) {
	if current, ok := domain.Field[int](hc.Output, "convertA"); ok {
		return current * 2, nil
	}
	raw, _ := domain.Field[string](hc.Input, "a")
	return parseLeadingInt(raw)
}

// ProcessB adds 100 to "convertA".
func ProcessB(_ context.Context, hc domain.HandlerContext) (any, error) {
	current, ok := domain.Field[int](hc.Output, "convertA")
	if !ok {
		return nil, ErrNothingToProcess
	}
	return current + 100, nil
}
