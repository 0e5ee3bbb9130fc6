package style

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrExpression  = errors.New("invalid expression")
	ErrUnsupported = errors.New("unsupported expression")
)

// Interpolate builds a linear interpolate expression over input. stops are
// alternating stop inputs and outputs.
func Interpolate(input any, stops ...any) []any {
	expr := []any{"interpolate", []any{"linear"}, input}
	return append(expr, stops...)
}

// Get reads a feature property.
func Get(property string) []any { return []any{"get", property} }

// Zoom reads the current camera zoom.
func Zoom() []any { return []any{"zoom"} }

// HeatmapDensity reads the heatmap kernel density at a pixel.
func HeatmapDensity() []any { return []any{"heatmap-density"} }

// FeatureState reads a key from the engine's feature-state store.
func FeatureState(key string) []any { return []any{"feature-state", key} }

// EvalContext carries the inputs an expression may read.
type EvalContext struct {
	Zoom           float64
	HeatmapDensity float64
	Properties     map[string]any
	FeatureState   map[string]any
}

// Eval evaluates the expression subset used by this package's documents.
// Numeric interpolate outputs only; color ramps are left to the engine.
func Eval(expr any, ctx EvalContext) (any, error) {
	arr, ok := expr.([]any)
	if !ok {
		return expr, nil
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrExpression)
	}
	op, ok := arr[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: operator must be a string, got %T", ErrExpression, arr[0])
	}
	args := arr[1:]

	switch op {
	case "zoom":
		return ctx.Zoom, nil
	case "heatmap-density":
		return ctx.HeatmapDensity, nil
	case "get":
		key, err := keyArg(op, args)
		if err != nil {
			return nil, err
		}
		return ctx.Properties[key], nil
	case "feature-state":
		key, err := keyArg(op, args)
		if err != nil {
			return nil, err
		}
		return ctx.FeatureState[key], nil
	case "boolean":
		return evalBoolean(args, ctx)
	case "case":
		return evalCase(args, ctx)
	case "==":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: == expects 2 arguments, got %d", ErrExpression, len(args))
		}
		a, err := Eval(args[0], ctx)
		if err != nil {
			return nil, err
		}
		b, err := Eval(args[1], ctx)
		if err != nil {
			return nil, err
		}
		return equal(a, b), nil
	case "interpolate":
		return evalInterpolate(args, ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, op)
}

// EvalNumber evaluates expr and requires a numeric result.
func EvalNumber(expr any, ctx EvalContext) (float64, error) {
	v, err := Eval(expr, ctx)
	if err != nil {
		return 0, err
	}
	n, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: expected number, got %T", ErrExpression, v)
	}
	return n, nil
}

func keyArg(op string, args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s expects 1 argument, got %d", ErrExpression, op, len(args))
	}
	key, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s key must be a string", ErrExpression, op)
	}
	return key, nil
}

// evalBoolean returns the first argument that evaluates to a bool.
func evalBoolean(args []any, ctx EvalContext) (any, error) {
	for _, a := range args {
		v, err := Eval(a, ctx)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: boolean: no argument evaluated to a bool", ErrExpression)
}

func evalCase(args []any, ctx EvalContext) (any, error) {
	if len(args) < 3 || len(args)%2 == 0 {
		return nil, fmt.Errorf("%w: case expects condition/output pairs and a fallback", ErrExpression)
	}
	for i := 0; i+1 < len(args); i += 2 {
		cond, err := Eval(args[i], ctx)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: case condition must be a bool, got %T", ErrExpression, cond)
		}
		if b {
			return Eval(args[i+1], ctx)
		}
	}
	return Eval(args[len(args)-1], ctx)
}

// evalInterpolate clamps to the first and last stops and evaluates only the
// outputs it needs, so a stop reading a missing property is harmless when the
// input falls elsewhere.
func evalInterpolate(args []any, ctx EvalContext) (any, error) {
	if len(args) < 4 || len(args)%2 != 0 {
		return nil, fmt.Errorf("%w: interpolate expects a type, an input and stop pairs", ErrExpression)
	}
	kind, ok := args[0].([]any)
	if !ok || len(kind) == 0 || kind[0] != "linear" {
		return nil, fmt.Errorf("%w: interpolation type %v", ErrUnsupported, args[0])
	}
	in, err := EvalNumber(args[1], ctx)
	if err != nil {
		return nil, err
	}

	stops := args[2:]
	n := len(stops) / 2
	inputs := make([]float64, n)
	for i := range n {
		v, ok := toFloat(stops[2*i])
		if !ok {
			return nil, fmt.Errorf("%w: stop input %v is not a number", ErrExpression, stops[2*i])
		}
		if i > 0 && v <= inputs[i-1] {
			return nil, fmt.Errorf("%w: stop inputs must be strictly ascending", ErrExpression)
		}
		inputs[i] = v
	}

	if in <= inputs[0] {
		return EvalNumber(stops[1], ctx)
	}
	if in >= inputs[n-1] {
		return EvalNumber(stops[2*n-1], ctx)
	}
	for i := 0; i < n-1; i++ {
		lo, hi := inputs[i], inputs[i+1]
		if in < lo || in >= hi {
			continue
		}
		a, err := EvalNumber(stops[2*i+1], ctx)
		if err != nil {
			return nil, err
		}
		b, err := EvalNumber(stops[2*i+3], ctx)
		if err != nil {
			return nil, err
		}
		t := (in - lo) / (hi - lo)
		return a + (b-a)*t, nil
	}
	return nil, fmt.Errorf("%w: input %v outside stops", ErrExpression, in)
}

func equal(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
