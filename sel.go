// Package sel implements a general-purpose expression language: a
// tokenizer, a recursive-descent parser, a tree-walking interpreter, and an
// adaptive compiler that promotes hot expressions into compiled closures.
//
// Expressions are parsed once and evaluated many times against pluggable
// evaluation contexts:
//
//	expr, err := sel.Parse("order.items.?[price > 100].![name]")
//	ctx := sel.NewStandardContext(nil)
//	out, err := expr.GetValue(ctx, order)
package sel

import (
	"fmt"

	"github.com/oarkflow/sel/metrics"
)

// Parse compiles input into a reusable Expression with the default
// configuration: mixed-mode promotion after the standard threshold.
func Parse(input string) (*Expression, error) {
	return ParseWithConfig(input, &Config{Mode: CompileMixed})
}

// ParseWithConfig is Parse with explicit compiler and logging settings.
func ParseWithConfig(input string, cfg *Config) (*Expression, error) {
	root, err := parseExpressionString(input)
	if err != nil {
		metrics.Parses.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Parses.WithLabelValues("ok").Inc()
	return &Expression{source: input, root: root, config: cfg.normalized()}, nil
}

// MustParse is Parse for expressions known valid at build time; it panics
// on a parse error.
func MustParse(input string) *Expression {
	e, err := Parse(input)
	if err != nil {
		panic(fmt.Sprintf("sel: parse %q: %v", input, err))
	}
	return e
}

// Eval parses and evaluates input once against root using a fresh standard
// context. Convenience for one-shot evaluations; reuse a parsed Expression
// and a configured context on hot paths.
func Eval(input string, root any) (any, error) {
	e, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return e.GetValue(NewStandardContext(root), root)
}

// EvalWithVariables is Eval with #name variable bindings.
func EvalWithVariables(input string, root any, vars map[string]any) (any, error) {
	e, err := Parse(input)
	if err != nil {
		return nil, err
	}
	ctx := NewStandardContext(root)
	for k, v := range vars {
		ctx.SetVariable(k, v)
	}
	return e.GetValue(ctx, root)
}
