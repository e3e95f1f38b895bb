package sel

import (
	"errors"
	"reflect"

	"github.com/oarkflow/xid"
)

// CompiledStep is one node of a compiled expression: a closure specialized
// to the value shapes the interpreter observed. Steps read and thread the
// chain target through Activation.active.
type CompiledStep func(av *Activation) (any, error)

// Activation carries the per-call evaluation inputs for a compiled
// expression. It is allocated once per GetValue call and mutated in place
// as chain steps advance the active object.
type Activation struct {
	ctx    EvaluationContext
	root   any
	active any
}

// CodeFlow threads type information between node compilations the way the
// interpreter threads values: each Compile records the static type of the
// value its step produces so the parent can specialize on it.
type CodeFlow struct {
	last reflect.Type
}

func (cf *CodeFlow) setLastType(t reflect.Type) { cf.last = t }

func (cf *CodeFlow) lastType() reflect.Type { return cf.last }

// errCompilationOptOut aborts a compilation attempt from deep inside the
// node tree. Nodes panic with it when asked to compile without the exit
// type or cached member information they need; the driver recovers it and
// reports the expression uncompilable rather than failing the evaluation.
var errCompilationOptOut = errors.New("expression is not compilable")

// CompiledExpression is a fully compiled expression: a root step plus a
// unique routine name for logging and metrics.
type CompiledExpression struct {
	name string
	step CompiledStep
}

// Name identifies this compiled routine in logs and metrics.
func (ce *CompiledExpression) Name() string { return ce.name }

// GetValue runs the compiled routine against root in ctx.
func (ce *CompiledExpression) GetValue(ctx EvaluationContext, root any) (any, error) {
	av := &Activation{ctx: ctx, root: root, active: root}
	return ce.step(av)
}

// Compiler turns an interpreted AST into a CompiledExpression. Compilation
// can only succeed after at least one interpreted evaluation has populated
// exit types and resolver caches on the nodes.
type Compiler struct{}

// Compile attempts to compile the tree rooted at node. It returns nil when
// the tree (or any part of it) is not compilable; compilation is best
// effort and never an error the caller must handle.
func (c *Compiler) Compile(node Node) (ce *CompiledExpression, err error) {
	if !node.IsCompilable() {
		return nil, errCompilationOptOut
	}
	defer func() {
		if r := recover(); r != nil {
			if r == errCompilationOptOut {
				ce, err = nil, errCompilationOptOut
				return
			}
			panic(r)
		}
	}()
	cf := &CodeFlow{}
	step := node.Compile(cf)
	if step == nil {
		return nil, errCompilationOptOut
	}
	return &CompiledExpression{
		name: "sel_compiled_" + xid.New().String(),
		step: step,
	}, nil
}
