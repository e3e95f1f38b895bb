package sel

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// TypedValue carries an evaluation result together with its best-known type
// descriptor. The descriptor may be nil when the value is nil.
type TypedValue struct {
	Value any
	typ   reflect.Type
}

// NullValue is the typed form of nil.
var NullValue = TypedValue{}

// NewTypedValue wraps v, deriving the descriptor from its dynamic type.
func NewTypedValue(v any) TypedValue {
	if v == nil {
		return NullValue
	}
	return TypedValue{Value: v, typ: reflect.TypeOf(v)}
}

// Type returns the descriptor, or nil for a nil value.
func (tv TypedValue) Type() reflect.Type {
	return tv.typ
}

func (tv TypedValue) isNull() bool {
	return tv.Value == nil
}

// Node is one vertex of the parsed AST. The node set is closed: the parser
// is the only producer, and the interpreter and compiler switch over it
// exhaustively.
type Node interface {
	// GetValue evaluates the node against the current expression state.
	GetValue(s *State) (TypedValue, error)
	// SetValue assigns through the node; most nodes are not writable.
	SetValue(s *State, v any) error
	// IsWritable reports whether SetValue can be expected to succeed.
	IsWritable(s *State) (bool, error)
	// IsCompilable reports whether enough runtime type information has been
	// observed to emit a specialized routine for this subtree.
	IsCompilable() bool
	// Compile emits the node's step. Only called when IsCompilable is true;
	// unsupported shapes escape with the compilation opt-out signal.
	Compile(cf *CodeFlow) CompiledStep
	// Span returns the node's source range as byte offsets.
	Span() (start, end int)
	String() string
}

// baseNode carries the source span and the cached exit descriptor shared by
// every variant. The exit descriptor is written during interpreted
// evaluation and read by the compilability check; it may be rewritten when
// the node later observes differently-typed data.
type baseNode struct {
	start int
	end   int
	exit  atomic.Value // reflect.Type
}

func (n *baseNode) Span() (int, int) {
	return n.start, n.end
}

func (n *baseNode) exitType() reflect.Type {
	if t, ok := n.exit.Load().(reflect.Type); ok {
		return t
	}
	return nil
}

func (n *baseNode) setExitType(t reflect.Type) {
	if t != nil {
		n.exit.Store(t)
	}
}

func (n *baseNode) recordExit(tv TypedValue) TypedValue {
	n.setExitType(tv.typ)
	return tv
}

func (n *baseNode) SetValue(s *State, v any) error {
	return newEvalError(n.start, CodeNotAssignable)
}

func (n *baseNode) IsWritable(s *State) (bool, error) {
	return false, nil
}

func (n *baseNode) IsCompilable() bool {
	return false
}

func (n *baseNode) Compile(cf *CodeFlow) CompiledStep {
	panic(errCompilationOptOut)
}

// IntLiteral is a decimal or hex integer literal, carried as int64.
type IntLiteral struct {
	baseNode
	Value int64
}

func (n *IntLiteral) GetValue(s *State) (TypedValue, error) {
	return n.recordExit(NewTypedValue(n.Value)), nil
}

func (n *IntLiteral) IsCompilable() bool { return true }

func (n *IntLiteral) Compile(cf *CodeFlow) CompiledStep {
	cf.setLastType(typeInt64)
	v := n.Value
	return func(av *Activation) (any, error) { return v, nil }
}

func (n *IntLiteral) String() string { return fmt.Sprintf("%d", n.Value) }

// FloatLiteral is a real literal, carried as float64.
type FloatLiteral struct {
	baseNode
	Value float64
}

func (n *FloatLiteral) GetValue(s *State) (TypedValue, error) {
	return n.recordExit(NewTypedValue(n.Value)), nil
}

func (n *FloatLiteral) IsCompilable() bool { return true }

func (n *FloatLiteral) Compile(cf *CodeFlow) CompiledStep {
	cf.setLastType(typeFloat64)
	v := n.Value
	return func(av *Activation) (any, error) { return v, nil }
}

func (n *FloatLiteral) String() string { return fmt.Sprintf("%g", n.Value) }

// StringLiteral holds the unescaped text of a quoted literal.
type StringLiteral struct {
	baseNode
	Value string
}

func (n *StringLiteral) GetValue(s *State) (TypedValue, error) {
	return n.recordExit(NewTypedValue(n.Value)), nil
}

func (n *StringLiteral) IsCompilable() bool { return true }

func (n *StringLiteral) Compile(cf *CodeFlow) CompiledStep {
	cf.setLastType(typeString)
	v := n.Value
	return func(av *Activation) (any, error) { return v, nil }
}

func (n *StringLiteral) String() string { return "'" + n.Value + "'" }

type BoolLiteral struct {
	baseNode
	Value bool
}

func (n *BoolLiteral) GetValue(s *State) (TypedValue, error) {
	return n.recordExit(NewTypedValue(n.Value)), nil
}

func (n *BoolLiteral) IsCompilable() bool { return true }

func (n *BoolLiteral) Compile(cf *CodeFlow) CompiledStep {
	cf.setLastType(typeBool)
	v := n.Value
	return func(av *Activation) (any, error) { return v, nil }
}

func (n *BoolLiteral) String() string {
	if n.Value {
		return "true"
	}
	return "false"
}

type NullLiteral struct {
	baseNode
}

func (n *NullLiteral) GetValue(s *State) (TypedValue, error) {
	return NullValue, nil
}

func (n *NullLiteral) IsCompilable() bool { return true }

func (n *NullLiteral) Compile(cf *CodeFlow) CompiledStep {
	cf.setLastType(nil)
	return func(av *Activation) (any, error) { return nil, nil }
}

func (n *NullLiteral) String() string { return "null" }

var (
	typeInt64   = reflect.TypeOf(int64(0))
	typeFloat64 = reflect.TypeOf(float64(0))
	typeString  = reflect.TypeOf("")
	typeBool    = reflect.TypeOf(false)
	typeAny     = reflect.TypeOf((*any)(nil)).Elem()
	typeError   = reflect.TypeOf((*error)(nil)).Elem()
)

func typeNameOf(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}
