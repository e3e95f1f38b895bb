package sel

import (
	"reflect"
	"sync"
)

// PropertyAccessor reads and writes named properties on a target object.
// Accessors reporting specific target types are consulted before
// general-purpose ones.
type PropertyAccessor interface {
	// SpecificTargetTypes returns the types this accessor is specialized
	// for, or nil for a general-purpose accessor.
	SpecificTargetTypes() []reflect.Type
	CanRead(ctx EvaluationContext, target any, name string) bool
	Read(ctx EvaluationContext, target any, name string) (TypedValue, error)
	CanWrite(ctx EvaluationContext, target any, name string) bool
	Write(ctx EvaluationContext, target any, name string, newValue any) error
}

// MethodExecutor invokes a previously resolved method.
type MethodExecutor interface {
	Execute(ctx EvaluationContext, target any, args []any) (TypedValue, error)
}

// MethodResolver locates a method on a target given the actual argument
// values. A nil executor with a nil error means "no candidate here, try the
// next resolver".
type MethodResolver interface {
	Resolve(ctx EvaluationContext, target any, name string, args []TypedValue) (MethodExecutor, error)
}

// ConstructorExecutor instantiates a previously resolved constructor.
type ConstructorExecutor interface {
	Construct(ctx EvaluationContext, args []any) (TypedValue, error)
}

// ConstructorResolver locates a constructor for a type name.
type ConstructorResolver interface {
	Resolve(ctx EvaluationContext, typeName string, args []TypedValue) (ConstructorExecutor, error)
}

// BeanResolver resolves @name / &name external references.
type BeanResolver interface {
	Resolve(ctx EvaluationContext, name string, factory bool) (any, error)
}

// TypeLocator maps a type name appearing in T(...) or new expressions to a
// runtime type.
type TypeLocator interface {
	FindType(name string) (reflect.Type, error)
}

// TypeConverter converts values between types during resolution and
// assignment.
type TypeConverter interface {
	CanConvert(from reflect.Type, to reflect.Type) bool
	Convert(v any, to reflect.Type) (any, error)
}

// TypeComparator orders two values; the result follows the cmp convention.
type TypeComparator interface {
	CanCompare(left, right any) bool
	Compare(left, right any) (int, error)
}

// OperatorOverloader lets the embedder define operators between types the
// standard numeric model does not cover.
type OperatorOverloader interface {
	Overrides(op string, left, right any) bool
	Operate(op string, left, right any) (any, error)
}

// EvaluationContext supplies everything an expression is evaluated against:
// the root object, variable and function bindings, and the pluggable
// resolution strategies.
type EvaluationContext interface {
	RootObject() TypedValue
	PropertyAccessors() []PropertyAccessor
	MethodResolvers() []MethodResolver
	ConstructorResolvers() []ConstructorResolver
	TypeLocator() TypeLocator
	TypeConverter() TypeConverter
	TypeComparator() TypeComparator
	OperatorOverloader() OperatorOverloader
	BeanResolver() BeanResolver
	SetVariable(name string, v any)
	LookupVariable(name string) (any, bool)
}

// StandardContext is the fully-dynamic reference context: reflective
// property/method/constructor resolution, the standard type services, and a
// builtin function registry. Safe for concurrent evaluation once configured.
type StandardContext struct {
	root         TypedValue
	accessors    []PropertyAccessor
	methods      []MethodResolver
	constructors []ConstructorResolver
	locator      *StandardTypeLocator
	converter    TypeConverter
	comparator   TypeComparator
	overloader   OperatorOverloader
	beans        BeanResolver

	mu        sync.RWMutex
	variables map[string]any
}

// NewStandardContext builds a context with the reflective defaults and the
// builtin function set registered. root may be nil.
func NewStandardContext(root any) *StandardContext {
	conv := NewStandardTypeConverter()
	c := &StandardContext{
		root:         NewTypedValue(root),
		accessors:    []PropertyAccessor{NewMapAccessor(), NewReflectivePropertyAccessor()},
		methods:      []MethodResolver{NewReflectiveMethodResolver(conv), NewBuiltinMethodResolver()},
		constructors: []ConstructorResolver{NewReflectiveConstructorResolver(conv)},
		locator:      NewStandardTypeLocator(),
		converter:    conv,
		comparator:   StandardTypeComparator{},
		overloader:   noOpOverloader{},
		variables:    make(map[string]any),
	}
	registerBuiltins(c)
	return c
}

func (c *StandardContext) RootObject() TypedValue { return c.root }

// SetRootObject replaces the default root for subsequent evaluations.
func (c *StandardContext) SetRootObject(root any) { c.root = NewTypedValue(root) }

func (c *StandardContext) PropertyAccessors() []PropertyAccessor       { return c.accessors }
func (c *StandardContext) MethodResolvers() []MethodResolver           { return c.methods }
func (c *StandardContext) ConstructorResolvers() []ConstructorResolver { return c.constructors }
func (c *StandardContext) TypeLocator() TypeLocator                    { return c.locator }
func (c *StandardContext) TypeConverter() TypeConverter                { return c.converter }
func (c *StandardContext) TypeComparator() TypeComparator              { return c.comparator }
func (c *StandardContext) OperatorOverloader() OperatorOverloader      { return c.overloader }
func (c *StandardContext) BeanResolver() BeanResolver                  { return c.beans }

// AddPropertyAccessor prepends an accessor so it is consulted before the
// reflective defaults.
func (c *StandardContext) AddPropertyAccessor(a PropertyAccessor) {
	c.accessors = append([]PropertyAccessor{a}, c.accessors...)
}

// AddMethodResolver prepends a resolver ahead of the reflective default.
func (c *StandardContext) AddMethodResolver(r MethodResolver) {
	c.methods = append([]MethodResolver{r}, c.methods...)
}

// SetBeanResolver installs the external-name resolver used by @name and
// &name references.
func (c *StandardContext) SetBeanResolver(r BeanResolver) { c.beans = r }

// SetOperatorOverloader replaces the operator overloading hook.
func (c *StandardContext) SetOperatorOverloader(o OperatorOverloader) { c.overloader = o }

func (c *StandardContext) SetVariable(name string, v any) {
	c.mu.Lock()
	c.variables[name] = v
	c.mu.Unlock()
}

func (c *StandardContext) LookupVariable(name string) (any, bool) {
	c.mu.RLock()
	v, ok := c.variables[name]
	c.mu.RUnlock()
	return v, ok
}

// RegisterFunction binds fn so expressions can call it as #name(args). fn
// may be the builtin signature func([]any) (any, error) or any Go func,
// which is then invoked reflectively with converted arguments.
func (c *StandardContext) RegisterFunction(name string, fn any) {
	c.SetVariable(name, fn)
}

// RegisterType makes a type available to T(name) and new name(...).
func (c *StandardContext) RegisterType(name string, t reflect.Type) {
	c.locator.Register(name, t)
}

// RegisterConstructor binds a factory function used ahead of positional
// struct construction for new name(...).
func (c *StandardContext) RegisterConstructor(name string, fn any) {
	c.locator.RegisterConstructor(name, fn)
}

type noOpOverloader struct{}

func (noOpOverloader) Overrides(op string, left, right any) bool { return false }
func (noOpOverloader) Operate(op string, left, right any) (any, error) {
	return nil, newEvalError(-1, CodeOperatorNotSupported, op, typeNameOf(left), typeNameOf(right))
}

// SimpleContext is the restricted context for data-binding scenarios: map
// and struct property access only, no type locator, no constructors, no
// bean resolution. Writes can be disabled entirely.
type SimpleContext struct {
	root      TypedValue
	accessors []PropertyAccessor
	converter TypeConverter
	readOnly  bool

	mu        sync.RWMutex
	variables map[string]any
}

// SimpleOption configures a SimpleContext.
type SimpleOption func(*SimpleContext)

// WithAccessors replaces the default accessor chain.
func WithAccessors(accessors ...PropertyAccessor) SimpleOption {
	return func(c *SimpleContext) { c.accessors = accessors }
}

// WithConverter replaces the default type converter.
func WithConverter(conv TypeConverter) SimpleOption {
	return func(c *SimpleContext) { c.converter = conv }
}

// WithRootReadOnly rejects every SetValue against this context.
func WithRootReadOnly() SimpleOption {
	return func(c *SimpleContext) { c.readOnly = true }
}

// NewSimpleContext builds the restricted context around root.
func NewSimpleContext(root any, opts ...SimpleOption) *SimpleContext {
	c := &SimpleContext{
		root:      NewTypedValue(root),
		accessors: []PropertyAccessor{NewMapAccessor(), NewReflectivePropertyAccessor()},
		converter: NewStandardTypeConverter(),
		variables: make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SimpleContext) RootObject() TypedValue                      { return c.root }
func (c *SimpleContext) PropertyAccessors() []PropertyAccessor       { return c.accessors }
func (c *SimpleContext) MethodResolvers() []MethodResolver           { return nil }
func (c *SimpleContext) ConstructorResolvers() []ConstructorResolver { return nil }
func (c *SimpleContext) TypeLocator() TypeLocator                    { return nil }
func (c *SimpleContext) TypeConverter() TypeConverter                { return c.converter }
func (c *SimpleContext) TypeComparator() TypeComparator              { return StandardTypeComparator{} }
func (c *SimpleContext) OperatorOverloader() OperatorOverloader      { return noOpOverloader{} }
func (c *SimpleContext) BeanResolver() BeanResolver                  { return nil }

func (c *SimpleContext) SetVariable(name string, v any) {
	c.mu.Lock()
	c.variables[name] = v
	c.mu.Unlock()
}

func (c *SimpleContext) LookupVariable(name string) (any, bool) {
	c.mu.RLock()
	v, ok := c.variables[name]
	c.mu.RUnlock()
	return v, ok
}

func (c *SimpleContext) isReadOnly() bool { return c.readOnly }
