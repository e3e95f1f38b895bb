package sel

import (
	"reflect"
	"strings"
	"sync"
)

type nullSafeNode interface {
	isNullSafe() bool
}

// PropertyOrFieldReference resolves a named property against the active
// object through the context's accessor chain, most-specific-type first.
// The accessor that last served the node is cached for reuse and for
// compilation.
type PropertyOrFieldReference struct {
	baseNode
	Name     string
	NullSafe bool

	mu             sync.Mutex
	cachedAccessor PropertyAccessor
	cachedType     reflect.Type
}

func (n *PropertyOrFieldReference) isNullSafe() bool { return n.NullSafe }

func (n *PropertyOrFieldReference) GetValue(s *State) (TypedValue, error) {
	target := s.ActiveObject()
	if target.isNull() {
		if n.NullSafe {
			return NullValue, nil
		}
		return NullValue, newEvalError(n.start, CodePropertyNotFound, n.Name, "null")
	}
	v, accessor, err := readProperty(s.Context(), target.Value, n.Name)
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	n.remember(accessor, reflect.TypeOf(target.Value))
	return n.recordExit(v), nil
}

func (n *PropertyOrFieldReference) remember(a PropertyAccessor, t reflect.Type) {
	n.mu.Lock()
	n.cachedAccessor, n.cachedType = a, t
	n.mu.Unlock()
}

func (n *PropertyOrFieldReference) cached() (PropertyAccessor, reflect.Type) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cachedAccessor, n.cachedType
}

func (n *PropertyOrFieldReference) SetValue(s *State, v any) error {
	target := s.ActiveObject()
	if target.isNull() {
		return newEvalError(n.start, CodePropertyNotWritable, n.Name, "null")
	}
	for _, a := range accessorsFor(s.Context(), target.Value) {
		if a.CanWrite(s.ctx, target.Value, n.Name) {
			return attachPosition(a.Write(s.ctx, target.Value, n.Name, v), n.start)
		}
	}
	return newEvalError(n.start, CodePropertyNotWritable, n.Name, typeNameOf(target.Value))
}

func (n *PropertyOrFieldReference) IsWritable(s *State) (bool, error) {
	target := s.ActiveObject()
	if target.isNull() {
		return false, nil
	}
	for _, a := range accessorsFor(s.Context(), target.Value) {
		if a.CanWrite(s.ctx, target.Value, n.Name) {
			return true, nil
		}
	}
	return false, nil
}

func (n *PropertyOrFieldReference) IsCompilable() bool {
	a, _ := n.cached()
	return a != nil
}

func (n *PropertyOrFieldReference) Compile(cf *CodeFlow) CompiledStep {
	accessor, _ := n.cached()
	if accessor == nil {
		panic(errCompilationOptOut)
	}
	cf.setLastType(n.exitType())
	name, nullSafe, pos := n.Name, n.NullSafe, n.start
	return func(av *Activation) (any, error) {
		target := av.active
		if target == nil {
			if nullSafe {
				return nil, nil
			}
			return nil, newEvalError(pos, CodePropertyNotFound, name, "null")
		}
		if !accessor.CanRead(av.ctx, target, name) {
			// Shape drifted from what compilation observed.
			v, _, err := readProperty(av.ctx, target, name)
			if err != nil {
				return nil, attachPosition(err, pos)
			}
			return v.Value, nil
		}
		v, err := accessor.Read(av.ctx, target, name)
		if err != nil {
			return nil, attachPosition(err, pos)
		}
		return v.Value, nil
	}
}

func (n *PropertyOrFieldReference) String() string { return n.Name }

// accessorsFor orders the context's accessors for a target: accessors
// declaring the target's specific type first, generic ones after.
func accessorsFor(ctx EvaluationContext, target any) []PropertyAccessor {
	all := ctx.PropertyAccessors()
	if target == nil {
		return all
	}
	tt := reflect.TypeOf(target)
	specific := make([]PropertyAccessor, 0, len(all))
	general := make([]PropertyAccessor, 0, len(all))
	for _, a := range all {
		kinds := a.SpecificTargetTypes()
		if kinds == nil {
			general = append(general, a)
			continue
		}
		for _, k := range kinds {
			if k == tt || tt.AssignableTo(k) {
				specific = append(specific, a)
				break
			}
		}
	}
	return append(specific, general...)
}

func readProperty(ctx EvaluationContext, target any, name string) (TypedValue, PropertyAccessor, error) {
	for _, a := range accessorsFor(ctx, target) {
		if a.CanRead(ctx, target, name) {
			v, err := a.Read(ctx, target, name)
			if err != nil {
				return NullValue, nil, err
			}
			return v, a, nil
		}
	}
	return NullValue, nil, newEvalError(-1, CodePropertyNotFound, name, typeNameOf(target))
}

// Indexer is a[i]: slice/array/string by integer index, map by key,
// anything else by property name. The index expression evaluates against
// the root, not the indexed target.
type Indexer struct {
	baseNode
	Index Node
}

func (n *Indexer) GetValue(s *State) (TypedValue, error) {
	target := s.ActiveObject()
	if target.isNull() {
		return NullValue, newEvalError(n.start, CodeCollectionIndexInvalid, "null", "index")
	}

	s.pushActiveObject(s.RootObject())
	idx, err := n.Index.GetValue(s)
	s.popActiveObject()
	if err != nil {
		return NullValue, err
	}

	v, err := indexRead(s.Context(), target.Value, idx.Value, n.start)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(v), nil
}

func indexRead(ctx EvaluationContext, target, index any, pos int) (TypedValue, error) {
	rv := reflect.ValueOf(target)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if !isNumber(index) {
			return NullValue, newEvalError(pos, CodeCollectionIndexInvalid, typeNameOf(target), typeNameOf(index))
		}
		i := int(asInt(index))
		if i < 0 || i >= rv.Len() {
			return NullValue, newEvalError(pos, CodeIndexOutOfBounds, i, rv.Len())
		}
		if rv.Kind() == reflect.String {
			return NewTypedValue(string(rv.String()[i])), nil
		}
		return NewTypedValue(rv.Index(i).Interface()), nil
	case reflect.Map:
		key, err := ctx.TypeConverter().Convert(index, rv.Type().Key())
		if err != nil {
			return NullValue, attachPosition(err, pos)
		}
		out := rv.MapIndex(reflect.ValueOf(key))
		if !out.IsValid() {
			return NullValue, nil
		}
		return NewTypedValue(out.Interface()), nil
	}
	// Fall back to property-style access for struct targets indexed by name.
	if name, ok := index.(string); ok {
		v, _, err := readProperty(ctx, target, name)
		return v, attachPosition(err, pos)
	}
	return NullValue, newEvalError(pos, CodeCollectionIndexInvalid, typeNameOf(target), typeNameOf(index))
}

func (n *Indexer) SetValue(s *State, v any) error {
	target := s.ActiveObject()
	if target.isNull() {
		return newEvalError(n.start, CodeNotAssignable)
	}
	s.pushActiveObject(s.RootObject())
	idx, err := n.Index.GetValue(s)
	s.popActiveObject()
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(target.Value)
	switch rv.Kind() {
	case reflect.Slice:
		if !isNumber(idx.Value) {
			return newEvalError(n.start, CodeCollectionIndexInvalid, typeNameOf(target.Value), typeNameOf(idx.Value))
		}
		i := int(asInt(idx.Value))
		if i < 0 || i >= rv.Len() {
			return newEvalError(n.start, CodeIndexOutOfBounds, i, rv.Len())
		}
		converted, err := s.Context().TypeConverter().Convert(v, rv.Type().Elem())
		if err != nil {
			return attachPosition(err, n.start)
		}
		rv.Index(i).Set(valueFor(converted, rv.Type().Elem()))
		return nil
	case reflect.Map:
		key, err := s.Context().TypeConverter().Convert(idx.Value, rv.Type().Key())
		if err != nil {
			return attachPosition(err, n.start)
		}
		converted, err := s.Context().TypeConverter().Convert(v, rv.Type().Elem())
		if err != nil {
			return attachPosition(err, n.start)
		}
		rv.SetMapIndex(reflect.ValueOf(key), valueFor(converted, rv.Type().Elem()))
		return nil
	}
	if name, ok := idx.Value.(string); ok {
		ref := &PropertyOrFieldReference{Name: name}
		ref.start, ref.end = n.start, n.end
		return ref.SetValue(s, v)
	}
	return newEvalError(n.start, CodeNotAssignable)
}

func (n *Indexer) IsWritable(s *State) (bool, error) {
	target := s.ActiveObject()
	if target.isNull() {
		return false, nil
	}
	switch reflect.ValueOf(target.Value).Kind() {
	case reflect.Slice, reflect.Map:
		return true, nil
	}
	return false, nil
}

func (n *Indexer) String() string { return "[" + n.Index.String() + "]" }

// MethodReference calls a named method on the active object. Arguments are
// evaluated left to right against the root. The executor resolved for a
// given target type is cached on the node.
type MethodReference struct {
	baseNode
	Name     string
	Args     []Node
	NullSafe bool

	mu             sync.Mutex
	cachedExecutor MethodExecutor
	cachedType     reflect.Type
}

func (n *MethodReference) isNullSafe() bool { return n.NullSafe }

func (n *MethodReference) GetValue(s *State) (TypedValue, error) {
	target := s.ActiveObject()
	if target.isNull() {
		if n.NullSafe {
			return NullValue, nil
		}
		return NullValue, newEvalError(n.start, CodeMethodNotFound, n.describeCall(), "null")
	}

	args := make([]TypedValue, len(n.Args))
	s.pushActiveObject(s.RootObject())
	for i, a := range n.Args {
		v, err := a.GetValue(s)
		if err != nil {
			s.popActiveObject()
			return NullValue, err
		}
		args[i] = v
	}
	s.popActiveObject()

	executor, err := n.resolve(s.Context(), target.Value, args)
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	raw := make([]any, len(args))
	for i, a := range args {
		raw[i] = a.Value
	}
	out, err := executor.Execute(s.Context(), target.Value, raw)
	if err != nil {
		// A stale cached executor may fail against new data; resolve fresh
		// once before surfacing the error.
		n.forget()
		fresh, rerr := n.resolve(s.Context(), target.Value, args)
		if rerr != nil {
			return NullValue, attachPosition(err, n.start)
		}
		out, err = fresh.Execute(s.Context(), target.Value, raw)
		if err != nil {
			return NullValue, attachPosition(err, n.start)
		}
	}
	return n.recordExit(out), nil
}

func (n *MethodReference) resolve(ctx EvaluationContext, target any, args []TypedValue) (MethodExecutor, error) {
	n.mu.Lock()
	if n.cachedExecutor != nil && n.cachedType == reflect.TypeOf(target) {
		e := n.cachedExecutor
		n.mu.Unlock()
		return e, nil
	}
	n.mu.Unlock()

	for _, r := range ctx.MethodResolvers() {
		e, err := r.Resolve(ctx, target, n.Name, args)
		if err != nil {
			return nil, err
		}
		if e != nil {
			n.mu.Lock()
			n.cachedExecutor, n.cachedType = e, reflect.TypeOf(target)
			n.mu.Unlock()
			return e, nil
		}
	}
	return nil, newEvalError(n.start, CodeMethodNotFound, n.describeCall(), typeNameOf(target))
}

func (n *MethodReference) forget() {
	n.mu.Lock()
	n.cachedExecutor, n.cachedType = nil, nil
	n.mu.Unlock()
}

func (n *MethodReference) cached() (MethodExecutor, reflect.Type) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cachedExecutor, n.cachedType
}

func (n *MethodReference) describeCall() string {
	types := make([]string, len(n.Args))
	for i := range n.Args {
		types[i] = "?"
	}
	return n.Name + "(" + strings.Join(types, ",") + ")"
}

func (n *MethodReference) IsCompilable() bool {
	e, _ := n.cached()
	if e == nil {
		return false
	}
	for _, a := range n.Args {
		if !a.IsCompilable() {
			return false
		}
	}
	return true
}

func (n *MethodReference) Compile(cf *CodeFlow) CompiledStep {
	executor, ctype := n.cached()
	if executor == nil {
		panic(errCompilationOptOut)
	}
	steps := make([]CompiledStep, len(n.Args))
	for i, a := range n.Args {
		steps[i] = a.Compile(cf)
	}
	cf.setLastType(n.exitType())
	name, nullSafe, pos := n.Name, n.NullSafe, n.start
	return func(av *Activation) (any, error) {
		target := av.active
		if target == nil {
			if nullSafe {
				return nil, nil
			}
			return nil, newEvalError(pos, CodeMethodNotFound, name, "null")
		}
		if reflect.TypeOf(target) != ctype {
			// The compiled shape no longer matches the data.
			return nil, newEvalError(pos, CodeMethodNotFound, name, typeNameOf(target))
		}
		saved := av.active
		av.active = av.root
		raw := make([]any, len(steps))
		for i, st := range steps {
			v, err := st(av)
			if err != nil {
				av.active = saved
				return nil, err
			}
			raw[i] = v
		}
		av.active = saved
		out, err := executor.Execute(av.ctx, target, raw)
		if err != nil {
			return nil, attachPosition(err, pos)
		}
		return out.Value, nil
	}
}

func (n *MethodReference) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return n.Name + "(" + strings.Join(parts, ",") + ")"
}

// FunctionReference is #name(args): a function registered as a variable on
// the context, either with the builtin signature or as an arbitrary Go
// function invoked reflectively.
type FunctionReference struct {
	baseNode
	Name string
	Args []Node
}

func (n *FunctionReference) GetValue(s *State) (TypedValue, error) {
	fn, ok := s.lookupVariable(n.Name)
	if !ok {
		return NullValue, newEvalError(n.start, CodeUndefinedFunction, n.Name)
	}
	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		v, err := a.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		args[i] = v.Value
	}
	out, err := invokeFunction(s.Context(), n.Name, fn, args)
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	return n.recordExit(out), nil
}

func invokeFunction(ctx EvaluationContext, name string, fn any, args []any) (TypedValue, error) {
	if builtin, ok := fn.(func([]any) (any, error)); ok {
		out, err := builtin(args)
		if err != nil {
			return NullValue, newEvalError(-1, CodeFunctionInvokeFailed, name, err)
		}
		return NewTypedValue(out), nil
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return NullValue, newEvalError(-1, CodeNotAFunction, name)
	}
	ft := fv.Type()
	if !ft.IsVariadic() && ft.NumIn() != len(args) {
		return NullValue, newEvalError(-1, CodeArgumentCount, name, stringify(int64(ft.NumIn())), len(args))
	}
	conv := ctx.TypeConverter()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var target reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			target = ft.In(ft.NumIn() - 1).Elem()
		} else {
			target = ft.In(i)
		}
		v, err := conv.Convert(a, target)
		if err != nil {
			return NullValue, err
		}
		in[i] = valueFor(v, target)
	}
	out := fv.Call(in)
	switch len(out) {
	case 0:
		return NullValue, nil
	case 1:
		return NewTypedValue(out[0].Interface()), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return NullValue, newEvalError(-1, CodeFunctionInvokeFailed, name, err)
		}
		return NewTypedValue(out[0].Interface()), nil
	}
}

func (n *FunctionReference) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return "#" + n.Name + "(" + strings.Join(parts, ",") + ")"
}

// VariableReference is #name. #this and #root are supplied by the state;
// everything else resolves through scope frames then the context.
type VariableReference struct {
	baseNode
	Name string
}

func (n *VariableReference) GetValue(s *State) (TypedValue, error) {
	v, ok := s.lookupVariable(n.Name)
	if !ok {
		return NullValue, newEvalError(n.start, CodeUndefinedVariable, n.Name)
	}
	return n.recordExit(NewTypedValue(v)), nil
}

func (n *VariableReference) SetValue(s *State, v any) error {
	s.Context().SetVariable(n.Name, v)
	return nil
}

func (n *VariableReference) IsWritable(s *State) (bool, error) {
	return n.Name != "this" && n.Name != "root", nil
}

func (n *VariableReference) IsCompilable() bool { return true }

func (n *VariableReference) Compile(cf *CodeFlow) CompiledStep {
	cf.setLastType(n.exitType())
	name, pos := n.Name, n.start
	switch name {
	case "this":
		return func(av *Activation) (any, error) { return av.active, nil }
	case "root":
		return func(av *Activation) (any, error) { return av.root, nil }
	}
	return func(av *Activation) (any, error) {
		v, ok := av.ctx.LookupVariable(name)
		if !ok {
			return nil, newEvalError(pos, CodeUndefinedVariable, name)
		}
		return v, nil
	}
}

func (n *VariableReference) String() string { return "#" + n.Name }

// BeanReference is @name (or &name for the factory variant), delegated to
// the context's bean resolver.
type BeanReference struct {
	baseNode
	Name    string
	Factory bool
}

func (n *BeanReference) GetValue(s *State) (TypedValue, error) {
	resolver := s.Context().BeanResolver()
	if resolver == nil {
		return NullValue, newEvalError(n.start, CodeUnresolvedBeanRef, n.Name)
	}
	v, err := resolver.Resolve(s.Context(), n.Name, n.Factory)
	if err != nil {
		return NullValue, newEvalError(n.start, CodeUnresolvedBeanRef, n.Name)
	}
	return n.recordExit(NewTypedValue(v)), nil
}

func (n *BeanReference) String() string {
	if n.Factory {
		return "&" + n.Name
	}
	return "@" + n.Name
}

// TypeReference is T(name), yielding the located runtime type as a value.
type TypeReference struct {
	baseNode
	TypeName string
}

func (n *TypeReference) GetValue(s *State) (TypedValue, error) {
	locator := s.Context().TypeLocator()
	if locator == nil {
		return NullValue, newEvalError(n.start, CodeUnknownType, n.TypeName)
	}
	t, err := locator.FindType(n.TypeName)
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	return n.recordExit(NewTypedValue(t)), nil
}

func (n *TypeReference) String() string { return "T(" + n.TypeName + ")" }

// CompoundExpression is a dotted/indexed chain. Each element evaluates with
// the previous element's value as the active object; a nil intermediate
// short-circuits the chain to nil when the following element is null-safe.
type CompoundExpression struct {
	baseNode
	Children []Node
}

func (n *CompoundExpression) GetValue(s *State) (TypedValue, error) {
	v, err := n.Children[0].GetValue(s)
	if err != nil {
		return NullValue, err
	}
	for _, child := range n.Children[1:] {
		if v.isNull() {
			if ns, ok := child.(nullSafeNode); ok && ns.isNullSafe() {
				return NullValue, nil
			}
		}
		s.pushActiveObject(v)
		v, err = child.GetValue(s)
		s.popActiveObject()
		if err != nil {
			return NullValue, err
		}
	}
	return n.recordExit(v), nil
}

func (n *CompoundExpression) SetValue(s *State, v any) error {
	cur, err := n.Children[0].GetValue(s)
	if err != nil {
		return err
	}
	for _, child := range n.Children[1 : len(n.Children)-1] {
		s.pushActiveObject(cur)
		cur, err = child.GetValue(s)
		s.popActiveObject()
		if err != nil {
			return err
		}
	}
	last := n.Children[len(n.Children)-1]
	s.pushActiveObject(cur)
	err = last.SetValue(s, v)
	s.popActiveObject()
	return err
}

func (n *CompoundExpression) IsWritable(s *State) (bool, error) {
	cur, err := n.Children[0].GetValue(s)
	if err != nil {
		return false, err
	}
	for _, child := range n.Children[1 : len(n.Children)-1] {
		s.pushActiveObject(cur)
		cur, err = child.GetValue(s)
		s.popActiveObject()
		if err != nil {
			return false, err
		}
	}
	last := n.Children[len(n.Children)-1]
	s.pushActiveObject(cur)
	ok, err := last.IsWritable(s)
	s.popActiveObject()
	return ok, err
}

func (n *CompoundExpression) IsCompilable() bool {
	for _, c := range n.Children {
		if !c.IsCompilable() {
			return false
		}
	}
	return true
}

func (n *CompoundExpression) Compile(cf *CodeFlow) CompiledStep {
	steps := make([]CompiledStep, len(n.Children))
	nullSafe := make([]bool, len(n.Children))
	for i, c := range n.Children {
		steps[i] = c.Compile(cf)
		if ns, ok := c.(nullSafeNode); ok {
			nullSafe[i] = ns.isNullSafe()
		}
	}
	cf.setLastType(n.exitType())
	return func(av *Activation) (any, error) {
		saved := av.active
		v, err := steps[0](av)
		if err != nil {
			av.active = saved
			return nil, err
		}
		for i := 1; i < len(steps); i++ {
			if v == nil && nullSafe[i] {
				av.active = saved
				return nil, nil
			}
			av.active = v
			v, err = steps[i](av)
			if err != nil {
				av.active = saved
				return nil, err
			}
		}
		av.active = saved
		return v, nil
	}
}

func (n *CompoundExpression) String() string {
	var sb strings.Builder
	for i, c := range n.Children {
		if i > 0 {
			if _, isIndexer := c.(*Indexer); !isIndexer {
				if ns, ok := c.(nullSafeNode); ok && ns.isNullSafe() {
					sb.WriteString("?.")
				} else {
					sb.WriteString(".")
				}
			}
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}
