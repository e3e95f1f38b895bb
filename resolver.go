package sel

import (
	"reflect"
	"strings"
	"sync"

	"github.com/oarkflow/dipper"
)

// MapAccessor reads and writes keys of map-shaped data. Nested dotted paths
// fall back to a dipper lookup so binding-style expressions can traverse
// raw JSON-decoded documents.
type MapAccessor struct{}

func NewMapAccessor() *MapAccessor { return &MapAccessor{} }

func (a *MapAccessor) SpecificTargetTypes() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(map[string]any{})}
}

func (a *MapAccessor) CanRead(ctx EvaluationContext, target any, name string) bool {
	m, ok := target.(map[string]any)
	if !ok {
		return false
	}
	if _, hit := m[name]; hit {
		return true
	}
	_, err := dipper.Get(m, name)
	return err == nil
}

func (a *MapAccessor) Read(ctx EvaluationContext, target any, name string) (TypedValue, error) {
	m, ok := target.(map[string]any)
	if !ok {
		return NullValue, newEvalError(-1, CodePropertyNotFound, name, typeNameOf(target))
	}
	if v, hit := m[name]; hit {
		return NewTypedValue(v), nil
	}
	v, err := dipper.Get(m, name)
	if err != nil {
		return NullValue, newEvalError(-1, CodePropertyNotFound, name, typeNameOf(target))
	}
	return NewTypedValue(v), nil
}

func (a *MapAccessor) CanWrite(ctx EvaluationContext, target any, name string) bool {
	_, ok := target.(map[string]any)
	return ok
}

func (a *MapAccessor) Write(ctx EvaluationContext, target any, name string, newValue any) error {
	m, ok := target.(map[string]any)
	if !ok {
		return newEvalError(-1, CodePropertyNotWritable, name, typeNameOf(target))
	}
	m[name] = newValue
	return nil
}

// memberKey keys the shared resolver caches: the declaring type, the member
// name, and whether the target was a type reference rather than an instance.
type memberKey struct {
	typ    reflect.Type
	name   string
	static bool
}

type propertyMember struct {
	kind      int // 0 field, 1 getter method, 2 length pseudo-property
	fieldIdx  []int
	methodIdx int
	typ       reflect.Type
}

const (
	memberField = iota
	memberGetter
	memberLength
)

// ReflectivePropertyAccessor is the general-purpose accessor: exported
// struct fields (with a case-insensitive leading-capital match), getter
// methods (X(), GetX(), IsX()), and the length/size pseudo-properties of
// strings, slices, and maps. Resolved members are cached per (type, name).
type ReflectivePropertyAccessor struct {
	readers sync.Map // memberKey -> *propertyMember
}

func NewReflectivePropertyAccessor() *ReflectivePropertyAccessor {
	return &ReflectivePropertyAccessor{}
}

func (a *ReflectivePropertyAccessor) SpecificTargetTypes() []reflect.Type { return nil }

func (a *ReflectivePropertyAccessor) CanRead(ctx EvaluationContext, target any, name string) bool {
	if target == nil {
		return false
	}
	_, ok := a.findReader(reflect.TypeOf(target), name)
	return ok
}

func (a *ReflectivePropertyAccessor) Read(ctx EvaluationContext, target any, name string) (TypedValue, error) {
	if target == nil {
		return NullValue, newEvalError(-1, CodePropertyNotFound, name, "null")
	}
	rv := reflect.ValueOf(target)
	member, ok := a.findReader(rv.Type(), name)
	if !ok {
		return NullValue, newEvalError(-1, CodePropertyNotFound, name, rv.Type().String())
	}
	switch member.kind {
	case memberLength:
		v := rv
		for v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		return NewTypedValue(int64(v.Len())), nil
	case memberField:
		v := rv
		for v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		return NewTypedValue(v.FieldByIndex(member.fieldIdx).Interface()), nil
	default:
		out := rv.Method(member.methodIdx).Call(nil)
		if len(out) == 2 {
			if err, ok := out[1].Interface().(error); ok && err != nil {
				return NullValue, attachPosition(err, -1)
			}
		}
		return NewTypedValue(out[0].Interface()), nil
	}
}

func (a *ReflectivePropertyAccessor) findReader(t reflect.Type, name string) (*propertyMember, bool) {
	key := memberKey{typ: t, name: name}
	if cached, ok := a.readers.Load(key); ok {
		member := cached.(*propertyMember)
		if member == nil {
			return nil, false
		}
		return member, true
	}
	member := resolveReader(t, name)
	a.readers.Store(key, member)
	if member == nil {
		return nil, false
	}
	return member, true
}

func resolveReader(t reflect.Type, name string) *propertyMember {
	elem := t
	for elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	switch elem.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		if name == "length" || name == "size" {
			return &propertyMember{kind: memberLength, typ: typeInt64}
		}
	}

	if elem.Kind() == reflect.Struct {
		if f, ok := fieldByPropertyName(elem, name); ok {
			return &propertyMember{kind: memberField, fieldIdx: f.Index, typ: f.Type}
		}
	}

	for _, candidate := range []string{capitalize(name), "Get" + capitalize(name), "Is" + capitalize(name)} {
		if m, ok := t.MethodByName(candidate); ok && m.Type.NumIn() == 1 {
			n := m.Type.NumOut()
			if n == 1 || (n == 2 && m.Type.Out(1) == typeError) {
				return &propertyMember{kind: memberGetter, methodIdx: m.Index, typ: m.Type.Out(0)}
			}
		}
	}
	return nil
}

func fieldByPropertyName(t reflect.Type, name string) (reflect.StructField, bool) {
	if f, ok := t.FieldByName(name); ok && f.IsExported() {
		return f, true
	}
	if f, ok := t.FieldByName(capitalize(name)); ok && f.IsExported() {
		return f, true
	}
	return reflect.StructField{}, false
}

func (a *ReflectivePropertyAccessor) CanWrite(ctx EvaluationContext, target any, name string) bool {
	if target == nil {
		return false
	}
	t := reflect.TypeOf(target)
	if _, ok := t.MethodByName("Set" + capitalize(name)); ok {
		return true
	}
	if t.Kind() != reflect.Ptr {
		return false
	}
	elem := t.Elem()
	if elem.Kind() != reflect.Struct {
		return false
	}
	_, ok := fieldByPropertyName(elem, name)
	return ok
}

func (a *ReflectivePropertyAccessor) Write(ctx EvaluationContext, target any, name string, newValue any) error {
	rv := reflect.ValueOf(target)
	if m := rv.MethodByName("Set" + capitalize(name)); m.IsValid() && m.Type().NumIn() == 1 {
		arg, err := ctx.TypeConverter().Convert(newValue, m.Type().In(0))
		if err != nil {
			return err
		}
		m.Call([]reflect.Value{reflect.ValueOf(arg)})
		return nil
	}
	if rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Struct {
		if f, ok := fieldByPropertyName(rv.Elem().Type(), name); ok {
			fv := rv.Elem().FieldByIndex(f.Index)
			if fv.CanSet() {
				converted, err := ctx.TypeConverter().Convert(newValue, fv.Type())
				if err != nil {
					return err
				}
				if converted == nil {
					fv.Set(reflect.Zero(fv.Type()))
				} else {
					fv.Set(reflect.ValueOf(converted))
				}
				return nil
			}
		}
	}
	return newEvalError(-1, CodePropertyNotWritable, name, typeNameOf(target))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Argument match tiers for overload ranking.
const (
	matchExact = iota
	matchClose
	matchConversion
	matchNone
)

// ReflectiveMethodResolver resolves instance methods by name with the
// three-tier ranking: an exact signature match beats an assignable one,
// which beats one that needs the type converter. Variadic methods absorb
// trailing arguments into a fresh slice of the component type; a single
// trailing argument that already is that slice type satisfies the
// parameter directly.
type ReflectiveMethodResolver struct {
	converter TypeConverter
	cache     sync.Map // memberKey -> []reflect.Method
}

func NewReflectiveMethodResolver(conv TypeConverter) *ReflectiveMethodResolver {
	return &ReflectiveMethodResolver{converter: conv}
}

func (r *ReflectiveMethodResolver) Resolve(ctx EvaluationContext, target any, name string, args []TypedValue) (MethodExecutor, error) {
	if target == nil {
		return nil, nil
	}
	candidates := r.candidates(reflect.TypeOf(target), name)
	if len(candidates) == 0 {
		return nil, nil
	}

	bestTier := matchNone
	var best *reflect.Method
	var bestVariadic bool
	ambiguous := false
	for i := range candidates {
		m := candidates[i]
		tier, variadic := r.rank(m.Type, args)
		if tier == matchNone {
			continue
		}
		switch {
		case tier < bestTier:
			best, bestTier, bestVariadic, ambiguous = &candidates[i], tier, variadic, false
		case tier == bestTier && best != nil && tier == matchConversion:
			ambiguous = true
		}
	}
	if best == nil {
		return nil, nil
	}
	if ambiguous {
		return nil, newEvalError(-1, CodeAmbiguousMethod, name, typeNameOf(target))
	}
	return &reflectiveMethodExecutor{method: *best, variadic: bestVariadic, converter: r.converter}, nil
}

// candidates collects exported methods named name on the type. A value
// type's method set excludes pointer-receiver methods, so those are looked
// up on the pointer type when the value type has no match; the pointer
// method set already contains every value-receiver method, so collecting
// from both would double-count. Results are cached per (type, name).
func (r *ReflectiveMethodResolver) candidates(t reflect.Type, name string) []reflect.Method {
	key := memberKey{typ: t, name: name}
	if cached, ok := r.cache.Load(key); ok {
		return cached.([]reflect.Method)
	}
	var out []reflect.Method
	for _, candidate := range []string{name, capitalize(name)} {
		if m, ok := t.MethodByName(candidate); ok {
			out = append(out, m)
			break
		}
	}
	if len(out) == 0 && t.Kind() != reflect.Ptr {
		pt := reflect.PointerTo(t)
		for _, candidate := range []string{name, capitalize(name)} {
			if m, ok := pt.MethodByName(candidate); ok {
				out = append(out, m)
				break
			}
		}
	}
	r.cache.Store(key, out)
	return out
}

// rank scores a candidate signature against the actual arguments, skipping
// the receiver. Returns the worst per-argument tier, or matchNone.
func (r *ReflectiveMethodResolver) rank(ft reflect.Type, args []TypedValue) (int, bool) {
	numIn := ft.NumIn() - 1 // receiver
	variadic := ft.IsVariadic()

	if !variadic && len(args) != numIn {
		return matchNone, false
	}
	if variadic && len(args) < numIn-1 {
		return matchNone, false
	}

	worst := matchExact
	fixed := numIn
	if variadic {
		fixed = numIn - 1
	}
	for i := 0; i < fixed; i++ {
		tier := r.rankOne(args[i], ft.In(i+1))
		if tier == matchNone {
			return matchNone, false
		}
		if tier > worst {
			worst = tier
		}
	}
	if variadic {
		varType := ft.In(numIn) // slice type
		// A single trailing argument already of the slice type passes
		// through untouched; this is a direct match, not a conversion.
		if len(args) == numIn {
			last := args[len(args)-1]
			if last.Type() == varType {
				return worst, true
			}
		}
		for i := fixed; i < len(args); i++ {
			tier := r.rankOne(args[i], varType.Elem())
			if tier == matchNone {
				return matchNone, false
			}
			if tier > worst {
				worst = tier
			}
		}
		return worst, true
	}
	return worst, false
}

func (r *ReflectiveMethodResolver) rankOne(arg TypedValue, param reflect.Type) int {
	at := arg.Type()
	if at == nil {
		switch param.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
			return matchClose
		}
		return matchNone
	}
	if at == param {
		return matchExact
	}
	if at.AssignableTo(param) {
		return matchClose
	}
	if r.converter != nil && r.converter.CanConvert(at, param) {
		return matchConversion
	}
	return matchNone
}

type reflectiveMethodExecutor struct {
	method    reflect.Method
	variadic  bool
	converter TypeConverter
}

func (e *reflectiveMethodExecutor) Execute(ctx EvaluationContext, target any, args []any) (TypedValue, error) {
	recv := reflect.ValueOf(target)
	ft := e.method.Type
	if ft.In(0).Kind() == reflect.Ptr && recv.Kind() != reflect.Ptr {
		// Promote to a pointer receiver copy.
		p := reflect.New(recv.Type())
		p.Elem().Set(recv)
		recv = p
	} else if ft.In(0).Kind() != reflect.Ptr && recv.Kind() == reflect.Ptr {
		recv = recv.Elem()
	}

	numIn := ft.NumIn() - 1
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, recv)

	fixed := numIn
	if e.variadic {
		fixed = numIn - 1
	}
	for i := 0; i < fixed; i++ {
		v, err := e.converter.Convert(args[i], ft.In(i+1))
		if err != nil {
			return NullValue, err
		}
		in = append(in, valueFor(v, ft.In(i+1)))
	}
	if e.variadic {
		varType := ft.In(numIn)
		if len(args) == numIn {
			if last := args[len(args)-1]; last != nil && reflect.TypeOf(last) == varType {
				in = append(in, reflect.ValueOf(last))
				return callMethod(e.method, in, true)
			}
		}
		packed := reflect.MakeSlice(varType, 0, len(args)-fixed)
		for i := fixed; i < len(args); i++ {
			v, err := e.converter.Convert(args[i], varType.Elem())
			if err != nil {
				return NullValue, err
			}
			packed = reflect.Append(packed, valueFor(v, varType.Elem()))
		}
		in = append(in, packed)
		return callMethod(e.method, in, true)
	}
	return callMethod(e.method, in, false)
}

func callMethod(m reflect.Method, in []reflect.Value, variadicPacked bool) (TypedValue, error) {
	var out []reflect.Value
	if variadicPacked {
		out = m.Func.CallSlice(in)
	} else {
		out = m.Func.Call(in)
	}
	switch len(out) {
	case 0:
		return NullValue, nil
	case 1:
		return NewTypedValue(out[0].Interface()), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return NullValue, attachPosition(err, -1)
		}
		return NewTypedValue(out[0].Interface()), nil
	}
}

func valueFor(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// BuiltinMethodResolver serves calls Go reflection cannot: the length()
// and size() pseudo-methods of strings, slices, arrays, and maps, and
// method-style use of the builtin string functions on a string target, so
// 'hello'.length() and name.upper() both work. Registered behind the
// reflective resolver so real methods win.
type BuiltinMethodResolver struct{}

func NewBuiltinMethodResolver() *BuiltinMethodResolver { return &BuiltinMethodResolver{} }

func (r *BuiltinMethodResolver) Resolve(ctx EvaluationContext, target any, name string, args []TypedValue) (MethodExecutor, error) {
	if target == nil {
		return nil, nil
	}
	if (name == "length" || name == "size") && len(args) == 0 {
		rv := reflect.ValueOf(target)
		for rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		switch rv.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
			return lengthMethodExecutor{}, nil
		}
		return nil, nil
	}
	if _, ok := target.(string); ok {
		if fn, ok := builtinFunctions[name]; ok {
			return builtinMethodExecutor{fn: fn}, nil
		}
	}
	return nil, nil
}

type lengthMethodExecutor struct{}

func (lengthMethodExecutor) Execute(ctx EvaluationContext, target any, args []any) (TypedValue, error) {
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	return NewTypedValue(int64(rv.Len())), nil
}

// builtinMethodExecutor invokes a builtin with the call target prepended to
// the argument list, so s.replace('a', 'b') is replace(s, 'a', 'b').
type builtinMethodExecutor struct {
	fn func([]any) (any, error)
}

func (e builtinMethodExecutor) Execute(ctx EvaluationContext, target any, args []any) (TypedValue, error) {
	all := make([]any, 0, len(args)+1)
	all = append(all, target)
	all = append(all, args...)
	v, err := e.fn(all)
	if err != nil {
		return NullValue, attachPosition(err, -1)
	}
	return NewTypedValue(v), nil
}

// ReflectiveConstructorResolver instantiates located types. A registered
// factory function wins; otherwise struct types are built positionally from
// their exported fields, converting each argument.
type ReflectiveConstructorResolver struct {
	converter TypeConverter
}

func NewReflectiveConstructorResolver(conv TypeConverter) *ReflectiveConstructorResolver {
	return &ReflectiveConstructorResolver{converter: conv}
}

func (r *ReflectiveConstructorResolver) Resolve(ctx EvaluationContext, typeName string, args []TypedValue) (ConstructorExecutor, error) {
	locator := ctx.TypeLocator()
	if locator == nil {
		return nil, nil
	}
	if std, ok := locator.(*StandardTypeLocator); ok {
		if fn, ok := std.findConstructor(typeName); ok {
			return &factoryConstructor{fn: fn, converter: r.converter}, nil
		}
	}
	t, err := locator.FindType(typeName)
	if err != nil {
		return nil, err
	}
	elem := t
	for elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, nil
	}
	fields := exportedFields(elem)
	if len(args) > len(fields) {
		return nil, nil
	}
	return &structConstructor{typ: elem, fields: fields, converter: r.converter}, nil
}

func exportedFields(t reflect.Type) []reflect.StructField {
	var out []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.IsExported() {
			out = append(out, f)
		}
	}
	return out
}

type factoryConstructor struct {
	fn        reflect.Value
	converter TypeConverter
}

func (c *factoryConstructor) Construct(ctx EvaluationContext, args []any) (TypedValue, error) {
	ft := c.fn.Type()
	if !ft.IsVariadic() && ft.NumIn() != len(args) {
		return NullValue, newEvalError(-1, CodeArgumentCount, "constructor", stringify(int64(ft.NumIn())), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		target := typeAny
		if i < ft.NumIn() && !(ft.IsVariadic() && i >= ft.NumIn()-1) {
			target = ft.In(i)
		} else if ft.IsVariadic() {
			target = ft.In(ft.NumIn() - 1).Elem()
		}
		v, err := c.converter.Convert(a, target)
		if err != nil {
			return NullValue, err
		}
		in[i] = valueFor(v, target)
	}
	out := c.fn.Call(in)
	switch len(out) {
	case 0:
		return NullValue, nil
	case 1:
		return NewTypedValue(out[0].Interface()), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return NullValue, attachPosition(err, -1)
		}
		return NewTypedValue(out[0].Interface()), nil
	}
}

type structConstructor struct {
	typ       reflect.Type
	fields    []reflect.StructField
	converter TypeConverter
}

func (c *structConstructor) Construct(ctx EvaluationContext, args []any) (TypedValue, error) {
	out := reflect.New(c.typ).Elem()
	for i, a := range args {
		f := c.fields[i]
		v, err := c.converter.Convert(a, f.Type)
		if err != nil {
			return NullValue, err
		}
		out.FieldByIndex(f.Index).Set(valueFor(v, f.Type))
	}
	return NewTypedValue(out.Interface()), nil
}
