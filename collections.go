package sel

import (
	"reflect"
	"strings"
)

// InlineList is {e1, e2, ...}. A list whose elements are all literals is
// materialized once and reused across evaluations.
type InlineList struct {
	baseNode
	Elements []Node

	constant []any
}

func newInlineList(start, end int, elems []Node) *InlineList {
	n := &InlineList{Elements: elems}
	n.start, n.end = start, end
	if allLiterals(elems) {
		vals := make([]any, len(elems))
		for i, e := range elems {
			v, _ := e.GetValue(nil)
			vals[i] = v.Value
		}
		n.constant = vals
	}
	return n
}

func allLiterals(nodes []Node) bool {
	for _, e := range nodes {
		switch e.(type) {
		case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral:
		case *InlineList:
			if e.(*InlineList).constant == nil {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (n *InlineList) GetValue(s *State) (TypedValue, error) {
	if n.constant != nil {
		return n.recordExit(NewTypedValue(n.constant)), nil
	}
	out := make([]any, len(n.Elements))
	for i, e := range n.Elements {
		v, err := e.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		out[i] = v.Value
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *InlineList) IsCompilable() bool {
	if n.constant != nil {
		return true
	}
	for _, e := range n.Elements {
		if !e.IsCompilable() {
			return false
		}
	}
	return true
}

func (n *InlineList) Compile(cf *CodeFlow) CompiledStep {
	if n.constant != nil {
		c := n.constant
		cf.setLastType(reflect.TypeOf(c))
		return func(*Activation) (any, error) { return c, nil }
	}
	steps := make([]CompiledStep, len(n.Elements))
	for i, e := range n.Elements {
		steps[i] = e.Compile(cf)
	}
	cf.setLastType(reflect.TypeOf([]any(nil)))
	return func(av *Activation) (any, error) {
		out := make([]any, len(steps))
		for i, st := range steps {
			v, err := st(av)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

func (n *InlineList) String() string {
	parts := make([]string, len(n.Elements))
	for i, e := range n.Elements {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// InlineMap is {k1:v1, k2:v2, ...}. Keys that parse as identifiers are
// string keys; other keys are evaluated.
type InlineMap struct {
	baseNode
	Keys   []Node
	Values []Node
}

func (n *InlineMap) GetValue(s *State) (TypedValue, error) {
	out := make(map[string]any, len(n.Keys))
	for i, k := range n.Keys {
		kv, err := k.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		vv, err := n.Values[i].GetValue(s)
		if err != nil {
			return NullValue, err
		}
		out[stringify(kv.Value)] = vv.Value
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *InlineMap) String() string {
	if len(n.Keys) == 0 {
		return "{:}"
	}
	parts := make([]string, len(n.Keys))
	for i := range n.Keys {
		parts[i] = n.Keys[i].String() + ":" + n.Values[i].String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Projection is target.![expr]: expr evaluated once per element with #this
// bound to the element and #index to its position; the results form a new
// list. Projecting a map iterates its entries as {key,value} pairs.
type Projection struct {
	baseNode
	NullSafe bool
	Body     Node
}

func (n *Projection) isNullSafe() bool { return n.NullSafe }

func (n *Projection) GetValue(s *State) (TypedValue, error) {
	target := s.ActiveObject()
	if target.isNull() {
		if n.NullSafe {
			return NullValue, nil
		}
		return NullValue, newEvalError(n.start, CodeProjectionUnsupported, "null")
	}
	elems, ok := iterableElements(target.Value)
	if !ok {
		return NullValue, newEvalError(n.start, CodeProjectionUnsupported, typeNameOf(target.Value))
	}
	out := make([]any, 0, len(elems))
	for i, elem := range elems {
		s.enterScope(map[string]any{"index": int64(i)})
		s.pushActiveObject(NewTypedValue(elem))
		v, err := n.Body.GetValue(s)
		s.popActiveObject()
		s.exitScope()
		if err != nil {
			return NullValue, err
		}
		out = append(out, v.Value)
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *Projection) String() string { return ".![" + n.Body.String() + "]" }

// iterableElements flattens a slice, array or map into the element sequence
// projection and selection walk. Map entries become {key,value} maps in key
// iteration order as returned by reflection.
func iterableElements(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Map:
		out := make([]any, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			out = append(out, map[string]any{
				"key":   k.Interface(),
				"value": rv.MapIndex(k).Interface(),
			})
		}
		return out, true
	}
	return nil, false
}

type selectMode int

const (
	selectAll selectMode = iota
	selectFirst
	selectLast
)

// Selection is target.?[expr] (all matches), .^[expr] (first) or .$[expr]
// (last). The criterion must produce a boolean for every visited element.
// Selecting over a map keeps the matching entries as a map.
type Selection struct {
	baseNode
	Mode     selectMode
	NullSafe bool
	Body     Node
}

func (n *Selection) isNullSafe() bool { return n.NullSafe }

func (n *Selection) GetValue(s *State) (TypedValue, error) {
	target := s.ActiveObject()
	if target.isNull() {
		if n.NullSafe {
			return NullValue, nil
		}
		return NullValue, newEvalError(n.start, CodeSelectionUnsupported, "null")
	}

	if rv := reflect.ValueOf(target.Value); rv.Kind() == reflect.Map {
		return n.selectFromMap(s, rv)
	}

	elems, ok := iterableElements(target.Value)
	if !ok {
		return NullValue, newEvalError(n.start, CodeSelectionUnsupported, typeNameOf(target.Value))
	}
	var out []any
	for i, elem := range elems {
		matched, err := n.matches(s, elem, i)
		if err != nil {
			return NullValue, err
		}
		if !matched {
			continue
		}
		if n.Mode == selectFirst {
			return n.recordExit(NewTypedValue(elem)), nil
		}
		out = append(out, elem)
	}
	switch n.Mode {
	case selectFirst:
		return NullValue, nil
	case selectLast:
		if len(out) == 0 {
			return NullValue, nil
		}
		return n.recordExit(NewTypedValue(out[len(out)-1])), nil
	}
	if out == nil {
		out = []any{}
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *Selection) selectFromMap(s *State, rv reflect.Value) (TypedValue, error) {
	keys := rv.MapKeys()
	all := make(map[string]any)
	var lastKey, lastVal any
	found := false
	for i, k := range keys {
		entry := map[string]any{"key": k.Interface(), "value": rv.MapIndex(k).Interface()}
		matched, err := n.matches(s, entry, i)
		if err != nil {
			return NullValue, err
		}
		if !matched {
			continue
		}
		if n.Mode == selectFirst {
			return n.recordExit(NewTypedValue(map[string]any{stringify(k.Interface()): rv.MapIndex(k).Interface()})), nil
		}
		found = true
		lastKey, lastVal = k.Interface(), rv.MapIndex(k).Interface()
		all[stringify(k.Interface())] = rv.MapIndex(k).Interface()
	}
	switch n.Mode {
	case selectFirst:
		return NullValue, nil
	case selectLast:
		if !found {
			return NullValue, nil
		}
		return n.recordExit(NewTypedValue(map[string]any{stringify(lastKey): lastVal})), nil
	}
	return n.recordExit(NewTypedValue(all)), nil
}

func (n *Selection) matches(s *State, elem any, index int) (bool, error) {
	s.enterScope(map[string]any{"index": int64(index)})
	s.pushActiveObject(NewTypedValue(elem))
	v, err := n.Body.GetValue(s)
	s.popActiveObject()
	s.exitScope()
	if err != nil {
		return false, err
	}
	b, ok := v.Value.(bool)
	if !ok {
		return false, newEvalError(n.start, CodeBooleanCoercion, typeNameOf(v.Value))
	}
	return b, nil
}

func (n *Selection) String() string {
	op := ".?["
	switch n.Mode {
	case selectFirst:
		op = ".^["
	case selectLast:
		op = ".$["
	}
	return op + n.Body.String() + "]"
}

// ConstructorReference is `new Type(args)` or the array form
// `new Type[len]` / `new Type[]{...}`. Type resolution goes through the
// context's type locator; construction through the constructor resolvers.
type ConstructorReference struct {
	baseNode
	TypeName    string
	Args        []Node
	IsArray     bool
	Dimension   Node // nil for `new T[]{...}`
	Initializer []Node
}

func (n *ConstructorReference) GetValue(s *State) (TypedValue, error) {
	if n.IsArray {
		return n.buildArray(s)
	}
	args := make([]TypedValue, len(n.Args))
	for i, a := range n.Args {
		v, err := a.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		args[i] = v
	}
	raw := make([]any, len(args))
	for i, a := range args {
		raw[i] = a.Value
	}
	for _, r := range s.Context().ConstructorResolvers() {
		exec, err := r.Resolve(s.Context(), n.TypeName, args)
		if err != nil {
			return NullValue, attachPosition(err, n.start)
		}
		if exec != nil {
			out, err := exec.Construct(s.Context(), raw)
			if err != nil {
				return NullValue, attachPosition(err, n.start)
			}
			return n.recordExit(out), nil
		}
	}
	return NullValue, newEvalError(n.start, CodeConstructorNotFound, n.TypeName, len(args))
}

func (n *ConstructorReference) buildArray(s *State) (TypedValue, error) {
	locator := s.Context().TypeLocator()
	if locator == nil {
		return NullValue, newEvalError(n.start, CodeUnknownType, n.TypeName)
	}
	elem, err := locator.FindType(n.TypeName)
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	length := len(n.Initializer)
	if n.Dimension != nil {
		d, err := n.Dimension.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		if !isNumber(d.Value) {
			return NullValue, newEvalError(n.start, CodeTypeConversion, typeNameOf(d.Value), "int")
		}
		length = int(asInt(d.Value))
		if length < 0 {
			return NullValue, newEvalError(n.start, CodeIndexOutOfBounds, length, 0)
		}
		if len(n.Initializer) > 0 && len(n.Initializer) != length {
			return NullValue, newEvalError(n.start, CodeArgumentCount, n.TypeName+"[]", stringify(int64(length)), len(n.Initializer))
		}
	}
	out := reflect.MakeSlice(reflect.SliceOf(elem), length, length)
	conv := s.Context().TypeConverter()
	for i, init := range n.Initializer {
		v, err := init.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		converted, err := conv.Convert(v.Value, elem)
		if err != nil {
			return NullValue, attachPosition(err, n.start)
		}
		out.Index(i).Set(valueFor(converted, elem))
	}
	return n.recordExit(NewTypedValue(out.Interface())), nil
}

func (n *ConstructorReference) String() string {
	if n.IsArray {
		var sb strings.Builder
		sb.WriteString("new " + n.TypeName + "[")
		if n.Dimension != nil {
			sb.WriteString(n.Dimension.String())
		}
		sb.WriteString("]")
		if len(n.Initializer) > 0 {
			parts := make([]string, len(n.Initializer))
			for i, e := range n.Initializer {
				parts[i] = e.String()
			}
			sb.WriteString("{" + strings.Join(parts, ",") + "}")
		}
		return sb.String()
	}
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return "new " + n.TypeName + "(" + strings.Join(parts, ",") + ")"
}
