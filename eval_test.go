package sel

import (
	"math"
	"reflect"
	"testing"
)

type order struct {
	Qty   int64
	Price float64
}

func (o order) Total() float64 { return float64(o.Qty) * o.Price }

type account struct {
	Owner   string
	balance float64
}

func (a *account) Balance() float64       { return a.balance }
func (a *account) Deposit(amount float64) { a.balance += amount }
func (a account) GetLabel() string        { return "acct:" + a.Owner }

func evalOn(t *testing.T, input string, root any) any {
	t.Helper()
	v, err := Eval(input, root)
	if err != nil {
		t.Fatalf("eval %q: %v", input, err)
	}
	return v
}

func TestEvalArithmetic(t *testing.T) {
	cases := []struct {
		input string
		want  any
	}{
		{"1 + 2 * 3", int64(7)},
		{"(1 + 2) * 3", int64(9)},
		{"10 / 4", int64(2)},
		{"10.0 / 4", 2.5},
		{"10 mod 3", int64(1)},
		{"10 % 3", int64(1)},
		{"7 - 10", int64(-3)},
		{"-5 + 3", int64(-2)},
		{"2 ^ 10", int64(1024)},
		{"2.0 ^ 0.5", math.Sqrt2},
		{"6 div 2", int64(3)},
		{"1 + 2.5", 3.5},
	}
	for _, c := range cases {
		got := evalOn(t, c.input, nil)
		if got != c.want {
			t.Errorf("eval %q = %v (%T), want %v (%T)", c.input, got, got, c.want, c.want)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	if _, err := Eval("1 / 0", nil); err == nil {
		t.Fatalf("integer division by zero did not error")
	}
	if _, err := Eval("1 mod 0", nil); err == nil {
		t.Fatalf("integer modulo by zero did not error")
	}
	v := evalOn(t, "1.0 / 0", nil)
	if f, ok := v.(float64); !ok || !math.IsInf(f, 1) {
		t.Errorf("1.0 / 0 = %v, want +Inf", v)
	}
}

func TestEvalStringConcat(t *testing.T) {
	if got := evalOn(t, "'ab' + 'cd'", nil); got != "abcd" {
		t.Errorf("string concat = %v", got)
	}
	if got := evalOn(t, "'n: ' + 5", nil); got != "n: 5" {
		t.Errorf("string + number = %v", got)
	}
	if got := evalOn(t, "1 + ' item'", nil); got != "1 item" {
		t.Errorf("number + string = %v", got)
	}
}

func TestEvalRelational(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"3 > 2", true},
		{"2 >= 2", true},
		{"1 < 1", false},
		{"1 <= 1", true},
		{"1 == 1.0", true},
		{"1 != 2", true},
		{"'a' < 'b'", true},
		{"'b' eq 'b'", true},
		{"3 gt 2", true},
		{"2 le 1", false},
		{"null == null", true},
		{"null != 'x'", true},
	}
	for _, c := range cases {
		got := evalOn(t, c.input, nil)
		if got != c.want {
			t.Errorf("eval %q = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestEvalLogical(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"true and true", true},
		{"true and false", false},
		{"false or true", true},
		{"false or false", false},
		{"!false", true},
		{"not true", false},
	}
	for _, c := range cases {
		got := evalOn(t, c.input, nil)
		if got != c.want {
			t.Errorf("eval %q = %v, want %v", c.input, got, c.want)
		}
	}

	// Short circuit: the right operand is never evaluated.
	if got := evalOn(t, "false and (1/0 == 0)", nil); got != false {
		t.Errorf("short-circuit and = %v", got)
	}
	if got := evalOn(t, "true or (1/0 == 0)", nil); got != true {
		t.Errorf("short-circuit or = %v", got)
	}

	// Operands must actually be booleans.
	if _, err := Eval("1 and true", nil); err == nil {
		t.Errorf("non-boolean and operand did not error")
	}
}

func TestEvalTernaryAndElvis(t *testing.T) {
	if got := evalOn(t, "true ? 'yes' : 'no'", nil); got != "yes" {
		t.Errorf("ternary true branch = %v", got)
	}
	if got := evalOn(t, "1 > 2 ? 'yes' : 'no'", nil); got != "no" {
		t.Errorf("ternary false branch = %v", got)
	}
	if _, err := Eval("'x' ? 1 : 2", nil); err == nil {
		t.Errorf("non-boolean ternary condition did not error")
	}

	// Elvis falls through on null and on the empty string.
	if got := evalOn(t, "null ?: 'fallback'", nil); got != "fallback" {
		t.Errorf("elvis on null = %v", got)
	}
	if got := evalOn(t, "'' ?: 'fallback'", nil); got != "fallback" {
		t.Errorf("elvis on empty string = %v", got)
	}
	if got := evalOn(t, "'value' ?: 'fallback'", nil); got != "value" {
		t.Errorf("elvis on value = %v", got)
	}
	if got := evalOn(t, "0 ?: 42", nil); got != int64(0) {
		t.Errorf("elvis on zero = %v, want 0", got)
	}
}

func TestEvalMatches(t *testing.T) {
	if got := evalOn(t, "'hello' matches 'hel.*'", nil); got != true {
		t.Errorf("matches full pattern = %v", got)
	}
	// The pattern is anchored: a mid-string hit is not a match.
	if got := evalOn(t, "'hello' matches 'ell'", nil); got != false {
		t.Errorf("matches substring = %v, want false", got)
	}
	if got := evalOn(t, "'abc123' matches '[a-z]+[0-9]+'", nil); got != true {
		t.Errorf("matches character classes = %v", got)
	}
	if _, err := Eval("'x' matches '['", nil); err == nil {
		t.Errorf("invalid pattern did not error")
	}
}

func TestEvalBetween(t *testing.T) {
	if got := evalOn(t, "5 between {1, 10}", nil); got != true {
		t.Errorf("5 between {1,10} = %v", got)
	}
	if got := evalOn(t, "1 between {1, 10}", nil); got != true {
		t.Errorf("lower bound inclusive = %v", got)
	}
	if got := evalOn(t, "11 between {1, 10}", nil); got != false {
		t.Errorf("above range = %v", got)
	}
	if _, err := Eval("5 between {1}", nil); err == nil {
		t.Errorf("one-element bounds did not error")
	}
}

func TestEvalInstanceof(t *testing.T) {
	if got := evalOn(t, "'x' instanceof T(string)", nil); got != true {
		t.Errorf("string instanceof = %v", got)
	}
	if got := evalOn(t, "1 instanceof T(int)", nil); got != true {
		t.Errorf("int instanceof = %v", got)
	}
	if got := evalOn(t, "1 instanceof T(string)", nil); got != false {
		t.Errorf("cross-type instanceof = %v", got)
	}
	if got := evalOn(t, "null instanceof T(string)", nil); got != false {
		t.Errorf("null instanceof = %v", got)
	}
}

func TestEvalInlineCollections(t *testing.T) {
	v := evalOn(t, "{1, 2, 3}", nil)
	want := []any{int64(1), int64(2), int64(3)}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("inline list = %#v", v)
	}
	if v := evalOn(t, "{}", nil); !reflect.DeepEqual(v, []any{}) {
		t.Errorf("empty list = %#v", v)
	}

	m := evalOn(t, "{name: 'ada', age: 36}", nil)
	wantMap := map[string]any{"name": "ada", "age": int64(36)}
	if !reflect.DeepEqual(m, wantMap) {
		t.Errorf("inline map = %#v", m)
	}
	if m := evalOn(t, "{:}", nil); !reflect.DeepEqual(m, map[string]any{}) {
		t.Errorf("empty map = %#v", m)
	}

	// Elements may be arbitrary expressions, not just literals.
	v = evalOn(t, "{1 + 1, 2 * 2}", nil)
	if !reflect.DeepEqual(v, []any{int64(2), int64(4)}) {
		t.Errorf("computed list = %#v", v)
	}
}

func TestEvalMapRootProperties(t *testing.T) {
	root := map[string]any{
		"name":   "widget",
		"detail": map[string]any{"weight": 12.5},
	}
	if got := evalOn(t, "name", root); got != "widget" {
		t.Errorf("top-level map property = %v", got)
	}
	if got := evalOn(t, "detail.weight", root); got != 12.5 {
		t.Errorf("nested map property = %v", got)
	}
}

func TestEvalStructProperties(t *testing.T) {
	o := order{Qty: 3, Price: 2.5}
	if got := evalOn(t, "qty", o); got != int64(3) {
		t.Errorf("struct field read = %v", got)
	}
	if got := evalOn(t, "Qty", o); got != int64(3) {
		t.Errorf("exact-case field read = %v", got)
	}
	if got := evalOn(t, "qty * price", o); got != 7.5 {
		t.Errorf("field arithmetic = %v", got)
	}

	a := &account{Owner: "ada", balance: 10}
	if got := evalOn(t, "balance", a); got != 10.0 {
		t.Errorf("getter-backed property = %v", got)
	}
	if got := evalOn(t, "label", a); got != "acct:ada" {
		t.Errorf("Get-prefixed getter = %v", got)
	}
}

func TestEvalLengthPseudoProperty(t *testing.T) {
	root := map[string]any{"items": []any{1, 2, 3}, "word": "hello"}
	if got := evalOn(t, "items.length", root); got != int64(3) {
		t.Errorf("slice length = %v", got)
	}
	if got := evalOn(t, "items.size", root); got != int64(3) {
		t.Errorf("slice size = %v", got)
	}
	if got := evalOn(t, "word.length", root); got != int64(5) {
		t.Errorf("string length = %v", got)
	}
}

func TestEvalMethodCalls(t *testing.T) {
	o := order{Qty: 4, Price: 1.5}
	if got := evalOn(t, "total()", o); got != 6.0 {
		t.Errorf("value-receiver method = %v", got)
	}

	a := &account{Owner: "ada", balance: 5}
	if got := evalOn(t, "deposit(10) == null ? balance : -1.0", a); got != 15.0 {
		t.Errorf("pointer-receiver mutation = %v", got)
	}

	if _, err := Eval("vanish()", o); err == nil {
		t.Errorf("missing method did not error")
	}
}

func TestEvalNullSafeNavigation(t *testing.T) {
	root := map[string]any{"a": nil, "b": map[string]any{"c": int64(1)}}
	if got := evalOn(t, "a?.x", root); got != nil {
		t.Errorf("null-safe over nil = %v, want nil", got)
	}
	if got := evalOn(t, "b?.c", root); got != int64(1) {
		t.Errorf("null-safe over value = %v", got)
	}
	// Without ?. a nil intermediate is an error.
	if _, err := Eval("a.x", root); err == nil {
		t.Errorf("navigation over nil did not error")
	}
}

func TestEvalIndexer(t *testing.T) {
	root := map[string]any{
		"nums":  []any{int64(10), int64(20), int64(30)},
		"byKey": map[string]any{"a": int64(1)},
		"word":  "hello",
	}
	if got := evalOn(t, "nums[1]", root); got != int64(20) {
		t.Errorf("slice index = %v", got)
	}
	if got := evalOn(t, "nums[1 + 1]", root); got != int64(30) {
		t.Errorf("computed index = %v", got)
	}
	if got := evalOn(t, "byKey['a']", root); got != int64(1) {
		t.Errorf("map index = %v", got)
	}
	if got := evalOn(t, "byKey['missing']", root); got != nil {
		t.Errorf("missing map key = %v, want nil", got)
	}
	if got := evalOn(t, "word[1]", root); got != "e" {
		t.Errorf("string index = %v", got)
	}
	if _, err := Eval("nums[9]", root); err == nil {
		t.Errorf("out-of-range index did not error")
	}
	if _, err := Eval("nums[-1]", root); err == nil {
		t.Errorf("negative index did not error")
	}
}

func TestEvalProjection(t *testing.T) {
	root := map[string]any{"nums": []any{int64(1), int64(2), int64(3)}}
	v := evalOn(t, "nums.![#this * 2]", root)
	if !reflect.DeepEqual(v, []any{int64(2), int64(4), int64(6)}) {
		t.Errorf("projection = %#v", v)
	}
	v = evalOn(t, "nums.![#index]", root)
	if !reflect.DeepEqual(v, []any{int64(0), int64(1), int64(2)}) {
		t.Errorf("index projection = %#v", v)
	}

	orders := map[string]any{"orders": []any{
		map[string]any{"total": int64(5)},
		map[string]any{"total": int64(7)},
	}}
	v = evalOn(t, "orders.![total]", orders)
	if !reflect.DeepEqual(v, []any{int64(5), int64(7)}) {
		t.Errorf("property projection = %#v", v)
	}
}

func TestEvalSelection(t *testing.T) {
	root := map[string]any{"nums": []any{int64(1), int64(5), int64(3), int64(8)}}

	v := evalOn(t, "nums.?[#this > 2]", root)
	if !reflect.DeepEqual(v, []any{int64(5), int64(3), int64(8)}) {
		t.Errorf("select all = %#v", v)
	}
	if got := evalOn(t, "nums.^[#this > 2]", root); got != int64(5) {
		t.Errorf("select first = %v", got)
	}
	if got := evalOn(t, "nums.$[#this > 2]", root); got != int64(8) {
		t.Errorf("select last = %v", got)
	}

	// No match: all gives an empty list, first/last give null.
	v = evalOn(t, "nums.?[#this > 100]", root)
	if !reflect.DeepEqual(v, []any{}) {
		t.Errorf("select all no match = %#v", v)
	}
	if got := evalOn(t, "nums.^[#this > 100]", root); got != nil {
		t.Errorf("select first no match = %v", got)
	}

	// The criterion must produce a boolean.
	if _, err := Eval("nums.?[#this + 1]", root); err == nil {
		t.Errorf("non-boolean criterion did not error")
	}
}

func TestEvalMapSelection(t *testing.T) {
	root := map[string]any{"scores": map[string]any{
		"ada":   int64(9),
		"grace": int64(4),
	}}
	v := evalOn(t, "scores.?[value > 5]", root)
	want := map[string]any{"ada": int64(9)}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("map selection = %#v", v)
	}
}

func TestEvalVariables(t *testing.T) {
	v, err := EvalWithVariables("#x + #y", nil, map[string]any{"x": int64(2), "y": int64(3)})
	if err != nil {
		t.Fatalf("eval with variables: %v", err)
	}
	if v != int64(5) {
		t.Errorf("#x + #y = %v", v)
	}

	root := map[string]any{"n": int64(7)}
	if got := evalOn(t, "#root.n", root); got != int64(7) {
		t.Errorf("#root = %v", got)
	}
	if got := evalOn(t, "#this.n", root); got != int64(7) {
		t.Errorf("#this at top level = %v", got)
	}
	if _, err := Eval("#undefined", nil); err == nil {
		t.Errorf("undefined variable did not error")
	}
}

func TestEvalBuiltinFunctions(t *testing.T) {
	cases := []struct {
		input string
		want  any
	}{
		{"#upper('abc')", "ABC"},
		{"#lower('ABC')", "abc"},
		{"#trim('  x  ')", "x"},
		{"#len('hello')", int64(5)},
		{"#contains('hello', 'ell')", true},
		{"#substring('hello', 1, 3)", "el"},
		{"#abs(-4)", int64(4)},
		{"#min(3, 1, 2)", 1.0},
		{"#max(3, 1, 2)", 3.0},
		{"#sum({1, 2, 3})", 6.0},
		{"#join({'a', 'b'}, '-')", "a-b"},
		{"#toInt('42')", int64(42)},
		{"#toString(42)", "42"},
	}
	for _, c := range cases {
		got := evalOn(t, c.input, nil)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("eval %q = %v (%T), want %v", c.input, got, got, c.want)
		}
	}

	if _, err := Eval("#upper()", nil); err == nil {
		t.Errorf("builtin arity violation did not error")
	}
	if _, err := Eval("#nosuchfn(1)", nil); err == nil {
		t.Errorf("unknown function did not error")
	}
}

func TestEvalRegisteredFunction(t *testing.T) {
	expr := MustParse("#double(21)")
	ctx := NewStandardContext(nil)
	ctx.RegisterFunction("double", func(n int64) int64 { return n * 2 })
	v, err := expr.GetValue(ctx, nil)
	if err != nil {
		t.Fatalf("registered function: %v", err)
	}
	if v != int64(42) {
		t.Errorf("#double(21) = %v", v)
	}
}

func TestEvalAssignment(t *testing.T) {
	root := map[string]any{"name": "old", "counter": int64(5)}
	if got := evalOn(t, "name = 'new'", root); got != "new" {
		t.Errorf("assignment value = %v", got)
	}
	if root["name"] != "new" {
		t.Errorf("assignment did not write through: %v", root["name"])
	}

	if got := evalOn(t, "counter++", root); got != int64(5) {
		t.Errorf("postfix increment = %v, want old value", got)
	}
	if root["counter"] != int64(6) {
		t.Errorf("postfix increment did not write: %v", root["counter"])
	}
	if got := evalOn(t, "++counter", root); got != int64(7) {
		t.Errorf("prefix increment = %v, want new value", got)
	}
	if got := evalOn(t, "--counter", root); got != int64(6) {
		t.Errorf("prefix decrement = %v", got)
	}
}

func TestEvalStructAssignment(t *testing.T) {
	o := &order{Qty: 1, Price: 2}
	if got := evalOn(t, "qty = 9", o); got != int64(9) {
		t.Errorf("struct assignment value = %v", got)
	}
	if o.Qty != 9 {
		t.Errorf("struct field not written: %d", o.Qty)
	}

	expr := MustParse("price")
	ctx := NewStandardContext(o)
	ok, err := expr.IsWritable(ctx, o)
	if err != nil || !ok {
		t.Errorf("IsWritable(price) = %v, %v", ok, err)
	}
}

func TestEvalReadOnlyContext(t *testing.T) {
	root := map[string]any{"name": "x"}
	expr := MustParse("name = 'y'")
	ctx := NewSimpleContext(root, WithRootReadOnly())
	if err := expr.SetValue(ctx, root, "y"); err == nil {
		t.Errorf("SetValue on read-only context did not error")
	}
}

func TestEvalConstructor(t *testing.T) {
	type point struct {
		X int64
		Y int64
	}
	expr := MustParse("new Point(3, 4)")
	ctx := NewStandardContext(nil)
	ctx.RegisterType("Point", reflect.TypeOf(point{}))
	v, err := expr.GetValue(ctx, nil)
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	p, ok := v.(point)
	if !ok || p.X != 3 || p.Y != 4 {
		t.Errorf("new Point(3, 4) = %#v", v)
	}
}

func TestEvalArrayConstructor(t *testing.T) {
	v := evalOn(t, "new int[3]", nil)
	arr, ok := v.([]int64)
	if !ok || len(arr) != 3 {
		t.Fatalf("new int[3] = %#v", v)
	}

	v = evalOn(t, "new int[]{1, 2, 3}", nil)
	if !reflect.DeepEqual(v, []int64{1, 2, 3}) {
		t.Errorf("array with initializer = %#v", v)
	}

	v = evalOn(t, "new int[3]{1, 2, 3}", nil)
	if !reflect.DeepEqual(v, []int64{1, 2, 3}) {
		t.Errorf("sized array with initializer = %#v", v)
	}

	// Dimension and initializer length must agree.
	if _, err := Eval("new int[2]{1, 2, 3}", nil); err == nil {
		t.Errorf("mismatched array dimension did not error")
	}
}

func TestEvalTypeReference(t *testing.T) {
	v := evalOn(t, "T(string)", nil)
	if v != reflect.TypeOf("") {
		t.Errorf("T(string) = %v", v)
	}
	if _, err := Eval("T(NoSuchType)", nil); err == nil {
		t.Errorf("unknown type did not error")
	}
}

type mapBeanResolver map[string]any

func (m mapBeanResolver) Resolve(ctx EvaluationContext, name string, factory bool) (any, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return nil, newEvalError(-1, CodeUnresolvedBeanRef, name)
}

func TestEvalBeanReference(t *testing.T) {
	expr := MustParse("@greeter.greeting")
	ctx := NewStandardContext(nil)
	ctx.SetBeanResolver(mapBeanResolver{
		"greeter":     map[string]any{"greeting": "hi"},
		"app.greeter": "yo",
	})
	v, err := expr.GetValue(ctx, nil)
	if err != nil {
		t.Fatalf("bean reference: %v", err)
	}
	if v != "hi" {
		t.Errorf("@greeter.greeting = %v", v)
	}

	// Dotted bean ids use the quoted form.
	if v, err := MustParse("@'app.greeter'").GetValue(ctx, nil); err != nil || v != "yo" {
		t.Errorf("@'app.greeter' = %v, %v", v, err)
	}

	missing := MustParse("@absent")
	if _, err := missing.GetValue(ctx, nil); err == nil {
		t.Errorf("missing bean did not error")
	}

	noResolver := MustParse("@greeter")
	if _, err := noResolver.GetValue(NewStandardContext(nil), nil); err == nil {
		t.Errorf("bean reference without resolver did not error")
	}
}

func TestEvalBuiltinStyleMethods(t *testing.T) {
	root := map[string]any{
		"name": "widget",
		"tags": []any{"a", "b", "c"},
		"meta": map[string]any{"k": int64(1)},
	}
	if got := evalOn(t, "'hello'.length()", root); got != int64(5) {
		t.Errorf("'hello'.length() = %v", got)
	}
	if got := evalOn(t, "tags.size()", root); got != int64(3) {
		t.Errorf("tags.size() = %v", got)
	}
	if got := evalOn(t, "meta.size()", root); got != int64(1) {
		t.Errorf("meta.size() = %v", got)
	}
	if got := evalOn(t, "name.upper()", root); got != "WIDGET" {
		t.Errorf("name.upper() = %v", got)
	}
	if got := evalOn(t, "'hello'.replace('l', 'L')", root); got != "heLLo" {
		t.Errorf("replace as method = %v", got)
	}
	if got := evalOn(t, "'hello'.substring(1, 3)", root); got != "el" {
		t.Errorf("substring as method = %v", got)
	}
	if _, err := Eval("'hello'.bogus()", nil); err == nil {
		t.Errorf("unknown string method did not error")
	}
}

func TestEvalMethodArgumentsSeeRoot(t *testing.T) {
	// Arguments inside a chained call resolve against the root object, not
	// the chain's current element.
	root := map[string]any{
		"acct":  &account{Owner: "ada", balance: 0},
		"bonus": 25.0,
	}
	if got := evalOn(t, "acct.deposit(bonus) == null ? acct.balance : -1.0", root); got != 25.0 {
		t.Errorf("argument root resolution = %v", got)
	}
}

func TestEvalIndexExpressionSeesRoot(t *testing.T) {
	root := map[string]any{
		"nums": []any{int64(10), int64(20), int64(30)},
		"i":    int64(2),
	}
	if got := evalOn(t, "nums[i]", root); got != int64(30) {
		t.Errorf("index against root = %v", got)
	}
}
