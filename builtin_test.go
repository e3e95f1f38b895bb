package sel

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func callBuiltin(t *testing.T, name string, args ...any) any {
	t.Helper()
	fn, ok := builtinFunctions[name]
	if !ok {
		t.Fatalf("builtin %q is not registered", name)
	}
	v, err := fn(args)
	if err != nil {
		t.Fatalf("%s(%v): %v", name, args, err)
	}
	return v
}

func TestBuiltinCollections(t *testing.T) {
	m := map[string]any{"b": int64(2), "a": int64(1)}

	keys := callBuiltin(t, "keys", m)
	if !reflect.DeepEqual(keys, []any{"a", "b"}) {
		t.Errorf("keys = %#v", keys)
	}
	values := callBuiltin(t, "values", m)
	if !reflect.DeepEqual(values, []any{int64(1), int64(2)}) {
		t.Errorf("values = %#v", values)
	}

	sorted := callBuiltin(t, "sort", []any{int64(3), int64(1), int64(2)})
	if !reflect.DeepEqual(sorted, []any{int64(1), int64(2), int64(3)}) {
		t.Errorf("sort = %#v", sorted)
	}

	distinct := callBuiltin(t, "distinct", []any{int64(1), int64(2), int64(1), int64(3)})
	if !reflect.DeepEqual(distinct, []any{int64(1), int64(2), int64(3)}) {
		t.Errorf("distinct = %#v", distinct)
	}
}

func TestBuiltinConversions(t *testing.T) {
	if v := callBuiltin(t, "toInt", "42"); v != int64(42) {
		t.Errorf("toInt = %v (%T)", v, v)
	}
	if v := callBuiltin(t, "toInt", 42.0); v != int64(42) {
		t.Errorf("toInt from float = %v (%T)", v, v)
	}
	if v := callBuiltin(t, "toFloat", "2.5"); v != 2.5 {
		t.Errorf("toFloat = %v (%T)", v, v)
	}
	if v := callBuiltin(t, "toBool", "true"); v != true {
		t.Errorf("toBool = %v (%T)", v, v)
	}
	if v := callBuiltin(t, "toString", int64(7)); v != "7" {
		t.Errorf("toString = %v", v)
	}
	if v := callBuiltin(t, "typeOf", "x"); v != "string" {
		t.Errorf("typeOf = %v", v)
	}
	if _, err := builtinFunctions["toInt"]([]any{"not a number"}); err == nil {
		t.Errorf("toInt on garbage did not error")
	}
}

func TestBuiltinJson(t *testing.T) {
	s := callBuiltin(t, "toJson", map[string]any{"n": int64(1)})
	if s != `{"n":1}` {
		t.Errorf("toJson = %v", s)
	}
	v := callBuiltin(t, "fromJson", `{"a": [1, 2]}`)
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("fromJson = %T", v)
	}
	if _, ok := m["a"]; !ok {
		t.Errorf("fromJson dropped key: %#v", m)
	}
	if _, err := builtinFunctions["fromJson"]([]any{"{"}); err == nil {
		t.Errorf("fromJson on malformed input did not error")
	}
}

func TestBuiltinDates(t *testing.T) {
	if v := callBuiltin(t, "date", "2026-08-29T10:00:00Z"); v != "2026-08-29" {
		t.Errorf("date = %v", v)
	}
	v := callBuiltin(t, "dateFormat", "2026-08-29", "01/2006")
	if v != "08/2026" {
		t.Errorf("dateFormat = %v", v)
	}
	now, ok := callBuiltin(t, "now").(time.Time)
	if !ok {
		t.Fatalf("now returned %T", now)
	}
	if now.Location() != time.UTC {
		t.Errorf("now is not UTC: %v", now.Location())
	}
	later, ok := callBuiltin(t, "addSecondsToNow", int64(60)).(time.Time)
	if !ok || !later.After(now) {
		t.Errorf("addSecondsToNow = %v", later)
	}
}

func TestBuiltinUniqueid(t *testing.T) {
	a := callBuiltin(t, "uniqueid").(string)
	b := callBuiltin(t, "uniqueid").(string)
	if a == "" || a == b {
		t.Errorf("uniqueid not unique: %q %q", a, b)
	}
}

func TestBuiltinStringOps(t *testing.T) {
	if v := callBuiltin(t, "replace", "a-b-c", "-", "."); v != "a.b.c" {
		t.Errorf("replace = %v", v)
	}
	split := callBuiltin(t, "split", "a,b,c", ",")
	if !reflect.DeepEqual(split, []any{"a", "b", "c"}) {
		t.Errorf("split = %#v", split)
	}
	if v := callBuiltin(t, "startsWith", "hello", "he"); v != true {
		t.Errorf("startsWith = %v", v)
	}
	if v := callBuiltin(t, "endsWith", "hello", "lo"); v != true {
		t.Errorf("endsWith = %v", v)
	}
}

func TestBuiltinArityErrors(t *testing.T) {
	cases := []struct {
		name string
		args []any
	}{
		{"upper", nil},
		{"join", []any{[]any{"a"}}},
		{"substring", []any{"x"}},
		{"replace", []any{"a", "b"}},
	}
	for _, c := range cases {
		if _, err := builtinFunctions[c.name](c.args); err == nil {
			t.Errorf("%s with %d args did not error", c.name, len(c.args))
		} else if !strings.Contains(err.Error(), c.name) {
			t.Errorf("%s error does not name the function: %v", c.name, err)
		}
	}
}
