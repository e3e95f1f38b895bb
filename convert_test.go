package sel

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestConverterNumericLattice(t *testing.T) {
	c := NewStandardTypeConverter()
	cases := []struct {
		in   any
		to   reflect.Type
		want any
	}{
		{int64(3), typeFloat64, 3.0},
		{2.0, typeInt64, int64(2)},
		{int(5), typeInt64, int64(5)},
		{int64(7), reflect.TypeOf(int32(0)), int32(7)},
		{"42", typeInt64, int64(42)},
		{"2.5", typeFloat64, 2.5},
		{"true", typeBool, true},
		{int64(9), typeString, "9"},
		{2.5, typeString, "2.5"},
		{true, typeString, "true"},
	}
	for _, tc := range cases {
		got, err := c.Convert(tc.in, tc.to)
		if err != nil {
			t.Errorf("convert %v (%T) to %v: %v", tc.in, tc.in, tc.to, err)
			continue
		}
		if got != tc.want {
			t.Errorf("convert %v to %v = %v (%T), want %v", tc.in, tc.to, got, got, tc.want)
		}
	}

	if _, err := c.Convert("not a number", typeInt64); err == nil {
		t.Errorf("garbage string to int did not error")
	}
	if _, err := c.Convert(nil, typeInt64); err == nil {
		t.Errorf("null to int did not error")
	}
}

func TestConverterTimeAndDuration(t *testing.T) {
	c := NewStandardTypeConverter()

	v, err := c.Convert("2026-08-29", typeTime)
	if err != nil {
		t.Fatalf("string to time: %v", err)
	}
	ts, ok := v.(time.Time)
	if !ok || ts.Year() != 2026 || ts.Month() != time.August {
		t.Errorf("parsed time = %v", v)
	}

	d, err := c.Convert("90s", reflect.TypeOf(time.Duration(0)))
	if err != nil || d != 90*time.Second {
		t.Errorf("string to duration = %v, %v", d, err)
	}
}

func TestConverterStructuralJSON(t *testing.T) {
	type profile struct {
		Name string `json:"name"`
		Age  int64  `json:"age"`
	}
	c := NewStandardTypeConverter()

	v, err := c.Convert(map[string]any{"name": "ada", "age": 36}, reflect.TypeOf(profile{}))
	if err != nil {
		t.Fatalf("map to struct: %v", err)
	}
	p, ok := v.(profile)
	if !ok || p.Name != "ada" || p.Age != 36 {
		t.Errorf("converted struct = %#v", v)
	}

	back, err := c.Convert(p, reflect.TypeOf(map[string]any{}))
	if err != nil {
		t.Fatalf("struct to map: %v", err)
	}
	m, ok := back.(map[string]any)
	if !ok || m["name"] != "ada" {
		t.Errorf("converted map = %#v", back)
	}
}

func TestConverterNilTargets(t *testing.T) {
	c := NewStandardTypeConverter()
	v, err := c.Convert(nil, reflect.TypeOf([]any{}))
	if err != nil {
		t.Fatalf("nil to slice: %v", err)
	}
	if v.([]any) != nil {
		t.Errorf("nil slice conversion = %#v", v)
	}
	if !c.CanConvert(nil, reflect.TypeOf(map[string]any{})) {
		t.Errorf("CanConvert(nil, map) = false")
	}
	if c.CanConvert(nil, typeInt64) {
		t.Errorf("CanConvert(nil, int64) = true")
	}
}

func TestComparatorOrdering(t *testing.T) {
	cmp := StandardTypeComparator{}
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	cases := []struct {
		left, right any
		want        int
	}{
		{int64(1), int64(2), -1},
		{2.5, int64(2), 1},
		{int64(3), 3.0, 0},
		{"a", "b", -1},
		{"b", "b", 0},
		{early, late, -1},
		{late, early, 1},
		{nil, nil, 0},
		{nil, int64(1), -1},
		{int64(1), nil, 1},
	}
	for _, c := range cases {
		got, err := cmp.Compare(c.left, c.right)
		if err != nil {
			t.Errorf("compare %v vs %v: %v", c.left, c.right, err)
			continue
		}
		if got != c.want {
			t.Errorf("compare %v vs %v = %d, want %d", c.left, c.right, got, c.want)
		}
	}

	if _, err := cmp.Compare("x", int64(1)); err == nil {
		t.Errorf("incomparable pair did not error")
	}
	if cmp.CanCompare([]int{1}, []int{2}) {
		t.Errorf("CanCompare on slices = true")
	}
}

type version struct {
	major, minor int
}

func (v version) CompareTo(other any) (int, error) {
	o, ok := other.(version)
	if !ok {
		return 0, fmt.Errorf("cannot compare version with %T", other)
	}
	if v.major != o.major {
		if v.major < o.major {
			return -1, nil
		}
		return 1, nil
	}
	switch {
	case v.minor < o.minor:
		return -1, nil
	case v.minor > o.minor:
		return 1, nil
	}
	return 0, nil
}

func TestComparatorComparable(t *testing.T) {
	cmp := StandardTypeComparator{}
	if !cmp.CanCompare(version{1, 2}, version{1, 3}) {
		t.Fatalf("CanCompare on Comparable = false")
	}
	got, err := cmp.Compare(version{1, 2}, version{1, 3})
	if err != nil || got != -1 {
		t.Fatalf("Comparable compare = %d, %v", got, err)
	}
	if _, err := cmp.Compare(version{1, 0}, "nope"); err == nil {
		t.Errorf("Comparable type mismatch did not error")
	}
}
