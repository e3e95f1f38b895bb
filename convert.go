package sel

import (
	"reflect"
	"strconv"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/json"
)

// StandardTypeConverter implements the default conversion lattice: numeric
// widening and narrowing, string round-trips, lenient string-to-time
// parsing, and JSON-mediated map/struct conversion.
type StandardTypeConverter struct{}

func NewStandardTypeConverter() *StandardTypeConverter {
	return &StandardTypeConverter{}
}

var typeTime = reflect.TypeOf(time.Time{})

func (c *StandardTypeConverter) CanConvert(from, to reflect.Type) bool {
	if to == nil {
		return false
	}
	if from == nil {
		// nil converts to anything nilable.
		switch to.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	if from == to || from.AssignableTo(to) {
		return true
	}
	if isNumericKind(from.Kind()) && isNumericKind(to.Kind()) {
		return true
	}
	switch {
	case to.Kind() == reflect.String:
		return true
	case from.Kind() == reflect.String && (isNumericKind(to.Kind()) || to.Kind() == reflect.Bool || to == typeTime || to == reflect.TypeOf(time.Duration(0))):
		return true
	case from.ConvertibleTo(to):
		return true
	case (from.Kind() == reflect.Map || from.Kind() == reflect.Struct || (from.Kind() == reflect.Ptr && from.Elem().Kind() == reflect.Struct)) &&
		(to.Kind() == reflect.Map || to.Kind() == reflect.Struct):
		// JSON-mediated structural conversion.
		return true
	}
	return false
}

func (c *StandardTypeConverter) Convert(v any, to reflect.Type) (any, error) {
	if to == nil || to == typeAny {
		return v, nil
	}
	if v == nil {
		switch to.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(to).Interface(), nil
		}
		return nil, newEvalError(-1, CodeTypeConversion, "null", to.String())
	}
	from := reflect.TypeOf(v)
	if from == to || from.AssignableTo(to) {
		return v, nil
	}

	switch {
	case isNumericKind(from.Kind()) && isNumericKind(to.Kind()):
		return reflect.ValueOf(v).Convert(to).Interface(), nil
	case to.Kind() == reflect.String:
		return stringify(v), nil
	case from.Kind() == reflect.String:
		return c.convertFromString(v.(string), to)
	case from.ConvertibleTo(to):
		return reflect.ValueOf(v).Convert(to).Interface(), nil
	}

	// Structural conversion through JSON for map/struct shapes.
	if (from.Kind() == reflect.Map || from.Kind() == reflect.Struct || (from.Kind() == reflect.Ptr && from.Elem().Kind() == reflect.Struct)) &&
		(to.Kind() == reflect.Map || to.Kind() == reflect.Struct) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, newEvalError(-1, CodeTypeConversion, from.String(), to.String())
		}
		out := reflect.New(to)
		if err := json.Unmarshal(raw, out.Interface()); err != nil {
			return nil, newEvalError(-1, CodeTypeConversion, from.String(), to.String())
		}
		return out.Elem().Interface(), nil
	}

	return nil, newEvalError(-1, CodeTypeConversion, from.String(), to.String())
}

func (c *StandardTypeConverter) convertFromString(s string, to reflect.Type) (any, error) {
	switch {
	case isIntKind(to.Kind()):
		if to == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, newEvalError(-1, CodeTypeConversion, "string", to.String())
			}
			return d, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, newEvalError(-1, CodeTypeConversion, "string", to.String())
		}
		return reflect.ValueOf(i).Convert(to).Interface(), nil
	case isFloatKind(to.Kind()):
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, newEvalError(-1, CodeTypeConversion, "string", to.String())
		}
		return reflect.ValueOf(f).Convert(to).Interface(), nil
	case to.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, newEvalError(-1, CodeTypeConversion, "string", to.String())
		}
		return b, nil
	case to == typeTime:
		t, err := date.Parse(s)
		if err != nil {
			return nil, newEvalError(-1, CodeTypeConversion, "string", to.String())
		}
		return t, nil
	}
	if typeString.ConvertibleTo(to) {
		return reflect.ValueOf(s).Convert(to).Interface(), nil
	}
	return nil, newEvalError(-1, CodeTypeConversion, "string", to.String())
}

// Comparable lets domain values participate in relational operators without
// registering a custom comparator.
type Comparable interface {
	CompareTo(other any) (int, error)
}

// StandardTypeComparator orders numerics by value, strings ordinally, times
// chronologically, and defers to Comparable implementors.
type StandardTypeComparator struct{}

func (StandardTypeComparator) CanCompare(left, right any) bool {
	if left == nil || right == nil {
		return true
	}
	if isNumber(left) && isNumber(right) {
		return true
	}
	if _, ok := left.(string); ok {
		_, ok2 := right.(string)
		return ok2
	}
	if _, ok := left.(time.Time); ok {
		_, ok2 := right.(time.Time)
		return ok2
	}
	if _, ok := left.(Comparable); ok {
		return true
	}
	return false
}

func (StandardTypeComparator) Compare(left, right any) (int, error) {
	switch {
	case left == nil && right == nil:
		return 0, nil
	case left == nil:
		return -1, nil
	case right == nil:
		return 1, nil
	}
	if isNumber(left) && isNumber(right) {
		lf, rf := asFloat(left), asFloat(right)
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			switch {
			case ls < rs:
				return -1, nil
			case ls > rs:
				return 1, nil
			}
			return 0, nil
		}
	}
	if lt, ok := left.(time.Time); ok {
		if rt, ok := right.(time.Time); ok {
			switch {
			case lt.Before(rt):
				return -1, nil
			case lt.After(rt):
				return 1, nil
			}
			return 0, nil
		}
	}
	if lc, ok := left.(Comparable); ok {
		return lc.CompareTo(right)
	}
	return 0, newEvalError(-1, CodeNotComparable, typeNameOf(left), typeNameOf(right))
}

func isNumericKind(k reflect.Kind) bool {
	return isIntKind(k) || isFloatKind(k)
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
