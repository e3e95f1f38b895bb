package sel

import (
	"fmt"
	"reflect"
	"strconv"
)

// isNumber reports whether v is one of the numeric carriers the operators
// understand.
func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// isIntegral reports whether v is an integer-kinded number.
func isIntegral(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceBool enforces the strict boolean contract of the logical operators:
// only actual booleans pass.
func coerceBool(tv TypedValue, pos int) (bool, error) {
	if b, ok := tv.Value.(bool); ok {
		return b, nil
	}
	return false, newEvalError(pos, CodeBooleanCoercion, typeNameOf(tv.Value))
}

// asIterable normalizes the projectable/selectable operand shapes into a
// []any view. Map operands yield their values. Returns ok=false for
// anything that is not a slice, array, or map.
func asIterable(v any) (items []any, ok bool) {
	switch c := v.(type) {
	case []any:
		return c, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
		return items, true
	case reflect.Map:
		keys := rv.MapKeys()
		items = make([]any, len(keys))
		for i, k := range keys {
			items[i] = rv.MapIndex(k).Interface()
		}
		return items, true
	}
	return nil, false
}
