package sel

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/errors"
	"github.com/oarkflow/json"
	"github.com/oarkflow/xid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// registerBuiltins installs the builtin function set on a standard context.
// Every builtin uses the func([]any) (any, error) signature so calls skip
// reflective invocation.
func registerBuiltins(c *StandardContext) {
	for name, fn := range builtinFunctions {
		c.RegisterFunction(name, fn)
	}
}

func wantArgs(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		return errors.New(fmt.Sprintf("%s: invalid number of arguments", name))
	}
	return nil
}

func wantString(name string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New(fmt.Sprintf("%s: invalid argument type %s", name, typeNameOf(v)))
	}
	return s, nil
}

func wantNumber(name string, v any) (float64, error) {
	if !isNumber(v) {
		return 0, errors.New(fmt.Sprintf("%s: invalid argument type %s", name, typeNameOf(v)))
	}
	return asFloat(v), nil
}

var builtinFunctions = map[string]func([]any) (any, error){
	"trim": func(args []any) (any, error) {
		if err := wantArgs("trim", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := wantString("trim", args[0])
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil
	},
	"upper": func(args []any) (any, error) {
		if err := wantArgs("upper", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := wantString("upper", args[0])
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil
	},
	"lower": func(args []any) (any, error) {
		if err := wantArgs("lower", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := wantString("lower", args[0])
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	},
	"replace": func(args []any) (any, error) {
		if err := wantArgs("replace", args, 3, 3); err != nil {
			return nil, err
		}
		s, err := wantString("replace", args[0])
		if err != nil {
			return nil, err
		}
		old, err := wantString("replace", args[1])
		if err != nil {
			return nil, err
		}
		repl, err := wantString("replace", args[2])
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, repl), nil
	},
	"split": func(args []any) (any, error) {
		if err := wantArgs("split", args, 2, 2); err != nil {
			return nil, err
		}
		s, err := wantString("split", args[0])
		if err != nil {
			return nil, err
		}
		sep, err := wantString("split", args[1])
		if err != nil {
			return nil, err
		}
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
	"join": func(args []any) (any, error) {
		if err := wantArgs("join", args, 2, 2); err != nil {
			return nil, err
		}
		elems, ok := asIterable(args[0])
		if !ok {
			return nil, errors.New(fmt.Sprintf("join: invalid argument type %s", typeNameOf(args[0])))
		}
		sep, err := wantString("join", args[1])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, sep), nil
	},
	"contains": func(args []any) (any, error) {
		if err := wantArgs("contains", args, 2, 2); err != nil {
			return nil, err
		}
		if s, ok := args[0].(string); ok {
			sub, err := wantString("contains", args[1])
			if err != nil {
				return nil, err
			}
			return strings.Contains(s, sub), nil
		}
		elems, ok := asIterable(args[0])
		if !ok {
			return nil, errors.New(fmt.Sprintf("contains: invalid argument type %s", typeNameOf(args[0])))
		}
		for _, e := range elems {
			if valuesEqual(e, args[1]) {
				return true, nil
			}
		}
		return false, nil
	},
	"startsWith": func(args []any) (any, error) {
		if err := wantArgs("startsWith", args, 2, 2); err != nil {
			return nil, err
		}
		s, err := wantString("startsWith", args[0])
		if err != nil {
			return nil, err
		}
		prefix, err := wantString("startsWith", args[1])
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, prefix), nil
	},
	"endsWith": func(args []any) (any, error) {
		if err := wantArgs("endsWith", args, 2, 2); err != nil {
			return nil, err
		}
		s, err := wantString("endsWith", args[0])
		if err != nil {
			return nil, err
		}
		suffix, err := wantString("endsWith", args[1])
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(s, suffix), nil
	},
	"substring": func(args []any) (any, error) {
		if err := wantArgs("substring", args, 2, 3); err != nil {
			return nil, err
		}
		s, err := wantString("substring", args[0])
		if err != nil {
			return nil, err
		}
		from, err := wantNumber("substring", args[1])
		if err != nil {
			return nil, err
		}
		start := int(from)
		end := len(s)
		if len(args) == 3 {
			to, err := wantNumber("substring", args[2])
			if err != nil {
				return nil, err
			}
			end = int(to)
		}
		if start < 0 || end > len(s) || start > end {
			return nil, errors.New(fmt.Sprintf("substring: range [%d:%d] out of bounds for length %d", start, end, len(s)))
		}
		return s[start:end], nil
	},
	"len": func(args []any) (any, error) {
		if err := wantArgs("len", args, 1, 1); err != nil {
			return nil, err
		}
		if s, ok := args[0].(string); ok {
			return int64(len(s)), nil
		}
		elems, ok := asIterable(args[0])
		if !ok {
			return nil, errors.New(fmt.Sprintf("len: invalid argument type %s", typeNameOf(args[0])))
		}
		return int64(len(elems)), nil
	},

	"abs": func(args []any) (any, error) {
		if err := wantArgs("abs", args, 1, 1); err != nil {
			return nil, err
		}
		if isIntegral(args[0]) {
			v := asInt(args[0])
			if v < 0 {
				return -v, nil
			}
			return v, nil
		}
		v, err := wantNumber("abs", args[0])
		if err != nil {
			return nil, err
		}
		return math.Abs(v), nil
	},
	"round": func(args []any) (any, error) {
		if err := wantArgs("round", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := wantNumber("round", args[0])
		if err != nil {
			return nil, err
		}
		return math.Round(v), nil
	},
	"floor": func(args []any) (any, error) {
		if err := wantArgs("floor", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := wantNumber("floor", args[0])
		if err != nil {
			return nil, err
		}
		return math.Floor(v), nil
	},
	"ceil": func(args []any) (any, error) {
		if err := wantArgs("ceil", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := wantNumber("ceil", args[0])
		if err != nil {
			return nil, err
		}
		return math.Ceil(v), nil
	},
	"sqrt": func(args []any) (any, error) {
		if err := wantArgs("sqrt", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := wantNumber("sqrt", args[0])
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, errors.New(fmt.Sprintf("sqrt: negative argument %v", v))
		}
		return math.Sqrt(v), nil
	},
	"min": func(args []any) (any, error) {
		nums, err := numericArgs("min", args)
		if err != nil {
			return nil, err
		}
		return slices.Min(nums), nil
	},
	"max": func(args []any) (any, error) {
		nums, err := numericArgs("max", args)
		if err != nil {
			return nil, err
		}
		return slices.Max(nums), nil
	},
	"sum": func(args []any) (any, error) {
		nums, err := numericArgs("sum", args)
		if err != nil {
			return nil, err
		}
		total := 0.0
		for _, v := range nums {
			total += v
		}
		return total, nil
	},
	"avg": func(args []any) (any, error) {
		nums, err := numericArgs("avg", args)
		if err != nil {
			return nil, err
		}
		if len(nums) == 0 {
			return nil, errors.New("avg: empty input")
		}
		total := 0.0
		for _, v := range nums {
			total += v
		}
		return total / float64(len(nums)), nil
	},

	"keys": func(args []any) (any, error) {
		if err := wantArgs("keys", args, 1, 1); err != nil {
			return nil, err
		}
		m, ok := args[0].(map[string]any)
		if !ok {
			return nil, errors.New(fmt.Sprintf("keys: invalid argument type %s", typeNameOf(args[0])))
		}
		ks := maps.Keys(m)
		slices.Sort(ks)
		out := make([]any, len(ks))
		for i, k := range ks {
			out[i] = k
		}
		return out, nil
	},
	"values": func(args []any) (any, error) {
		if err := wantArgs("values", args, 1, 1); err != nil {
			return nil, err
		}
		m, ok := args[0].(map[string]any)
		if !ok {
			return nil, errors.New(fmt.Sprintf("values: invalid argument type %s", typeNameOf(args[0])))
		}
		ks := maps.Keys(m)
		slices.Sort(ks)
		out := make([]any, len(ks))
		for i, k := range ks {
			out[i] = m[k]
		}
		return out, nil
	},
	"sort": func(args []any) (any, error) {
		if err := wantArgs("sort", args, 1, 1); err != nil {
			return nil, err
		}
		elems, ok := asIterable(args[0])
		if !ok {
			return nil, errors.New(fmt.Sprintf("sort: invalid argument type %s", typeNameOf(args[0])))
		}
		out := slices.Clone(elems)
		slices.SortStableFunc(out, func(a, b any) int {
			cmp, err := (StandardTypeComparator{}).Compare(a, b)
			if err != nil {
				return 0
			}
			return cmp
		})
		return out, nil
	},
	"distinct": func(args []any) (any, error) {
		if err := wantArgs("distinct", args, 1, 1); err != nil {
			return nil, err
		}
		elems, ok := asIterable(args[0])
		if !ok {
			return nil, errors.New(fmt.Sprintf("distinct: invalid argument type %s", typeNameOf(args[0])))
		}
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			dup := false
			for _, seen := range out {
				if valuesEqual(seen, e) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, e)
			}
		}
		return out, nil
	},

	"typeOf": func(args []any) (any, error) {
		if err := wantArgs("typeOf", args, 1, 1); err != nil {
			return nil, err
		}
		return typeNameOf(args[0]), nil
	},
	"toString": func(args []any) (any, error) {
		if err := wantArgs("toString", args, 1, 1); err != nil {
			return nil, err
		}
		return stringify(args[0]), nil
	},
	"toInt": func(args []any) (any, error) {
		if err := wantArgs("toInt", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := NewStandardTypeConverter().Convert(args[0], typeInt64)
		if err != nil {
			return nil, errors.New(fmt.Sprintf("toInt: conversion failed: %v", err))
		}
		return v, nil
	},
	"toFloat": func(args []any) (any, error) {
		if err := wantArgs("toFloat", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := NewStandardTypeConverter().Convert(args[0], typeFloat64)
		if err != nil {
			return nil, errors.New(fmt.Sprintf("toFloat: conversion failed: %v", err))
		}
		return v, nil
	},
	"toBool": func(args []any) (any, error) {
		if err := wantArgs("toBool", args, 1, 1); err != nil {
			return nil, err
		}
		v, err := NewStandardTypeConverter().Convert(args[0], typeBool)
		if err != nil {
			return nil, errors.New(fmt.Sprintf("toBool: conversion failed: %v", err))
		}
		return v, nil
	},

	"uniqueid": func(args []any) (any, error) {
		return xid.New().String(), nil
	},
	"now": func(args []any) (any, error) {
		return time.Now().UTC(), nil
	},
	"date": func(args []any) (any, error) {
		if err := wantArgs("date", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := wantString("date", args[0])
		if err != nil {
			return nil, err
		}
		t, err := date.Parse(s)
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02"), nil
	},
	"datetime": func(args []any) (any, error) {
		if err := wantArgs("datetime", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := wantString("datetime", args[0])
		if err != nil {
			return nil, err
		}
		t, err := date.Parse(s)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	},
	"dateFormat": func(args []any) (any, error) {
		if err := wantArgs("dateFormat", args, 2, 2); err != nil {
			return nil, err
		}
		layout, err := wantString("dateFormat", args[1])
		if err != nil {
			return nil, err
		}
		switch v := args[0].(type) {
		case time.Time:
			return v.Format(layout), nil
		case string:
			t, err := date.Parse(v)
			if err != nil {
				return nil, err
			}
			return t.Format(layout), nil
		}
		return nil, errors.New(fmt.Sprintf("dateFormat: invalid argument type %s", typeNameOf(args[0])))
	},
	"addSecondsToNow": func(args []any) (any, error) {
		if err := wantArgs("addSecondsToNow", args, 1, 1); err != nil {
			return nil, err
		}
		secs, err := wantNumber("addSecondsToNow", args[0])
		if err != nil {
			return nil, err
		}
		return time.Now().UTC().Add(time.Duration(int64(secs)) * time.Second), nil
	},

	"toJson": func(args []any) (any, error) {
		if err := wantArgs("toJson", args, 1, 1); err != nil {
			return nil, err
		}
		b, err := json.Marshal(args[0])
		if err != nil {
			return nil, errors.New(fmt.Sprintf("toJson: marshal failed: %v", err))
		}
		return string(b), nil
	},
	"fromJson": func(args []any) (any, error) {
		if err := wantArgs("fromJson", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := wantString("fromJson", args[0])
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, errors.New(fmt.Sprintf("fromJson: unmarshal failed: %v", err))
		}
		return out, nil
	},
}

func numericArgs(name string, args []any) ([]float64, error) {
	if len(args) == 0 {
		return nil, errors.New(fmt.Sprintf("%s: invalid number of arguments", name))
	}
	flat := args
	if len(args) == 1 {
		if elems, ok := asIterable(args[0]); ok {
			flat = elems
		}
	}
	out := make([]float64, 0, len(flat))
	for _, a := range flat {
		v, err := wantNumber(name, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
