package sel

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sync"
)

type binaryNode struct {
	baseNode
	Left  Node
	Right Node
}

// OpOr is short-circuiting logical or. Operands must evaluate to booleans.
type OpOr struct {
	binaryNode
}

func (n *OpOr) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	lb, err := coerceBool(lv, n.start)
	if err != nil {
		return NullValue, err
	}
	if lb {
		return n.recordExit(NewTypedValue(true)), nil
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rb, err := coerceBool(rv, n.start)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(NewTypedValue(rb)), nil
}

func (n *OpOr) IsCompilable() bool {
	return n.Left.IsCompilable() && n.Right.IsCompilable()
}

func (n *OpOr) Compile(cf *CodeFlow) CompiledStep {
	left := n.Left.Compile(cf)
	right := n.Right.Compile(cf)
	cf.setLastType(typeBool)
	pos := n.start
	return func(av *Activation) (any, error) {
		lv, err := left(av)
		if err != nil {
			return nil, err
		}
		lb, ok := lv.(bool)
		if !ok {
			return nil, newEvalError(pos, CodeBooleanCoercion, typeNameOf(lv))
		}
		if lb {
			return true, nil
		}
		rv, err := right(av)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, newEvalError(pos, CodeBooleanCoercion, typeNameOf(rv))
		}
		return rb, nil
	}
}

func (n *OpOr) String() string { return binaryString(n.Left, "or", n.Right) }

// OpAnd is short-circuiting logical and.
type OpAnd struct {
	binaryNode
}

func (n *OpAnd) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	lb, err := coerceBool(lv, n.start)
	if err != nil {
		return NullValue, err
	}
	if !lb {
		return n.recordExit(NewTypedValue(false)), nil
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rb, err := coerceBool(rv, n.start)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(NewTypedValue(rb)), nil
}

func (n *OpAnd) IsCompilable() bool {
	return n.Left.IsCompilable() && n.Right.IsCompilable()
}

func (n *OpAnd) Compile(cf *CodeFlow) CompiledStep {
	left := n.Left.Compile(cf)
	right := n.Right.Compile(cf)
	cf.setLastType(typeBool)
	pos := n.start
	return func(av *Activation) (any, error) {
		lv, err := left(av)
		if err != nil {
			return nil, err
		}
		lb, ok := lv.(bool)
		if !ok {
			return nil, newEvalError(pos, CodeBooleanCoercion, typeNameOf(lv))
		}
		if !lb {
			return false, nil
		}
		rv, err := right(av)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, newEvalError(pos, CodeBooleanCoercion, typeNameOf(rv))
		}
		return rb, nil
	}
}

func (n *OpAnd) String() string { return binaryString(n.Left, "and", n.Right) }

// OpNot is logical negation.
type OpNot struct {
	baseNode
	Operand Node
}

func (n *OpNot) GetValue(s *State) (TypedValue, error) {
	v, err := n.Operand.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	b, err := coerceBool(v, n.start)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(NewTypedValue(!b)), nil
}

func (n *OpNot) IsCompilable() bool { return n.Operand.IsCompilable() }

func (n *OpNot) Compile(cf *CodeFlow) CompiledStep {
	operand := n.Operand.Compile(cf)
	cf.setLastType(typeBool)
	pos := n.start
	return func(av *Activation) (any, error) {
		v, err := operand(av)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, newEvalError(pos, CodeBooleanCoercion, typeNameOf(v))
		}
		return !b, nil
	}
}

func (n *OpNot) String() string { return "!" + n.Operand.String() }

// OpRelational covers == != < <= > >=. Ordering delegates to the context's
// type comparator; equality falls back to a structural comparison when the
// operands are not comparable.
type OpRelational struct {
	binaryNode
	Op string
}

func (n *OpRelational) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	out, err := applyRelational(s.Context().TypeComparator(), n.Op, lv.Value, rv.Value, n.start)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *OpRelational) IsCompilable() bool {
	return n.Left.IsCompilable() && n.Right.IsCompilable()
}

func (n *OpRelational) Compile(cf *CodeFlow) CompiledStep {
	left := n.Left.Compile(cf)
	right := n.Right.Compile(cf)
	cf.setLastType(typeBool)
	op, pos := n.Op, n.start
	return func(av *Activation) (any, error) {
		lv, err := left(av)
		if err != nil {
			return nil, err
		}
		rv, err := right(av)
		if err != nil {
			return nil, err
		}
		return applyRelational(av.ctx.TypeComparator(), op, lv, rv, pos)
	}
}

func (n *OpRelational) String() string { return binaryString(n.Left, n.Op, n.Right) }

func applyRelational(cmp TypeComparator, op string, left, right any, pos int) (bool, error) {
	switch op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	}
	if !cmp.CanCompare(left, right) {
		return false, newEvalError(pos, CodeNotComparable, typeNameOf(left), typeNameOf(right))
	}
	c, err := cmp.Compare(left, right)
	if err != nil {
		return false, attachPosition(err, pos)
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, newEvalError(pos, CodeOperatorNotSupported, op, typeNameOf(left), typeNameOf(right))
}

func valuesEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if isNumber(left) && isNumber(right) {
		return asFloat(left) == asFloat(right)
	}
	return reflect.DeepEqual(left, right)
}

// OpArithmetic covers + - * / %. Integer operands stay integral (with
// division-by-zero errors); mixed operands are computed in float64. The
// context's operator overloader is consulted first for operand types the
// numeric model does not cover; + concatenates when either side is a string.
type OpArithmetic struct {
	binaryNode
	Op string
}

func (n *OpArithmetic) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	if ov := s.Context().OperatorOverloader(); ov.Overrides(n.Op, lv.Value, rv.Value) {
		out, err := ov.Operate(n.Op, lv.Value, rv.Value)
		if err != nil {
			return NullValue, attachPosition(err, n.start)
		}
		return n.recordExit(NewTypedValue(out)), nil
	}
	out, err := applyArithmetic(n.Op, lv.Value, rv.Value, n.start)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *OpArithmetic) IsCompilable() bool {
	if !n.Left.IsCompilable() || !n.Right.IsCompilable() {
		return false
	}
	// Commit only once operand shapes have been observed.
	return isArithmeticExit(exitOf(n.Left)) && isArithmeticExit(exitOf(n.Right))
}

func (n *OpArithmetic) Compile(cf *CodeFlow) CompiledStep {
	left := n.Left.Compile(cf)
	lt := cf.lastType()
	right := n.Right.Compile(cf)
	rt := cf.lastType()
	op, pos := n.Op, n.start

	// Specialize on the descriptors both operands committed to.
	if op == "+" && (lt == typeString || rt == typeString) {
		cf.setLastType(typeString)
		return func(av *Activation) (any, error) {
			lv, err := left(av)
			if err != nil {
				return nil, err
			}
			rv, err := right(av)
			if err != nil {
				return nil, err
			}
			return stringify(lv) + stringify(rv), nil
		}
	}
	if lt == typeInt64 && rt == typeInt64 {
		cf.setLastType(typeInt64)
		return func(av *Activation) (any, error) {
			lv, err := left(av)
			if err != nil {
				return nil, err
			}
			rv, err := right(av)
			if err != nil {
				return nil, err
			}
			if !isIntegral(lv) || !isIntegral(rv) {
				return nil, newEvalError(pos, CodeOperatorNotSupported, op, typeNameOf(lv), typeNameOf(rv))
			}
			return intArithmetic(op, asInt(lv), asInt(rv), pos)
		}
	}
	cf.setLastType(typeFloat64)
	return func(av *Activation) (any, error) {
		lv, err := left(av)
		if err != nil {
			return nil, err
		}
		rv, err := right(av)
		if err != nil {
			return nil, err
		}
		return applyArithmetic(op, lv, rv, pos)
	}
}

func (n *OpArithmetic) String() string { return binaryString(n.Left, n.Op, n.Right) }

func applyArithmetic(op string, left, right any, pos int) (any, error) {
	if op == "+" {
		if _, ok := left.(string); ok {
			return left.(string) + stringify(right), nil
		}
		if rs, ok := right.(string); ok {
			return stringify(left) + rs, nil
		}
	}
	if !isNumber(left) || !isNumber(right) {
		return nil, newEvalError(pos, CodeOperatorNotSupported, op, typeNameOf(left), typeNameOf(right))
	}
	if isIntegral(left) && isIntegral(right) {
		return intArithmetic(op, asInt(left), asInt(right), pos)
	}
	lf, rf := asFloat(left), asFloat(right)
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		return lf / rf, nil
	case "%":
		return math.Mod(lf, rf), nil
	}
	return nil, newEvalError(pos, CodeOperatorNotSupported, op, typeNameOf(left), typeNameOf(right))
}

func intArithmetic(op string, l, r int64, pos int) (any, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, newEvalError(pos, CodeDivisionByZero)
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return nil, newEvalError(pos, CodeDivisionByZero)
		}
		return l % r, nil
	}
	return nil, newEvalError(pos, CodeOperatorNotSupported, op, "int64", "int64")
}

// OpPower is the ^ operator. Integer bases with non-negative integer
// exponents stay integral when the result is exact.
type OpPower struct {
	binaryNode
}

func (n *OpPower) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	if !isNumber(lv.Value) || !isNumber(rv.Value) {
		return NullValue, newEvalError(n.start, CodeOperatorNotSupported, "^", typeNameOf(lv.Value), typeNameOf(rv.Value))
	}
	out := math.Pow(asFloat(lv.Value), asFloat(rv.Value))
	if isIntegral(lv.Value) && isIntegral(rv.Value) && asInt(rv.Value) >= 0 && out == math.Trunc(out) && !math.IsInf(out, 0) {
		return n.recordExit(NewTypedValue(int64(out))), nil
	}
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *OpPower) String() string { return binaryString(n.Left, "^", n.Right) }

// OpUnaryMinus negates a numeric operand; OpUnaryPlus asserts one.
type OpUnaryMinus struct {
	baseNode
	Operand Node
}

func (n *OpUnaryMinus) GetValue(s *State) (TypedValue, error) {
	v, err := n.Operand.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	switch x := v.Value.(type) {
	case int64:
		return n.recordExit(NewTypedValue(-x)), nil
	case float64:
		return n.recordExit(NewTypedValue(-x)), nil
	}
	if isNumber(v.Value) {
		if isIntegral(v.Value) {
			return n.recordExit(NewTypedValue(-asInt(v.Value))), nil
		}
		return n.recordExit(NewTypedValue(-asFloat(v.Value))), nil
	}
	return NullValue, newEvalError(n.start, CodeOperatorNotSupported, "-", typeNameOf(v.Value), "")
}

func (n *OpUnaryMinus) IsCompilable() bool {
	return n.Operand.IsCompilable() && isNumericExit(exitOf(n.Operand))
}

func (n *OpUnaryMinus) Compile(cf *CodeFlow) CompiledStep {
	operand := n.Operand.Compile(cf)
	pos := n.start
	return func(av *Activation) (any, error) {
		v, err := operand(av)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		if isNumber(v) {
			return -asFloat(v), nil
		}
		return nil, newEvalError(pos, CodeOperatorNotSupported, "-", typeNameOf(v), "")
	}
}

func (n *OpUnaryMinus) String() string { return "-" + n.Operand.String() }

type OpUnaryPlus struct {
	baseNode
	Operand Node
}

func (n *OpUnaryPlus) GetValue(s *State) (TypedValue, error) {
	v, err := n.Operand.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	if !isNumber(v.Value) {
		return NullValue, newEvalError(n.start, CodeOperatorNotSupported, "+", typeNameOf(v.Value), "")
	}
	return n.recordExit(v), nil
}

func (n *OpUnaryPlus) String() string { return "+" + n.Operand.String() }

// OpInstanceof tests whether the left operand's runtime type is (or
// implements) the type the right operand evaluates to. A nil left operand
// is never an error: it is simply not an instance of anything.
type OpInstanceof struct {
	binaryNode
}

func (n *OpInstanceof) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	t, ok := rv.Value.(reflect.Type)
	if !ok {
		return NullValue, newEvalError(n.start, CodeInstanceofNeedsType, typeNameOf(rv.Value))
	}
	if lv.isNull() {
		return n.recordExit(NewTypedValue(false)), nil
	}
	lt := reflect.TypeOf(lv.Value)
	out := lt == t || lt.AssignableTo(t) || (t.Kind() == reflect.Interface && lt.Implements(t))
	return n.recordExit(NewTypedValue(out)), nil
}

func (n *OpInstanceof) String() string { return binaryString(n.Left, "instanceof", n.Right) }

// OpMatches applies the right operand as an anchored regular expression to
// the left operand. Compiled patterns are cached per node.
type OpMatches struct {
	binaryNode

	mu      sync.Mutex
	pattern string
	re      *regexp.Regexp
}

func (n *OpMatches) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	input, ok := lv.Value.(string)
	if !ok {
		return NullValue, newEvalError(n.start, CodeOperatorNotSupported, "matches", typeNameOf(lv.Value), typeNameOf(rv.Value))
	}
	pattern, ok := rv.Value.(string)
	if !ok {
		return NullValue, newEvalError(n.start, CodeOperatorNotSupported, "matches", typeNameOf(lv.Value), typeNameOf(rv.Value))
	}
	re, err := n.compiled(pattern)
	if err != nil {
		return NullValue, newEvalError(n.start, CodeInvalidPattern, pattern, err)
	}
	return n.recordExit(NewTypedValue(re.MatchString(input))), nil
}

func (n *OpMatches) compiled(pattern string) (*regexp.Regexp, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.re != nil && n.pattern == pattern {
		return n.re, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	n.pattern, n.re = pattern, re
	return re, nil
}

func (n *OpMatches) String() string { return binaryString(n.Left, "matches", n.Right) }

// OpBetween checks inclusive membership of the left operand in the
// two-element list the right operand evaluates to.
type OpBetween struct {
	binaryNode
}

func (n *OpBetween) GetValue(s *State) (TypedValue, error) {
	lv, err := n.Left.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	bounds, ok := asIterable(rv.Value)
	if !ok || len(bounds) != 2 {
		return NullValue, newEvalError(n.start, CodeBetweenNeedsPair)
	}
	cmp := s.Context().TypeComparator()
	low, err := cmp.Compare(lv.Value, bounds[0])
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	high, err := cmp.Compare(lv.Value, bounds[1])
	if err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	return n.recordExit(NewTypedValue(low >= 0 && high <= 0)), nil
}

func (n *OpBetween) String() string { return binaryString(n.Left, "between", n.Right) }

// Ternary is condition ? ifTrue : ifFalse.
type Ternary struct {
	baseNode
	Condition Node
	IfTrue    Node
	IfFalse   Node
}

func (n *Ternary) GetValue(s *State) (TypedValue, error) {
	cv, err := n.Condition.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	cb, err := coerceBool(cv, n.start)
	if err != nil {
		return NullValue, err
	}
	if cb {
		v, err := n.IfTrue.GetValue(s)
		if err != nil {
			return NullValue, err
		}
		return n.recordExit(v), nil
	}
	v, err := n.IfFalse.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(v), nil
}

func (n *Ternary) IsCompilable() bool {
	return n.Condition.IsCompilable() && n.IfTrue.IsCompilable() && n.IfFalse.IsCompilable()
}

func (n *Ternary) Compile(cf *CodeFlow) CompiledStep {
	cond := n.Condition.Compile(cf)
	ifTrue := n.IfTrue.Compile(cf)
	tt := cf.lastType()
	ifFalse := n.IfFalse.Compile(cf)
	if cf.lastType() != tt {
		cf.setLastType(typeAny)
	}
	pos := n.start
	return func(av *Activation) (any, error) {
		cv, err := cond(av)
		if err != nil {
			return nil, err
		}
		cb, ok := cv.(bool)
		if !ok {
			return nil, newEvalError(pos, CodeBooleanCoercion, typeNameOf(cv))
		}
		if cb {
			return ifTrue(av)
		}
		return ifFalse(av)
	}
}

func (n *Ternary) String() string {
	return fmt.Sprintf("%s ? %s : %s", n.Condition.String(), n.IfTrue.String(), n.IfFalse.String())
}

// Elvis is a ?: b — a unless a is null (or the empty string, matching the
// original engine's behavior), else b.
type Elvis struct {
	baseNode
	Value   Node
	Default Node
}

func (n *Elvis) GetValue(s *State) (TypedValue, error) {
	v, err := n.Value.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	if !v.isNull() {
		if str, ok := v.Value.(string); !ok || str != "" {
			return n.recordExit(v), nil
		}
	}
	d, err := n.Default.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	return n.recordExit(d), nil
}

func (n *Elvis) IsCompilable() bool {
	return n.Value.IsCompilable() && n.Default.IsCompilable()
}

func (n *Elvis) Compile(cf *CodeFlow) CompiledStep {
	value := n.Value.Compile(cf)
	def := n.Default.Compile(cf)
	cf.setLastType(typeAny)
	return func(av *Activation) (any, error) {
		v, err := value(av)
		if err != nil {
			return nil, err
		}
		if v != nil {
			if str, ok := v.(string); !ok || str != "" {
				return v, nil
			}
		}
		return def(av)
	}
}

func (n *Elvis) String() string { return binaryString(n.Value, "?:", n.Default) }

// Assign evaluates the right-hand side and writes it through the left-hand
// node; the expression value is the assigned value.
type Assign struct {
	binaryNode
}

func (n *Assign) GetValue(s *State) (TypedValue, error) {
	rv, err := n.Right.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	if err := n.Left.SetValue(s, rv.Value); err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	return n.recordExit(rv), nil
}

func (n *Assign) String() string { return binaryString(n.Left, "=", n.Right) }

// OpIncDec is ++ / -- in prefix or postfix position. The target must be
// writable and numeric; postfix yields the value before mutation.
type OpIncDec struct {
	baseNode
	Target    Node
	Decrement bool
	Prefix    bool
}

func (n *OpIncDec) GetValue(s *State) (TypedValue, error) {
	tv, err := n.Target.GetValue(s)
	if err != nil {
		return NullValue, err
	}
	opName := "++"
	if n.Decrement {
		opName = "--"
	}
	if !isNumber(tv.Value) {
		return NullValue, newEvalError(n.start, CodeIncrementNeedsNumber, opName, typeNameOf(tv.Value))
	}
	var updated any
	if isIntegral(tv.Value) {
		d := int64(1)
		if n.Decrement {
			d = -1
		}
		updated = asInt(tv.Value) + d
	} else {
		d := 1.0
		if n.Decrement {
			d = -1
		}
		updated = asFloat(tv.Value) + d
	}
	if err := n.Target.SetValue(s, updated); err != nil {
		return NullValue, attachPosition(err, n.start)
	}
	if n.Prefix {
		return n.recordExit(NewTypedValue(updated)), nil
	}
	return n.recordExit(tv), nil
}

func (n *OpIncDec) String() string {
	op := "++"
	if n.Decrement {
		op = "--"
	}
	if n.Prefix {
		return op + n.Target.String()
	}
	return n.Target.String() + op
}

func binaryString(left Node, op string, right Node) string {
	return "(" + left.String() + " " + op + " " + right.String() + ")"
}

// exitOf fetches a node's cached exit descriptor when the variant exposes
// one; nil means "not yet observed".
func exitOf(n Node) reflect.Type {
	type exitCarrier interface{ exitType() reflect.Type }
	if c, ok := n.(exitCarrier); ok {
		return c.exitType()
	}
	return nil
}

func isNumericExit(t reflect.Type) bool {
	return t != nil && isNumericKind(t.Kind())
}

func isArithmeticExit(t reflect.Type) bool {
	return t != nil && (isNumericKind(t.Kind()) || t == typeString)
}
