package sel

import (
	"fmt"
)

// MessageCode identifies a parse or evaluation failure symbolically so the
// embedder can render or localize messages instead of matching on strings.
type MessageCode int

// Lexical codes sit in the 10xx range, syntax codes in 11xx, evaluation
// codes in 20xx.
const (
	CodeUnterminatedString MessageCode = 1001
	CodeUnexpectedChar     MessageCode = 1002
	CodeBadNumber          MessageCode = 1003
	CodeBadHexNumber       MessageCode = 1004
	CodeBadEscape          MessageCode = 1005

	CodeUnexpectedToken          MessageCode = 1101
	CodeOutOfData                MessageCode = 1102
	CodeRanOutOfArguments        MessageCode = 1103
	CodeInvalidBeanReference     MessageCode = 1104
	CodeMissingSelectionExpr     MessageCode = 1105
	CodeMissingConstructorArgs   MessageCode = 1106
	CodeNotAnLValue              MessageCode = 1107
	CodeMissingTypeName          MessageCode = 1108
	CodeUnexpectedEscapeChar     MessageCode = 1109
	CodeInvalidArrayDimension    MessageCode = 1110
	CodeExpressionNotTerminated  MessageCode = 1111
	CodeMissingProjectionExpr    MessageCode = 1112
	CodeUnsupportedRangeOperator MessageCode = 1113

	CodeEvaluation             MessageCode = 2000
	CodePropertyNotFound       MessageCode = 2001
	CodePropertyNotWritable    MessageCode = 2002
	CodeMethodNotFound         MessageCode = 2003
	CodeAmbiguousMethod        MessageCode = 2004
	CodeConstructorNotFound    MessageCode = 2005
	CodeTypeConversion         MessageCode = 2006
	CodeBooleanCoercion        MessageCode = 2007
	CodeNotAssignable          MessageCode = 2008
	CodeUnresolvedBeanRef      MessageCode = 2009
	CodeProjectionUnsupported  MessageCode = 2010
	CodeSelectionUnsupported   MessageCode = 2011
	CodeDivisionByZero         MessageCode = 2012
	CodeIndexOutOfBounds       MessageCode = 2013
	CodeUnknownType            MessageCode = 2014
	CodeInvalidPattern         MessageCode = 2015
	CodeUndefinedVariable      MessageCode = 2016
	CodeUndefinedFunction      MessageCode = 2017
	CodeNotAFunction           MessageCode = 2018
	CodeInstanceofNeedsType    MessageCode = 2019
	CodeBetweenNeedsPair       MessageCode = 2020
	CodeNotComparable          MessageCode = 2021
	CodeNullNotAllowed         MessageCode = 2022
	CodeIncrementNeedsNumber   MessageCode = 2023
	CodeMapKeyNotFound         MessageCode = 2024
	CodeArgumentCount          MessageCode = 2025
	CodeFunctionInvokeFailed   MessageCode = 2026
	CodeOperatorNotSupported   MessageCode = 2027
	CodeMaxArrayElements       MessageCode = 2028
	CodeCollectionIndexInvalid MessageCode = 2029
)

var messageTemplates = map[MessageCode]string{
	CodeUnterminatedString: "string literal is not terminated",
	CodeUnexpectedChar:     "unexpected character %q",
	CodeBadNumber:          "cannot parse %q as a number",
	CodeBadHexNumber:       "cannot parse %q as a hex number",
	CodeBadEscape:          "invalid escape sequence %q",

	CodeUnexpectedToken:          "unexpected token: expected %s but was %s",
	CodeOutOfData:                "unexpectedly ran out of input",
	CodeRanOutOfArguments:        "unexpectedly ran out of arguments",
	CodeInvalidBeanReference:     "a bean reference must be followed by an identifier or a quoted name",
	CodeMissingSelectionExpr:     "a selection expression is required between '[' and ']'",
	CodeMissingConstructorArgs:   "a constructor requires an argument list",
	CodeNotAnLValue:              "the target %q of the operation is not assignable",
	CodeMissingTypeName:          "a type name is required",
	CodeUnexpectedEscapeChar:     "unexpected escape character",
	CodeInvalidArrayDimension:    "array dimension must be an integer literal",
	CodeExpressionNotTerminated:  "expression has trailing input starting at %q",
	CodeMissingProjectionExpr:    "a projection expression is required between '[' and ']'",
	CodeUnsupportedRangeOperator: "the range operator is recognized but not supported here",

	CodeEvaluation:             "expression evaluation failed: %v",
	CodePropertyNotFound:       "property or field %q cannot be found on object of type %s",
	CodePropertyNotWritable:    "property or field %q cannot be set on object of type %s",
	CodeMethodNotFound:         "method %s cannot be found on type %s",
	CodeAmbiguousMethod:        "method call of %s is ambiguous, no unique candidate on type %s",
	CodeConstructorNotFound:    "constructor for type %q with %d argument(s) cannot be found",
	CodeTypeConversion:         "cannot convert value of type %s to type %s",
	CodeBooleanCoercion:        "value of type %s cannot be coerced to a boolean",
	CodeNotAssignable:          "expression is not assignable",
	CodeUnresolvedBeanRef:      "bean %q could not be resolved",
	CodeProjectionUnsupported:  "projection is not supported on an operand of type %s",
	CodeSelectionUnsupported:   "selection is not supported on an operand of type %s",
	CodeDivisionByZero:         "division by zero",
	CodeIndexOutOfBounds:       "index %d is out of bounds (length %d)",
	CodeUnknownType:            "type %q cannot be located",
	CodeInvalidPattern:         "pattern %q is not a valid regular expression: %v",
	CodeUndefinedVariable:      "variable %q is not defined",
	CodeUndefinedFunction:      "function %q is not defined",
	CodeNotAFunction:           "variable %q is not a function",
	CodeInstanceofNeedsType:    "the right operand of instanceof must be a type, was %s",
	CodeBetweenNeedsPair:       "the right operand of between must be a two-element list",
	CodeNotComparable:          "values of type %s and %s are not comparable",
	CodeNullNotAllowed:         "null is not allowed here",
	CodeIncrementNeedsNumber:   "the target of %s must be numeric, was %s",
	CodeMapKeyNotFound:         "map does not contain key %v",
	CodeArgumentCount:          "%s requires %s argument(s), got %d",
	CodeFunctionInvokeFailed:   "function %q failed: %v",
	CodeOperatorNotSupported:   "operator %q is not supported between %s and %s",
	CodeMaxArrayElements:       "array with %d elements exceeds the supported size",
	CodeCollectionIndexInvalid: "value of type %s cannot be indexed with %s",
}

func renderMessage(code MessageCode, args []any) string {
	tmpl, ok := messageTemplates[code]
	if !ok {
		return fmt.Sprintf("error %d", int(code))
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// ParseError reports a tokenizer or parser failure. Code distinguishes
// lexical (10xx) from syntax (11xx) failures; Position is a byte offset
// into Expression.
type ParseError struct {
	Expression string
	Position   int
	Code       MessageCode
	Args       []any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("EL%d (pos %d): %s", int(e.Code), e.Position, renderMessage(e.Code, e.Args))
}

// Lexical reports whether this error came from the tokenizer.
func (e *ParseError) Lexical() bool {
	return e.Code >= 1000 && e.Code < 1100
}

func newParseError(expression string, pos int, code MessageCode, args ...any) *ParseError {
	return &ParseError{Expression: expression, Position: pos, Code: code, Args: args}
}

// EvaluationError reports a failure while evaluating a parsed expression.
// Position is the source offset of the AST node that failed, attached as the
// error unwinds through node evaluation.
type EvaluationError struct {
	Position int
	Code     MessageCode
	Args     []any
	Err      error
}

func (e *EvaluationError) Error() string {
	msg := renderMessage(e.Code, e.Args)
	if e.Err != nil {
		return fmt.Sprintf("EL%d (pos %d): %s: %v", int(e.Code), e.Position, msg, e.Err)
	}
	return fmt.Sprintf("EL%d (pos %d): %s", int(e.Code), e.Position, msg)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func newEvalError(pos int, code MessageCode, args ...any) *EvaluationError {
	return &EvaluationError{Position: pos, Code: code, Args: args}
}

// attachPosition stamps the node position onto an evaluation error that does
// not carry one yet, leaving already-positioned errors untouched.
func attachPosition(err error, pos int) error {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EvaluationError); ok {
		if ee.Position < 0 {
			ee.Position = pos
		}
		return ee
	}
	return &EvaluationError{Position: pos, Code: CodeEvaluation, Args: []any{err}, Err: err}
}
