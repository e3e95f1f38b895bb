package sel

import (
	"strings"
)

// Tokenizer turns an expression string into a flat token sequence. It keeps
// a byte cursor over the input; multi-byte runes only appear inside string
// literals, which are consumed wholesale.
type Tokenizer struct {
	input string
	pos   int
	toks  []Token
}

// Tokenize scans the whole input and returns the token sequence, or a
// lexical ParseError pointing at the offending offset.
func Tokenize(input string) ([]Token, error) {
	t := &Tokenizer{input: input}
	if err := t.run(); err != nil {
		return nil, err
	}
	return t.toks, nil
}

func (t *Tokenizer) run() error {
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			t.pos++
		case ch == '$' && t.peek(1) == '[':
			t.push(TokSelectLast, "$[", t.pos, t.pos+2)
			t.pos += 2
		case isIdentStart(ch):
			t.lexIdentifier()
		case isDigit(ch):
			if err := t.lexNumber(); err != nil {
				return err
			}
		case ch == '\'' || ch == '"':
			if err := t.lexString(ch); err != nil {
				return err
			}
		default:
			if err := t.lexOperator(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tokenizer) push(kind TokenKind, literal string, start, end int) {
	t.toks = append(t.toks, Token{Kind: kind, Literal: literal, Start: start, End: end})
}

func (t *Tokenizer) peek(offset int) byte {
	if t.pos+offset >= len(t.input) {
		return 0
	}
	return t.input[t.pos+offset]
}

func (t *Tokenizer) lexIdentifier() {
	start := t.pos
	for t.pos < len(t.input) && isIdentPart(t.input[t.pos]) {
		t.pos++
	}
	t.push(TokIdentifier, t.input[start:t.pos], start, t.pos)
}

func (t *Tokenizer) lexNumber() error {
	start := t.pos
	if t.input[t.pos] == '0' && (t.peek(1) == 'x' || t.peek(1) == 'X') {
		t.pos += 2
		digits := t.pos
		for t.pos < len(t.input) && isHexDigit(t.input[t.pos]) {
			t.pos++
		}
		if t.pos == digits {
			return newParseError(t.input, start, CodeBadHexNumber, t.input[start:t.pos])
		}
		kind := TokLiteralHexInt
		if t.pos < len(t.input) && (t.input[t.pos] == 'L' || t.input[t.pos] == 'l') {
			kind = TokLiteralHexLong
			t.push(kind, t.input[start:t.pos], start, t.pos+1)
			t.pos++
			return nil
		}
		t.push(kind, t.input[start:t.pos], start, t.pos)
		return nil
	}

	real := false
	for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
		t.pos++
	}
	// A '.' is part of the number only when a digit follows; otherwise it is
	// a dereference (or the start of a range token).
	if t.pos < len(t.input) && t.input[t.pos] == '.' && isDigit(t.peek(1)) {
		real = true
		t.pos++
		for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
			t.pos++
		}
	}
	if t.pos < len(t.input) && (t.input[t.pos] == 'e' || t.input[t.pos] == 'E') {
		next := t.peek(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(t.peek(2))) {
			real = true
			t.pos++
			if t.input[t.pos] == '+' || t.input[t.pos] == '-' {
				t.pos++
			}
			for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
				t.pos++
			}
		}
	}

	if t.pos < len(t.input) {
		switch t.input[t.pos] {
		case 'f', 'F', 'd', 'D':
			t.push(TokLiteralReal, t.input[start:t.pos], start, t.pos+1)
			t.pos++
			return nil
		case 'L', 'l':
			if real {
				return newParseError(t.input, start, CodeBadNumber, t.input[start:t.pos+1])
			}
			t.push(TokLiteralLong, t.input[start:t.pos], start, t.pos+1)
			t.pos++
			return nil
		}
	}
	if real {
		t.push(TokLiteralReal, t.input[start:t.pos], start, t.pos)
	} else {
		t.push(TokLiteralInt, t.input[start:t.pos], start, t.pos)
	}
	return nil
}

// lexString consumes a quoted literal. A doubled quote of the delimiting
// kind is an escaped quote; backslash escapes cover the usual set.
func (t *Tokenizer) lexString(quote byte) error {
	start := t.pos
	t.pos++
	var sb strings.Builder
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if ch == quote {
			if t.peek(1) == quote {
				sb.WriteByte(quote)
				t.pos += 2
				continue
			}
			t.pos++
			t.push(TokLiteralString, sb.String(), start, t.pos)
			return nil
		}
		if ch == '\\' {
			esc := t.peek(1)
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			case 0:
				return newParseError(t.input, start, CodeUnterminatedString)
			default:
				return newParseError(t.input, t.pos, CodeBadEscape, "\\"+string(esc))
			}
			t.pos += 2
			continue
		}
		sb.WriteByte(ch)
		t.pos++
	}
	return newParseError(t.input, start, CodeUnterminatedString)
}

func (t *Tokenizer) lexOperator() error {
	start := t.pos
	ch := t.input[t.pos]
	two := func(kind TokenKind) {
		t.push(kind, t.input[start:start+2], start, start+2)
		t.pos += 2
	}
	one := func(kind TokenKind) {
		t.push(kind, t.input[start:start+1], start, start+1)
		t.pos++
	}

	switch ch {
	case '(':
		one(TokLParen)
	case ')':
		one(TokRParen)
	case '[':
		one(TokLSquare)
	case ']':
		one(TokRSquare)
	case '{':
		one(TokLCurly)
	case '}':
		one(TokRCurly)
	case ',':
		one(TokComma)
	case ':':
		one(TokColon)
	case '+':
		if t.peek(1) == '+' {
			two(TokInc)
		} else {
			one(TokPlus)
		}
	case '-':
		if t.peek(1) == '-' {
			two(TokDec)
		} else {
			one(TokMinus)
		}
	case '*':
		one(TokStar)
	case '/':
		one(TokSlash)
	case '%':
		one(TokPercent)
	case '.':
		if t.peek(1) == '.' {
			two(TokRange)
		} else {
			one(TokDot)
		}
	case '<':
		if t.peek(1) == '=' {
			two(TokLE)
		} else {
			one(TokLT)
		}
	case '>':
		if t.peek(1) == '=' {
			two(TokGE)
		} else {
			one(TokGT)
		}
	case '=':
		if t.peek(1) == '=' {
			two(TokEQ)
		} else {
			one(TokAssign)
		}
	case '!':
		switch t.peek(1) {
		case '=':
			two(TokNE)
		case '[':
			two(TokProject)
		default:
			one(TokNot)
		}
	case '&':
		if t.peek(1) == '&' {
			two(TokAnd)
		} else {
			one(TokFactoryBeanRef)
		}
	case '|':
		if t.peek(1) != '|' {
			return newParseError(t.input, start, CodeUnexpectedChar, string(ch))
		}
		two(TokOr)
	case '?':
		switch t.peek(1) {
		case '.':
			two(TokSafeNav)
		case ':':
			two(TokElvis)
		case '[':
			two(TokSelect)
		default:
			one(TokQMark)
		}
	case '^':
		if t.peek(1) == '[' {
			two(TokSelectFirst)
		} else {
			one(TokPower)
		}
	case '#':
		one(TokHash)
	case '@':
		one(TokBeanRef)
	default:
		return newParseError(t.input, start, CodeUnexpectedChar, string(ch))
	}
	return nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
