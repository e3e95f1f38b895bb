package sel

import (
	"testing"
)

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeOperators(t *testing.T) {
	cases := []struct {
		input string
		want  []TokenKind
	}{
		{"a + b", []TokenKind{TokIdentifier, TokPlus, TokIdentifier}},
		{"a <= b >= c", []TokenKind{TokIdentifier, TokLE, TokIdentifier, TokGE, TokIdentifier}},
		{"a == b != c", []TokenKind{TokIdentifier, TokEQ, TokIdentifier, TokNE, TokIdentifier}},
		{"a && b || c", []TokenKind{TokIdentifier, TokAnd, TokIdentifier, TokOr, TokIdentifier}},
		{"a?.b", []TokenKind{TokIdentifier, TokSafeNav, TokIdentifier}},
		{"a ?: b", []TokenKind{TokIdentifier, TokElvis, TokIdentifier}},
		{"a ? b : c", []TokenKind{TokIdentifier, TokQMark, TokIdentifier, TokColon, TokIdentifier}},
		{"a.?[x]", []TokenKind{TokIdentifier, TokDot, TokSelect, TokIdentifier, TokRSquare}},
		{"a.^[x]", []TokenKind{TokIdentifier, TokDot, TokSelectFirst, TokIdentifier, TokRSquare}},
		{"a.$[x]", []TokenKind{TokIdentifier, TokDot, TokSelectLast, TokIdentifier, TokRSquare}},
		{"a.![x]", []TokenKind{TokIdentifier, TokDot, TokProject, TokIdentifier, TokRSquare}},
		{"#v", []TokenKind{TokHash, TokIdentifier}},
		{"@svc", []TokenKind{TokBeanRef, TokIdentifier}},
		{"&factory", []TokenKind{TokFactoryBeanRef, TokIdentifier}},
		{"i++ --j", []TokenKind{TokIdentifier, TokInc, TokDec, TokIdentifier}},
		{"2^8", []TokenKind{TokLiteralInt, TokPower, TokLiteralInt}},
		{"1..5", []TokenKind{TokLiteralInt, TokRange, TokLiteralInt}},
		{"{1:2}", []TokenKind{TokLCurly, TokLiteralInt, TokColon, TokLiteralInt, TokRCurly}},
	}
	for _, c := range cases {
		toks, err := Tokenize(c.input)
		if err != nil {
			t.Errorf("Tokenize(%q): unexpected error %v", c.input, err)
			continue
		}
		got := kinds(toks)
		if len(got) != len(c.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", c.input, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %v, want %v", c.input, i, got[i], c.want[i])
			}
		}
	}
}

func TestTokenizeNumbers(t *testing.T) {
	cases := []struct {
		input string
		kind  TokenKind
	}{
		{"42", TokLiteralInt},
		{"42L", TokLiteralLong},
		{"0x2A", TokLiteralHexInt},
		{"0x2AL", TokLiteralHexLong},
		{"3.14", TokLiteralReal},
		{"1e3", TokLiteralReal},
		{"1.5e-3", TokLiteralReal},
		{"2.5f", TokLiteralReal},
		{"2.5D", TokLiteralReal},
	}
	for _, c := range cases {
		toks, err := Tokenize(c.input)
		if err != nil {
			t.Errorf("Tokenize(%q): unexpected error %v", c.input, err)
			continue
		}
		if len(toks) != 1 || toks[0].Kind != c.kind {
			t.Errorf("Tokenize(%q) = %v, want single %v", c.input, kinds(toks), c.kind)
		}
	}
}

func TestTokenizeNumberDotDisambiguation(t *testing.T) {
	// "1.foo" must lex as int, dot, identifier, not a malformed real.
	toks, err := Tokenize("1.foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TokenKind{TokLiteralInt, TokDot, TokIdentifier}
	got := kinds(toks)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize(1.foo) = %v, want %v", got, want)
		}
	}
}

func TestTokenizeStrings(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`"hello"`, "hello"},
		{`'it''s'`, "it's"},
		{`'a\nb'`, "a\nb"},
		{`'a\tb'`, "a\tb"},
		{`'a\\b'`, `a\b`},
	}
	for _, c := range cases {
		toks, err := Tokenize(c.input)
		if err != nil {
			t.Errorf("Tokenize(%s): unexpected error %v", c.input, err)
			continue
		}
		if len(toks) != 1 || toks[0].Kind != TokLiteralString || toks[0].Literal != c.want {
			t.Errorf("Tokenize(%s) = %+v, want string %q", c.input, toks, c.want)
		}
	}
}

func TestTokenizeErrors(t *testing.T) {
	cases := []struct {
		input string
		code  MessageCode
	}{
		{`'unterminated`, CodeUnterminatedString},
		{`"also unterminated`, CodeUnterminatedString},
		{`'bad \q escape'`, CodeBadEscape},
		{"a | b", CodeUnexpectedChar},
		{"a ~ b", CodeUnexpectedChar},
		{"0x", CodeBadHexNumber},
		{"1.5L", CodeBadNumber},
	}
	for _, c := range cases {
		_, err := Tokenize(c.input)
		if err == nil {
			t.Errorf("Tokenize(%q): expected error", c.input)
			continue
		}
		pe, ok := err.(*ParseError)
		if !ok {
			t.Errorf("Tokenize(%q): error type %T, want *ParseError", c.input, err)
			continue
		}
		if pe.Code != c.code {
			t.Errorf("Tokenize(%q): code %d, want %d", c.input, pe.Code, c.code)
		}
		if !pe.Lexical() {
			t.Errorf("Tokenize(%q): expected a lexical error classification", c.input)
		}
	}
}

func TestTokenPositions(t *testing.T) {
	toks, err := Tokenize("ab + cd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Start != 0 || toks[0].End != 2 {
		t.Errorf("first token span = [%d,%d), want [0,2)", toks[0].Start, toks[0].End)
	}
	if toks[2].Start != 5 || toks[2].End != 7 {
		t.Errorf("last token span = [%d,%d), want [5,7)", toks[2].Start, toks[2].End)
	}
}
