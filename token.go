package sel

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokLiteralInt TokenKind = iota
	TokLiteralLong
	TokLiteralHexInt
	TokLiteralHexLong
	TokLiteralReal
	TokLiteralString
	TokIdentifier

	TokLParen
	TokRParen
	TokLSquare
	TokRSquare
	TokLCurly
	TokRCurly
	TokComma
	TokColon
	TokDot

	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokPower

	TokLT
	TokLE
	TokGT
	TokGE
	TokEQ
	TokNE

	TokNot
	TokAssign
	TokAnd
	TokOr

	TokQMark
	TokSafeNav
	TokElvis
	TokSelect
	TokSelectFirst
	TokSelectLast
	TokProject

	TokHash
	TokBeanRef
	TokFactoryBeanRef
	TokInc
	TokDec
	TokRange
)

var tokenNames = map[TokenKind]string{
	TokLiteralInt:     "int literal",
	TokLiteralLong:    "long literal",
	TokLiteralHexInt:  "hex literal",
	TokLiteralHexLong: "hex long literal",
	TokLiteralReal:    "real literal",
	TokLiteralString:  "string literal",
	TokIdentifier:     "identifier",
	TokLParen:         "(",
	TokRParen:         ")",
	TokLSquare:        "[",
	TokRSquare:        "]",
	TokLCurly:         "{",
	TokRCurly:         "}",
	TokComma:          ",",
	TokColon:          ":",
	TokDot:            ".",
	TokPlus:           "+",
	TokMinus:          "-",
	TokStar:           "*",
	TokSlash:          "/",
	TokPercent:        "%",
	TokPower:          "^",
	TokLT:             "<",
	TokLE:             "<=",
	TokGT:             ">",
	TokGE:             ">=",
	TokEQ:             "==",
	TokNE:             "!=",
	TokNot:            "!",
	TokAssign:         "=",
	TokAnd:            "&&",
	TokOr:             "||",
	TokQMark:          "?",
	TokSafeNav:        "?.",
	TokElvis:          "?:",
	TokSelect:         "?[",
	TokSelectFirst:    "^[",
	TokSelectLast:     "$[",
	TokProject:        "![",
	TokHash:           "#",
	TokBeanRef:        "@",
	TokFactoryBeanRef: "&",
	TokInc:            "++",
	TokDec:            "--",
	TokRange:          "..",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return "unknown token"
}

// Token is one lexical unit of an expression. Start and End are byte offsets
// into the source; End is exclusive.
type Token struct {
	Kind    TokenKind
	Literal string
	Start   int
	End     int
}

func (t Token) describe() string {
	switch t.Kind {
	case TokIdentifier, TokLiteralString:
		return t.Kind.String() + " " + "'" + t.Literal + "'"
	case TokLiteralInt, TokLiteralLong, TokLiteralHexInt, TokLiteralHexLong, TokLiteralReal:
		return t.Kind.String() + " " + t.Literal
	default:
		return "'" + t.Kind.String() + "'"
	}
}

func (t Token) isKind(kinds ...TokenKind) bool {
	for _, k := range kinds {
		if t.Kind == k {
			return true
		}
	}
	return false
}
