package sel

import (
	"strconv"
	"strings"
)

// Parser consumes a token sequence and produces the AST. One instance per
// Parse call; internal failures unwind with a *ParseError panic recovered
// at the top.
type Parser struct {
	expression string
	toks       []Token
	pos        int
}

// parseExpressionString tokenizes and parses input into an AST root.
func parseExpressionString(input string) (root Node, err error) {
	toks, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &Parser{expression: input, toks: toks}
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				root, err = nil, pe
				return
			}
			panic(r)
		}
	}()
	root = p.eatExpression()
	if p.pos < len(p.toks) {
		p.fail(p.peekToken().Start, CodeExpressionNotTerminated, p.peekToken().describe())
	}
	return root, nil
}

func (p *Parser) fail(pos int, code MessageCode, args ...any) {
	panic(newParseError(p.expression, pos, code, args...))
}

func (p *Parser) peekToken() Token {
	if p.pos >= len(p.toks) {
		end := len(p.expression)
		return Token{Kind: TokenKind(-1), Start: end, End: end}
	}
	return p.toks[p.pos]
}

func (p *Parser) hasMore() bool { return p.pos < len(p.toks) }

func (p *Parser) nextToken() Token {
	if p.pos >= len(p.toks) {
		p.fail(len(p.expression), CodeOutOfData)
	}
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *Parser) eat(kind TokenKind) Token {
	if !p.hasMore() {
		p.fail(len(p.expression), CodeOutOfData)
	}
	t := p.toks[p.pos]
	if t.Kind != kind {
		p.fail(t.Start, CodeUnexpectedToken, kind.String(), t.describe())
	}
	p.pos++
	return t
}

func (p *Parser) maybeEat(kind TokenKind) (Token, bool) {
	if p.hasMore() && p.toks[p.pos].Kind == kind {
		t := p.toks[p.pos]
		p.pos++
		return t, true
	}
	return Token{}, false
}

// peekIdent reports whether the next token is the given bare identifier.
func (p *Parser) peekIdent(names ...string) bool {
	if !p.hasMore() || p.toks[p.pos].Kind != TokIdentifier {
		return false
	}
	for _, n := range names {
		if p.toks[p.pos].Literal == n {
			return true
		}
	}
	return false
}

// eatExpression is the lowest tier: assignment, elvis and ternary, all
// right-associative.
func (p *Parser) eatExpression() Node {
	left := p.eatLogicalOr()
	if !p.hasMore() {
		return left
	}
	switch p.peekToken().Kind {
	case TokAssign:
		op := p.nextToken()
		right := p.eatExpression()
		n := &Assign{}
		n.Left, n.Right = left, right
		n.start, n.end = op.Start, nodeEnd(right)
		return n
	case TokElvis:
		op := p.nextToken()
		right := p.eatExpression()
		n := &Elvis{Value: left, Default: right}
		n.start, n.end = op.Start, nodeEnd(right)
		return n
	case TokQMark:
		op := p.nextToken()
		ifTrue := p.eatExpression()
		p.eat(TokColon)
		ifFalse := p.eatExpression()
		n := &Ternary{Condition: left, IfTrue: ifTrue, IfFalse: ifFalse}
		n.start, n.end = op.Start, nodeEnd(ifFalse)
		return n
	}
	return left
}

func (p *Parser) eatLogicalOr() Node {
	left := p.eatLogicalAnd()
	for p.hasMore() && (p.peekToken().Kind == TokOr || p.peekIdent("or")) {
		op := p.nextToken()
		right := p.eatLogicalAnd()
		n := &OpOr{}
		n.Left, n.Right = left, right
		n.start, n.end = op.Start, nodeEnd(right)
		left = n
	}
	return left
}

func (p *Parser) eatLogicalAnd() Node {
	left := p.eatRelational()
	for p.hasMore() && (p.peekToken().Kind == TokAnd || p.peekIdent("and")) {
		op := p.nextToken()
		right := p.eatRelational()
		n := &OpAnd{}
		n.Left, n.Right = left, right
		n.start, n.end = op.Start, nodeEnd(right)
		left = n
	}
	return left
}

var textualRelational = map[string]string{
	"lt": "<", "le": "<=", "gt": ">", "ge": ">=", "eq": "==", "ne": "!=",
}

func (p *Parser) eatRelational() Node {
	left := p.eatSum()
	for p.hasMore() {
		t := p.peekToken()
		var op string
		switch t.Kind {
		case TokLT, TokLE, TokGT, TokGE, TokEQ, TokNE:
			op = t.Kind.String()
		case TokIdentifier:
			switch t.Literal {
			case "lt", "le", "gt", "ge", "eq", "ne":
				op = textualRelational[t.Literal]
			case "instanceof", "matches", "between":
				op = t.Literal
			default:
				return left
			}
		default:
			return left
		}
		opTok := p.nextToken()
		right := p.eatSum()
		var n Node
		switch op {
		case "instanceof":
			io := &OpInstanceof{}
			io.Left, io.Right = left, right
			io.start, io.end = opTok.Start, nodeEnd(right)
			n = io
		case "matches":
			m := &OpMatches{}
			m.Left, m.Right = left, right
			m.start, m.end = opTok.Start, nodeEnd(right)
			n = m
		case "between":
			b := &OpBetween{}
			b.Left, b.Right = left, right
			b.start, b.end = opTok.Start, nodeEnd(right)
			n = b
		default:
			r := &OpRelational{Op: op}
			r.Left, r.Right = left, right
			r.start, r.end = opTok.Start, nodeEnd(right)
			n = r
		}
		left = n
	}
	return left
}

func (p *Parser) eatSum() Node {
	left := p.eatProduct()
	for p.hasMore() {
		t := p.peekToken()
		if t.Kind != TokPlus && t.Kind != TokMinus {
			return left
		}
		op := p.nextToken()
		right := p.eatProduct()
		n := &OpArithmetic{Op: op.Kind.String()}
		n.Left, n.Right = left, right
		n.start, n.end = op.Start, nodeEnd(right)
		left = n
	}
	return left
}

func (p *Parser) eatProduct() Node {
	left := p.eatPower()
	for p.hasMore() {
		t := p.peekToken()
		var op string
		switch {
		case t.Kind == TokStar:
			op = "*"
		case t.Kind == TokSlash, t.isKind(TokIdentifier) && t.Literal == "div":
			op = "/"
		case t.Kind == TokPercent, t.isKind(TokIdentifier) && t.Literal == "mod":
			op = "%"
		default:
			return left
		}
		opTok := p.nextToken()
		right := p.eatPower()
		n := &OpArithmetic{Op: op}
		n.Left, n.Right = left, right
		n.start, n.end = opTok.Start, nodeEnd(right)
		left = n
	}
	return left
}

// eatPower handles `^` and the postfix `++`/`--` forms, which bind tighter
// than multiplication but looser than unary prefixes.
func (p *Parser) eatPower() Node {
	operand := p.eatUnary()
	if p.hasMore() {
		switch p.peekToken().Kind {
		case TokPower:
			op := p.nextToken()
			right := p.eatUnary()
			n := &OpPower{}
			n.Left, n.Right = operand, right
			n.start, n.end = op.Start, nodeEnd(right)
			return n
		case TokInc:
			op := p.nextToken()
			n := &OpIncDec{Target: operand}
			n.start, n.end = op.Start, op.End
			return n
		case TokDec:
			op := p.nextToken()
			n := &OpIncDec{Target: operand, Decrement: true}
			n.start, n.end = op.Start, op.End
			return n
		}
	}
	return operand
}

func (p *Parser) eatUnary() Node {
	if !p.hasMore() {
		p.fail(len(p.expression), CodeOutOfData)
	}
	t := p.peekToken()
	switch {
	case t.Kind == TokNot, t.isKind(TokIdentifier) && t.Literal == "not":
		op := p.nextToken()
		operand := p.eatUnary()
		n := &OpNot{Operand: operand}
		n.start, n.end = op.Start, nodeEnd(operand)
		return n
	case t.Kind == TokMinus:
		op := p.nextToken()
		operand := p.eatUnary()
		// Fold a negated numeric literal so "-1" stays a constant.
		switch lit := operand.(type) {
		case *IntLiteral:
			lit.Value = -lit.Value
			lit.start = op.Start
			return lit
		case *FloatLiteral:
			lit.Value = -lit.Value
			lit.start = op.Start
			return lit
		}
		n := &OpUnaryMinus{Operand: operand}
		n.start, n.end = op.Start, nodeEnd(operand)
		return n
	case t.Kind == TokPlus:
		op := p.nextToken()
		operand := p.eatUnary()
		n := &OpUnaryPlus{Operand: operand}
		n.start, n.end = op.Start, nodeEnd(operand)
		return n
	case t.Kind == TokInc:
		op := p.nextToken()
		operand := p.eatUnary()
		n := &OpIncDec{Target: operand, Prefix: true}
		n.start, n.end = op.Start, nodeEnd(operand)
		return n
	case t.Kind == TokDec:
		op := p.nextToken()
		operand := p.eatUnary()
		n := &OpIncDec{Target: operand, Decrement: true, Prefix: true}
		n.start, n.end = op.Start, nodeEnd(operand)
		return n
	}
	return p.eatPrimary()
}

// eatPrimary parses a start node followed by any chain of dotted, null-safe
// or indexed accesses. A chain of more than one element becomes a
// CompoundExpression.
func (p *Parser) eatPrimary() Node {
	start := p.eatStartNode()
	chain := []Node{start}
	for p.hasMore() {
		next := p.eatNode()
		if next == nil {
			break
		}
		chain = append(chain, next)
	}
	if len(chain) == 1 {
		return start
	}
	n := &CompoundExpression{Children: chain}
	n.start, n.end = nodeStart(chain[0]), nodeEnd(chain[len(chain)-1])
	return n
}

// eatNode parses one chain continuation: `.x`, `?.x`, `.m(...)`, an
// indexer, or a dotted projection/selection. Returns nil when the chain
// ends.
func (p *Parser) eatNode() Node {
	t := p.peekToken()
	switch t.Kind {
	case TokDot, TokSafeNav:
		return p.eatDottedNode(t.Kind == TokSafeNav)
	case TokLSquare:
		open := p.nextToken()
		if _, done := p.maybeEat(TokRSquare); done {
			p.fail(open.Start, CodeMissingSelectionExpr)
		}
		idx := p.eatExpression()
		closeTok := p.eat(TokRSquare)
		n := &Indexer{Index: idx}
		n.start, n.end = open.Start, closeTok.End
		return n
	case TokRange:
		p.fail(t.Start, CodeUnsupportedRangeOperator)
	}
	return nil
}

func (p *Parser) eatDottedNode(nullSafe bool) Node {
	dot := p.nextToken()
	if !p.hasMore() {
		p.fail(len(p.expression), CodeOutOfData)
	}
	t := p.peekToken()
	switch t.Kind {
	case TokIdentifier:
		return p.eatPropertyOrMethod(nullSafe)
	case TokProject:
		open := p.nextToken()
		if p.peekToken().Kind == TokRSquare {
			p.fail(open.Start, CodeMissingProjectionExpr)
		}
		body := p.eatExpression()
		closeTok := p.eat(TokRSquare)
		n := &Projection{NullSafe: nullSafe, Body: body}
		n.start, n.end = dot.Start, closeTok.End
		return n
	case TokSelect, TokSelectFirst, TokSelectLast:
		open := p.nextToken()
		if p.peekToken().Kind == TokRSquare {
			p.fail(open.Start, CodeMissingSelectionExpr)
		}
		body := p.eatExpression()
		closeTok := p.eat(TokRSquare)
		mode := selectAll
		switch open.Kind {
		case TokSelectFirst:
			mode = selectFirst
		case TokSelectLast:
			mode = selectLast
		}
		n := &Selection{Mode: mode, NullSafe: nullSafe, Body: body}
		n.start, n.end = dot.Start, closeTok.End
		return n
	}
	p.fail(t.Start, CodeUnexpectedToken, "identifier", t.describe())
	return nil
}

func (p *Parser) eatPropertyOrMethod(nullSafe bool) Node {
	name := p.eat(TokIdentifier)
	if p.hasMore() && p.peekToken().Kind == TokLParen {
		args, end := p.eatArguments()
		n := &MethodReference{Name: name.Literal, Args: args, NullSafe: nullSafe}
		n.start, n.end = name.Start, end
		return n
	}
	n := &PropertyOrFieldReference{Name: name.Literal, NullSafe: nullSafe}
	n.start, n.end = name.Start, name.End
	return n
}

// eatArguments consumes a parenthesized comma-separated argument list.
// Running out of tokens mid-list is its own syntax error.
func (p *Parser) eatArguments() ([]Node, int) {
	p.eat(TokLParen)
	var args []Node
	if t, ok := p.maybeEat(TokRParen); ok {
		return args, t.End
	}
	for {
		if !p.hasMore() {
			p.fail(len(p.expression), CodeRanOutOfArguments)
		}
		args = append(args, p.eatExpression())
		if !p.hasMore() {
			p.fail(len(p.expression), CodeRanOutOfArguments)
		}
		if _, ok := p.maybeEat(TokComma); ok {
			continue
		}
		t := p.eat(TokRParen)
		return args, t.End
	}
}

func (p *Parser) eatStartNode() Node {
	if !p.hasMore() {
		p.fail(len(p.expression), CodeOutOfData)
	}
	t := p.peekToken()
	switch t.Kind {
	case TokLiteralInt, TokLiteralLong:
		tok := p.nextToken()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.fail(tok.Start, CodeBadNumber, tok.Literal)
		}
		n := &IntLiteral{Value: v}
		n.start, n.end = tok.Start, tok.End
		return n
	case TokLiteralHexInt, TokLiteralHexLong:
		tok := p.nextToken()
		v, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimPrefix(tok.Literal, "0x"), "0X"), 16, 64)
		if err != nil {
			p.fail(tok.Start, CodeBadHexNumber, tok.Literal)
		}
		n := &IntLiteral{Value: v}
		n.start, n.end = tok.Start, tok.End
		return n
	case TokLiteralReal:
		tok := p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.fail(tok.Start, CodeBadNumber, tok.Literal)
		}
		n := &FloatLiteral{Value: v}
		n.start, n.end = tok.Start, tok.End
		return n
	case TokLiteralString:
		tok := p.nextToken()
		n := &StringLiteral{Value: tok.Literal}
		n.start, n.end = tok.Start, tok.End
		return n
	case TokLParen:
		p.nextToken()
		inner := p.eatExpression()
		p.eat(TokRParen)
		return inner
	case TokIdentifier:
		return p.eatIdentifierStart()
	case TokHash:
		return p.eatVariableOrFunction()
	case TokBeanRef, TokFactoryBeanRef:
		return p.eatBeanReference()
	case TokLCurly:
		return p.eatInlineCollection()
	case TokRange:
		p.fail(t.Start, CodeUnsupportedRangeOperator)
	}
	p.fail(t.Start, CodeUnexpectedToken, "expression", t.describe())
	return nil
}

func (p *Parser) eatIdentifierStart() Node {
	tok := p.peekToken()
	switch tok.Literal {
	case "true", "false":
		p.nextToken()
		n := &BoolLiteral{Value: tok.Literal == "true"}
		n.start, n.end = tok.Start, tok.End
		return n
	case "null":
		p.nextToken()
		n := &NullLiteral{}
		n.start, n.end = tok.Start, tok.End
		return n
	case "new":
		// `new` only starts a constructor when a type name follows; otherwise
		// it is an ordinary property name (e.g. a map key).
		if p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == TokIdentifier {
			return p.eatConstructor()
		}
	case "T":
		if p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == TokLParen {
			return p.eatTypeReference()
		}
	}
	return p.eatPropertyOrMethod(false)
}

func (p *Parser) eatTypeReference() Node {
	start := p.eat(TokIdentifier) // T
	p.eat(TokLParen)
	name := p.eatDottedName()
	closeTok := p.eat(TokRParen)
	n := &TypeReference{TypeName: name}
	n.start, n.end = start.Start, closeTok.End
	return n
}

func (p *Parser) eatDottedName() string {
	var sb strings.Builder
	first := p.peekToken()
	if first.Kind != TokIdentifier {
		p.fail(first.Start, CodeMissingTypeName)
	}
	sb.WriteString(p.nextToken().Literal)
	for p.hasMore() && p.peekToken().Kind == TokDot {
		p.nextToken()
		sb.WriteByte('.')
		sb.WriteString(p.eat(TokIdentifier).Literal)
	}
	return sb.String()
}

func (p *Parser) eatConstructor() Node {
	start := p.eat(TokIdentifier) // new
	name := p.eatDottedName()
	if !p.hasMore() {
		p.fail(len(p.expression), CodeMissingConstructorArgs)
	}
	switch p.peekToken().Kind {
	case TokLParen:
		args, end := p.eatArguments()
		n := &ConstructorReference{TypeName: name, Args: args}
		n.start, n.end = start.Start, end
		return n
	case TokLSquare:
		p.nextToken()
		var dim Node
		if p.peekToken().Kind != TokRSquare {
			dim = p.eatExpression()
		}
		closeTok := p.eat(TokRSquare)
		end := closeTok.End
		var init []Node
		if p.hasMore() && p.peekToken().Kind == TokLCurly {
			p.nextToken()
			if t, ok := p.maybeEat(TokRCurly); ok {
				end = t.End
			} else {
				for {
					init = append(init, p.eatExpression())
					if _, ok := p.maybeEat(TokComma); ok {
						continue
					}
					t := p.eat(TokRCurly)
					end = t.End
					break
				}
			}
		}
		n := &ConstructorReference{TypeName: name, IsArray: true, Dimension: dim, Initializer: init}
		n.start, n.end = start.Start, end
		return n
	}
	p.fail(p.peekToken().Start, CodeMissingConstructorArgs)
	return nil
}

func (p *Parser) eatVariableOrFunction() Node {
	hash := p.eat(TokHash)
	name := p.eat(TokIdentifier)
	if p.hasMore() && p.peekToken().Kind == TokLParen {
		args, end := p.eatArguments()
		n := &FunctionReference{Name: name.Literal, Args: args}
		n.start, n.end = hash.Start, end
		return n
	}
	n := &VariableReference{Name: name.Literal}
	n.start, n.end = hash.Start, name.End
	return n
}

func (p *Parser) eatBeanReference() Node {
	prefix := p.nextToken()
	if !p.hasMore() {
		p.fail(len(p.expression), CodeInvalidBeanReference)
	}
	t := p.peekToken()
	var name string
	switch t.Kind {
	case TokIdentifier:
		// A single identifier only, so a.b after @bean stays a property
		// chain. Dotted bean ids go through the quoted form: @'a.b'.
		name = p.nextToken().Literal
	case TokLiteralString:
		name = p.nextToken().Literal
	default:
		p.fail(t.Start, CodeInvalidBeanReference)
	}
	n := &BeanReference{Name: name, Factory: prefix.Kind == TokFactoryBeanRef}
	n.start, n.end = prefix.Start, t.End
	return n
}

// eatInlineCollection parses { ... }: an inline list, an inline map, or
// one of the empty forms {} and {:}.
func (p *Parser) eatInlineCollection() Node {
	open := p.eat(TokLCurly)
	if t, ok := p.maybeEat(TokRCurly); ok {
		return newInlineList(open.Start, t.End, nil)
	}
	if _, ok := p.maybeEat(TokColon); ok {
		t := p.eat(TokRCurly)
		n := &InlineMap{}
		n.start, n.end = open.Start, t.End
		return n
	}

	first := p.eatExpression()
	if _, ok := p.maybeEat(TokColon); ok {
		keys := []Node{mapKeyNode(first)}
		var vals []Node
		vals = append(vals, p.eatExpression())
		for {
			if _, ok := p.maybeEat(TokComma); !ok {
				break
			}
			keys = append(keys, mapKeyNode(p.eatExpression()))
			p.eat(TokColon)
			vals = append(vals, p.eatExpression())
		}
		closeTok := p.eat(TokRCurly)
		n := &InlineMap{Keys: keys, Values: vals}
		n.start, n.end = open.Start, closeTok.End
		return n
	}

	elems := []Node{first}
	for {
		if _, ok := p.maybeEat(TokComma); !ok {
			break
		}
		elems = append(elems, p.eatExpression())
	}
	closeTok := p.eat(TokRCurly)
	return newInlineList(open.Start, closeTok.End, elems)
}

// mapKeyNode rewrites a bare identifier key into a string literal so
// {name: 1} does not dereference a property called name.
func mapKeyNode(n Node) Node {
	if ref, ok := n.(*PropertyOrFieldReference); ok && !ref.NullSafe {
		lit := &StringLiteral{Value: ref.Name}
		lit.start, lit.end = ref.start, ref.end
		return lit
	}
	return n
}

func nodeStart(n Node) int {
	s, _ := n.Span()
	return s
}

func nodeEnd(n Node) int {
	_, e := n.Span()
	return e
}
