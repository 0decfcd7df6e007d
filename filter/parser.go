package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse parses a filter expression.
func Parse(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SyntaxError{Input: input, Msg: "empty expression"}
	}
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s %q", t.kind, t.text)
	}
	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(input string) Expr {
	e, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokKeyword && t.text == kw
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		t := p.peek()
		return p.errorf(t, "expected %s, found %q", kw, t.text)
	}
	return nil
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, found %s", kind, t.kind)
	}
	return t, nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Input: p.input, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeyword("NOT") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return e, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind == tokOp {
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &compareExpr{op: t.text, left: left, right: right}, nil
	}

	if p.acceptKeyword("IS") {
		negate := p.acceptKeyword("NOT")
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &isNullExpr{target: left, negate: negate}, nil
	}

	negate := p.acceptKeyword("NOT")
	switch {
	case p.acceptKeyword("IN"):
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &inExpr{target: left, list: list, negate: negate}, nil
	case p.acceptKeyword("LIKE"):
		t, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}
		re, err := compileLike(t.text)
		if err != nil {
			return nil, p.errorf(t, "invalid pattern: %v", err)
		}
		return &likeExpr{target: left, pattern: t.text, re: re, negate: negate}, nil
	case p.acceptKeyword("BETWEEN"):
		low, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &betweenExpr{target: left, low: low, high: high, negate: negate}, nil
	case negate:
		t := p.peek()
		return nil, p.errorf(t, "expected IN, LIKE or BETWEEN after NOT, found %q", t.text)
	}

	return &columnExpr{target: left}, nil
}

func (p *parser) parseList() ([]operand, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var list []operand
	for {
		o, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		list = append(list, o)
		t := p.next()
		if t.kind == tokRParen {
			return list, nil
		}
		if t.kind != tokComma {
			return nil, p.errorf(t, "expected ',' or ')', found %s", t.kind)
		}
	}
}

func (p *parser) parseOperand() (operand, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return operand{column: t.text}, nil
	case tokString:
		return operand{value: String(t.text)}, nil
	case tokNumber:
		if !strings.ContainsAny(t.text, ".eE") {
			if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
				return operand{value: Int(i)}, nil
			}
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return operand{}, p.errorf(t, "invalid number %q", t.text)
		}
		return operand{value: Float(f)}, nil
	case tokKeyword:
		switch t.text {
		case "TRUE":
			return operand{value: Bool(true)}, nil
		case "FALSE":
			return operand{value: Bool(false)}, nil
		case "NULL":
			return operand{value: Null()}, nil
		}
	}
	if t.kind == tokEOF {
		return operand{}, p.errorf(t, "unexpected end of input")
	}
	return operand{}, p.errorf(t, "unexpected %s %q", t.kind, t.text)
}
