package condition

import (
	"fmt"

	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/triple"
)

// node is a parsed expression node.
type node interface {
	node()
}

type literal struct{ val triple.Value }

type ref struct {
	bound        bool
	prefix, name string
}

type unary struct {
	op string // "-" or "NOT"
	x  node
}

type binary struct {
	op   string // comparison/arithmetic operator, "AND" or "OR"
	l, r node
}

func (literal) node() {}
func (ref) node()     {}
func (unary) node()   {}
func (binary) node()  {}

// Expr is a compiled condition.
type Expr struct {
	src  string
	root node
}

// String returns the source text the expression was compiled from.
func (e *Expr) String() string {
	return e.src
}

// parser is a recursive-descent parser over the token stream.
//
// Precedence, lowest first: OR, AND, NOT, comparison, additive,
// multiplicative, unary minus.
type parser struct {
	toks []token
	pos  int
}

func parse(src string, g *rule.Grammar) (node, error) {
	toks, err := tokenize(src, g)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.cur().kind == tokEOF {
		return nil, fmt.Errorf("empty condition")
	}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.cur(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at offset %d", describe(t), t.pos)
	}
	return n, nil
}

func (p *parser) cur() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isConn(c rule.Connective) bool {
	t := p.cur()
	return t.kind == tokConn && t.conn == c
}

func (p *parser) isOp(ops ...string) bool {
	t := p.cur()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) or() (node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.isConn(rule.ConnOr) {
		p.advance()
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = binary{op: "OR", l: l, r: r}
	}
	return l, nil
}

func (p *parser) and() (node, error) {
	l, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.isConn(rule.ConnAnd) {
		p.advance()
		r, err := p.not()
		if err != nil {
			return nil, err
		}
		l = binary{op: "AND", l: l, r: r}
	}
	return l, nil
}

func (p *parser) not() (node, error) {
	if p.isConn(rule.ConnNot) {
		p.advance()
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return unary{op: "NOT", x: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	l, err := p.additive()
	if err != nil {
		return nil, err
	}
	if p.isOp("=", "==", "!=", "<>", "<", "<=", ">", ">=") {
		op := p.advance().text
		r, err := p.additive()
		if err != nil {
			return nil, err
		}
		l = binary{op: canonicalOp(op), l: l, r: r}
	}
	return l, nil
}

func (p *parser) additive() (node, error) {
	l, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.advance().text
		r, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		l = binary{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) multiplicative() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/") {
		op := p.advance().text
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binary{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) unary() (node, error) {
	if p.isOp("-") {
		p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unary{op: "-", x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber:
		return literal{val: triple.Number(t.num)}, nil
	case tokString:
		return literal{val: triple.String(t.text)}, nil
	case tokBound:
		return ref{bound: true, prefix: t.prefix, name: t.name}, nil
	case tokUnbound:
		return ref{prefix: t.prefix, name: t.name}, nil
	case tokLParen:
		n, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.cur().kind != tokRParen {
			return nil, fmt.Errorf("missing ')' at offset %d", p.cur().pos)
		}
		p.advance()
		return n, nil
	}
	return nil, fmt.Errorf("unexpected %s at offset %d", describe(t), t.pos)
}

func canonicalOp(op string) string {
	switch op {
	case "==":
		return "="
	case "<>":
		return "!="
	}
	return op
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of condition"
	case tokNumber, tokOp, tokLParen, tokRParen, tokConn:
		return fmt.Sprintf("%q", t.text)
	case tokString:
		return "string literal"
	default:
		return "reference " + t.prefix + "." + t.name
	}
}
