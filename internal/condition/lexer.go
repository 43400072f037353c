package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/triple"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokBound   // $P.N
	tokUnbound // P.N
	tokOp
	tokConn
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	pos    int
	text   string // operator spelling, string contents, or raw word
	num    float64
	prefix string
	name   string
	conn   rule.Connective
}

type lexer struct {
	src     []rune
	pos     int
	grammar *rule.Grammar
}

func tokenize(src string, g *rule.Grammar) ([]token, error) {
	lx := &lexer{src: []rune(src), grammar: g}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peek(off int) rune {
	if lx.pos+off >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+off]
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.src) && unicode.IsSpace(lx.src[lx.pos]) {
		lx.pos++
	}
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	r := lx.src[lx.pos]
	switch {
	case isDigit(r) || (r == '.' && isDigit(lx.peek(1))):
		return lx.number()
	case r == '\'' || r == '"':
		return lx.quoted(r)
	case r == triple.LiteralMarker:
		lx.pos++
		prefix, name, ok := lx.reference()
		if !ok {
			return token{}, fmt.Errorf("malformed bound reference at offset %d", start)
		}
		return token{kind: tokBound, pos: start, prefix: prefix, name: name}, nil
	case unicode.IsLetter(r) || r == '_':
		return lx.word()
	case r == '(':
		lx.pos++
		return token{kind: tokLParen, pos: start, text: "("}, nil
	case r == ')':
		lx.pos++
		return token{kind: tokRParen, pos: start, text: ")"}, nil
	}

	for _, op := range []string{"<=", ">=", "<>", "!=", "==", "=", "<", ">", "+", "-", "*", "/"} {
		if lx.hasPrefix(op) {
			lx.pos += len([]rune(op))
			return token{kind: tokOp, pos: start, text: op}, nil
		}
	}
	return token{}, fmt.Errorf("unexpected character %q at offset %d", r, start)
}

func (lx *lexer) hasPrefix(s string) bool {
	rs := []rune(s)
	if lx.pos+len(rs) > len(lx.src) {
		return false
	}
	for i, r := range rs {
		if lx.src[lx.pos+i] != r {
			return false
		}
	}
	return true
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '.') {
		lx.pos++
	}
	text := string(lx.src[start:lx.pos])
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("invalid number %q at offset %d", text, start)
	}
	return token{kind: tokNumber, pos: start, text: text, num: f}, nil
}

func (lx *lexer) quoted(q rune) (token, error) {
	start := lx.pos
	lx.pos++
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		r := lx.src[lx.pos]
		if r == q {
			if lx.peek(1) == q {
				sb.WriteRune(q)
				lx.pos += 2
				continue
			}
			lx.pos++
			return token{kind: tokString, pos: start, text: sb.String()}, nil
		}
		sb.WriteRune(r)
		lx.pos++
	}
	return token{}, fmt.Errorf("unterminated string at offset %d", start)
}

// reference scans "P.N" at the current position.
func (lx *lexer) reference() (prefix, name string, ok bool) {
	start := lx.pos
	for lx.pos < len(lx.src) && isASCIILetter(lx.src[lx.pos]) {
		lx.pos++
	}
	if lx.pos == start {
		return "", "", false
	}
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.pos++
	}
	prefix = string(lx.src[start:lx.pos])
	if lx.peek(0) != '.' || !isASCIILetter(lx.peek(1)) {
		return "", "", false
	}
	lx.pos++
	nameStart := lx.pos
	for lx.pos < len(lx.src) && (isASCIILetter(lx.src[lx.pos]) || isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
		lx.pos++
	}
	return prefix, string(lx.src[nameStart:lx.pos]), true
}

func (lx *lexer) word() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r := lx.src[lx.pos]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		lx.pos++
	}
	w := string(lx.src[start:lx.pos])

	if triple.IsPrefix(w) && lx.peek(0) == '.' && isASCIILetter(lx.peek(1)) {
		lx.pos = start
		prefix, name, ok := lx.reference()
		if !ok {
			return token{}, fmt.Errorf("malformed reference at offset %d", start)
		}
		return token{kind: tokUnbound, pos: start, prefix: prefix, name: name}, nil
	}

	if c, ok := lx.grammar.Connective(w); ok {
		return token{kind: tokConn, pos: start, text: w, conn: c}, nil
	}
	return token{}, fmt.Errorf("unknown word %q at offset %d", w, start)
}

func isDigit(r rune) bool       { return r >= '0' && r <= '9' }
func isASCIILetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
