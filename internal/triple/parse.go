package triple

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/vsptd/internal/ruleerr"
)

// Parse converts a triplex string into a Pool.
//
// Format: triplets separated by ';', each "$PREFIX.NAME=VALUE" where the
// leading '$' is optional and VALUE is either a quoted string ('text' or
// "text", quote doubled to escape) or a number. Whitespace around
// separators is ignored. An empty string yields an empty pool.
//
// Example: $L.D=35;$L.L=10;$E.NM='Отвёртка';
func Parse(raw string) (*Pool, error) {
	p := &parser{src: []rune(Normalize(raw))}

	var triplets []Triplet
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		if p.peek() == ';' {
			p.pos++
			continue
		}

		t, err := p.triplet()
		if err != nil {
			return nil, ruleerr.Wrap(ruleerr.MalformedTriples, "cannot parse triplex string", raw, err)
		}
		triplets = append(triplets, t)

		p.skipSpace()
		if p.eof() {
			break
		}
		if p.peek() != ';' {
			return nil, ruleerr.Wrap(ruleerr.MalformedTriples, "cannot parse triplex string", raw,
				fmt.Errorf("expected ';' at offset %d, found %q", p.pos, p.peek()))
		}
		p.pos++
	}

	return NewPool(triplets...), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level fixtures.
func MustParse(raw string) *Pool {
	pool, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return pool
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() rune {
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) expect(r rune) error {
	p.skipSpace()
	if p.eof() {
		return fmt.Errorf("expected %q at end of input", r)
	}
	if p.peek() != r {
		return fmt.Errorf("expected %q at offset %d, found %q", r, p.pos, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) triplet() (Triplet, error) {
	if p.peek() == LiteralMarker {
		p.pos++
	}

	prefix := p.take(isASCIILetter)
	prefix += p.take(isDigit)
	if prefix == "" || !IsPrefix(prefix) {
		return Triplet{}, fmt.Errorf("expected prefix at offset %d", p.pos)
	}
	if err := p.expect('.'); err != nil {
		return Triplet{}, err
	}

	if p.eof() || !isASCIILetter(p.peek()) {
		return Triplet{}, fmt.Errorf("expected attribute name at offset %d", p.pos)
	}
	name := p.take(func(r rune) bool { return isASCIILetter(r) || isDigit(r) || r == '_' })

	if err := p.expect('='); err != nil {
		return Triplet{}, err
	}
	p.skipSpace()

	value, err := p.value()
	if err != nil {
		return Triplet{}, fmt.Errorf("%s.%s: %w", prefix, name, err)
	}
	return Triplet{Prefix: prefix, Name: name, Value: value}, nil
}

func (p *parser) value() (Value, error) {
	if p.eof() {
		return nil, fmt.Errorf("missing value")
	}

	if q := p.peek(); q == '\'' || q == '"' {
		s, err := p.quoted(q)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	}

	text := p.take(func(r rune) bool {
		return isDigit(r) || r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E'
	})
	if text == "" {
		return nil, fmt.Errorf("expected quoted string or number at offset %d", p.pos)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return Number(f), nil
}

// quoted reads a string delimited by q; a doubled delimiter is an escaped one.
func (p *parser) quoted(q rune) (string, error) {
	start := p.pos
	p.pos++ // opening quote

	var b strings.Builder
	for !p.eof() {
		r := p.peek()
		p.pos++
		if r != q {
			b.WriteRune(r)
			continue
		}
		if !p.eof() && p.peek() == q {
			b.WriteRune(q)
			p.pos++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unterminated string starting at offset %d", start)
}

func (p *parser) take(accept func(rune) bool) string {
	start := p.pos
	for !p.eof() && accept(p.peek()) {
		p.pos++
	}
	return string(p.src[start:p.pos])
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
