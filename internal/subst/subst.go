package subst

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/triple"
)

// Binder maps an unbound reference to a column of the agent's table.
type Binder interface {
	Column(ctx context.Context, prefix, name string) (string, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(ctx context.Context, prefix, name string) (string, error)

// Column calls f.
func (f BinderFunc) Column(ctx context.Context, prefix, name string) (string, error) {
	return f(ctx, prefix, name)
}

// Substituter rewrites action parameters into query fragments.
// It is stateless and safe for concurrent use.
type Substituter struct {
	grammar *rule.Grammar
}

// New returns a Substituter using the connectives of g.
// A nil grammar means rule.Default.
func New(g *rule.Grammar) *Substituter {
	if g == nil {
		g = rule.Default
	}
	return &Substituter{grammar: g}
}

var referenceRe = regexp.MustCompile(`^(` + triple.PrefixPattern + `)\.(` + triple.NamePattern + `)$`)

// Predicate resolves a find predicate in three passes:
//
//  1. connective words become OR / AND / NOT
//  2. bound references ($P.N) become ? placeholders bound to values from pool
//  3. unbound references (P.N) become quoted column names from b
//
// Quoted literals written in the rule are never rewritten.
func (s *Substituter) Predicate(ctx context.Context, text string, pool *triple.Pool, b Binder) (queryir.Fragment, error) {
	segs, err := lex(triple.Normalize(text))
	if err != nil {
		return queryir.Fragment{}, err
	}
	if strings.TrimSpace(text) == "" {
		return queryir.Fragment{}, ruleerr.New(ruleerr.MalformedAction, "find predicate is empty", text)
	}

	s.connectives(segs)

	args, err := bindValues(segs, pool)
	if err != nil {
		return queryir.Fragment{}, err
	}

	if err := bindColumns(ctx, segs, b); err != nil {
		return queryir.Fragment{}, err
	}

	var sb strings.Builder
	for _, sg := range segs {
		sb.WriteString(sg.out)
	}
	return queryir.Fragment{SQL: strings.TrimSpace(sb.String()), Args: args}, nil
}

// Connectives applies only the first pass. It is exported for explain
// output and tests.
func (s *Substituter) Connectives(text string) (string, error) {
	segs, err := lex(triple.Normalize(text))
	if err != nil {
		return "", err
	}
	s.connectives(segs)
	var sb strings.Builder
	for _, sg := range segs {
		sb.WriteString(sg.out)
	}
	return sb.String(), nil
}

// Reference resolves an ordering reference. It must be exactly one
// unbound reference; the result is the validated, unquoted column name.
func (s *Substituter) Reference(ctx context.Context, text string, b Binder) (string, error) {
	m := referenceRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", ruleerr.New(ruleerr.MalformedAction, "ordering must name one column reference", text)
	}
	return resolveColumn(ctx, b, m[1], m[2])
}

func (s *Substituter) connectives(segs []segment) {
	for i := range segs {
		sg := &segs[i]
		if sg.kind != segWord || !sg.spaced {
			continue
		}
		if c, ok := s.grammar.Connective(sg.raw); ok {
			sg.out = string(c)
		}
	}
}

func bindValues(segs []segment, pool *triple.Pool) ([]triple.Value, error) {
	var args []triple.Value
	for i := range segs {
		sg := &segs[i]
		if sg.kind != segBound {
			continue
		}
		v, ok := pool.Get(sg.prefix, sg.name)
		if !ok {
			return nil, ruleerr.New(ruleerr.UnresolvedTriplet, "no value for bound reference", sg.raw)
		}
		sg.out = "?"
		args = append(args, v)
	}
	return args, nil
}

func bindColumns(ctx context.Context, segs []segment, b Binder) error {
	for i := range segs {
		sg := &segs[i]
		if sg.kind != segUnbound {
			continue
		}
		col, err := resolveColumn(ctx, b, sg.prefix, sg.name)
		if err != nil {
			return err
		}
		sg.out = querysql.QuoteIdent(col)
	}
	return nil
}

func resolveColumn(ctx context.Context, b Binder, prefix, name string) (string, error) {
	if b == nil {
		return "", ruleerr.New(ruleerr.UnresolvedColumn, "no column binder configured", prefix+"."+name)
	}
	col, err := b.Column(ctx, prefix, name)
	if err != nil {
		if ruleerr.CodeOf(err) != "" {
			return "", err
		}
		return "", fmt.Errorf("resolve column %s.%s: %w", prefix, name, err)
	}
	if err := queryir.ValidateIdentifier(col); err != nil {
		return "", err
	}
	return col, nil
}

type segKind int

const (
	segText segKind = iota
	segQuoted
	segWord
	segBound
	segUnbound
)

type segment struct {
	kind         segKind
	raw          string
	out          string
	prefix, name string
	spaced       bool // word delimited by whitespace, parentheses or the text edges
}

// lex splits text into segments. Quoted literals ('...' or "...", with the
// quote doubled to escape it) are opaque.
func lex(text string) ([]segment, error) {
	src := []rune(text)
	var segs []segment
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			segs = append(segs, segment{kind: segText, raw: plain.String(), out: plain.String()})
			plain.Reset()
		}
	}
	emit := func(sg segment) {
		flush()
		if sg.out == "" {
			sg.out = sg.raw
		}
		segs = append(segs, sg)
	}

	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case r == '\'' || r == '"':
			j := i + 1
			for {
				if j >= len(src) {
					return nil, ruleerr.New(ruleerr.MalformedAction, "unterminated quoted literal", text)
				}
				if src[j] == r {
					if j+1 < len(src) && src[j+1] == r {
						j += 2
						continue
					}
					break
				}
				j++
			}
			emit(segment{kind: segQuoted, raw: string(src[i : j+1])})
			i = j + 1

		case r == triple.LiteralMarker:
			prefix, name, end, ok := scanReference(src, i+1)
			if !ok {
				return nil, ruleerr.New(ruleerr.MalformedAction, "literal marker is not followed by a reference", text)
			}
			emit(segment{kind: segBound, raw: string(src[i:end]), prefix: prefix, name: name})
			i = end

		case unicode.IsDigit(r):
			// Numbers (and anything glued to them) are plain text, so 1.5 or
			// 2E.D never reads as a reference.
			j := i
			for j < len(src) && (isWordRune(src[j]) || src[j] == '.') {
				j++
			}
			plain.WriteString(string(src[i:j]))
			i = j

		case unicode.IsLetter(r) || r == '_':
			afterDot := i > 0 && src[i-1] == '.'
			if prefix, name, end, ok := scanReference(src, i); ok && !afterDot {
				emit(segment{kind: segUnbound, raw: string(src[i:end]), prefix: prefix, name: name})
				i = end
				continue
			}
			j := i
			for j < len(src) && isWordRune(src[j]) {
				j++
			}
			emit(segment{
				kind:   segWord,
				raw:    string(src[i:j]),
				spaced: isDelimiter(src, i-1) && isDelimiter(src, j),
			})
			i = j

		default:
			plain.WriteRune(r)
			i++
		}
	}
	flush()
	return segs, nil
}

// scanReference matches PrefixPattern "." NamePattern starting at i and
// not followed by another word rune.
func scanReference(src []rune, i int) (prefix, name string, end int, ok bool) {
	j := i
	for j < len(src) && isASCIILetter(src[j]) {
		j++
	}
	if j == i {
		return "", "", 0, false
	}
	for j < len(src) && src[j] >= '0' && src[j] <= '9' {
		j++
	}
	if j+1 >= len(src) || src[j] != '.' || !isASCIILetter(src[j+1]) {
		return "", "", 0, false
	}
	prefix = string(src[i:j])
	k := j + 1
	for k < len(src) && (isASCIILetter(src[k]) || (src[k] >= '0' && src[k] <= '9') || src[k] == '_') {
		k++
	}
	if k < len(src) && isWordRune(src[k]) {
		// a non-ASCII letter glued to the name
		return "", "", 0, false
	}
	return prefix, string(src[j+1 : k]), k, true
}

func isDelimiter(src []rune, i int) bool {
	if i < 0 || i >= len(src) {
		return true
	}
	r := src[i]
	return unicode.IsSpace(r) || r == '(' || r == ')'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
