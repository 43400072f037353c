package queryir

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/roach88/vsptd/internal/ruleerr"
)

// MaxIdentifierLength bounds table and column names, in runes.
const MaxIdentifierLength = 128

var identifierRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// ValidateIdentifier reports whether name is safe to embed, quoted, in a
// query. Names come from metadata lookups and are treated as untrusted.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return ruleerr.New(ruleerr.InvalidIdentifier, "identifier is empty", name)
	case utf8.RuneCountInString(name) > MaxIdentifierLength:
		return ruleerr.New(ruleerr.InvalidIdentifier,
			fmt.Sprintf("identifier longer than %d characters", MaxIdentifierLength), name)
	case !identifierRe.MatchString(name):
		return ruleerr.New(ruleerr.InvalidIdentifier, "identifier contains characters outside letters, digits and underscore", name)
	}
	return nil
}

// Validate checks a query before compilation.
//
// Rules:
//  1. Every table and column name passes ValidateIdentifier
//  2. Select projects at least one column
//  3. Insert assigns at least one column, each column at most once
//  4. Delete and Count carry a filter (no unconditional mutation)
//
// Validate is a pure function with no side effects.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	if len(v.errs) == 0 {
		return nil
	}
	// The first error carries the taxonomy code; the rest are context.
	if len(v.errs) == 1 {
		return v.errs[0]
	}
	msgs := make([]string, 0, len(v.errs)-1)
	for _, e := range v.errs[1:] {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%w (also: %s)", v.errs[0], strings.Join(msgs, "; "))
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) add(err error) {
	if err != nil {
		v.errs = append(v.errs, err)
	}
}

func (v *validator) addf(code ruleerr.Code, subject, format string, args ...any) {
	v.errs = append(v.errs, ruleerr.New(code, fmt.Sprintf(format, args...), subject))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf(ruleerr.MalformedAction, "", "nil query")
	case Select:
		v.add(ValidateIdentifier(query.From))
		if len(query.Columns) == 0 {
			v.addf(ruleerr.MalformedAction, query.From, "select projects no columns")
		}
		for _, c := range query.Columns {
			v.add(ValidateIdentifier(c))
		}
		if query.OrderBy != nil {
			v.add(ValidateIdentifier(query.OrderBy.Column))
		}
		v.validatePredicate(query.Filter)
	case Count:
		v.add(ValidateIdentifier(query.From))
		v.requireFilter(query.Filter, query.From)
	case Insert:
		v.add(ValidateIdentifier(query.Into))
		if len(query.Assignments) == 0 {
			v.addf(ruleerr.MalformedAction, query.Into, "insert assigns no columns")
		}
		seen := make(map[string]bool, len(query.Assignments))
		for _, a := range query.Assignments {
			v.add(ValidateIdentifier(a.Column))
			if seen[a.Column] {
				v.addf(ruleerr.MalformedAction, a.Column, "column assigned more than once")
			}
			seen[a.Column] = true
			if a.Value == nil {
				v.addf(ruleerr.MalformedAction, a.Column, "column has no value")
			}
		}
	case Delete:
		v.add(ValidateIdentifier(query.From))
		v.requireFilter(query.Filter, query.From)
	default:
		v.addf(ruleerr.MalformedAction, "", "unknown query type: %T", q)
	}
}

func (v *validator) requireFilter(p Predicate, table string) {
	if p == nil {
		v.addf(ruleerr.MalformedAction, table, "query requires a filter")
		return
	}
	if and, ok := p.(And); ok && len(and.Predicates) == 0 {
		v.addf(ruleerr.MalformedAction, table, "query requires a non-empty filter")
		return
	}
	v.validatePredicate(p)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// no filter
	case Equals:
		v.add(ValidateIdentifier(pred.Column))
		if pred.Value == nil {
			v.addf(ruleerr.MalformedAction, pred.Column, "comparison has no value")
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Fragment:
		if strings.TrimSpace(pred.SQL) == "" {
			v.addf(ruleerr.MalformedAction, "", "empty predicate")
		}
		if n := strings.Count(pred.SQL, "?"); n < len(pred.Args) {
			v.addf(ruleerr.MalformedAction, pred.SQL, "predicate has %d placeholders for %d values", n, len(pred.Args))
		}
	default:
		v.addf(ruleerr.MalformedAction, "", "unknown predicate type: %T", p)
	}
}
