package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/triple"
)

// Evaluator evaluates condition text against triple pools.
// It is stateless and safe for concurrent use.
type Evaluator struct {
	grammar *rule.Grammar
}

// New returns an evaluator that reads connectives from g.
// A nil grammar means rule.Default.
func New(g *rule.Grammar) *Evaluator {
	if g == nil {
		g = rule.Default
	}
	return &Evaluator{grammar: g}
}

var defaultEvaluator = New(nil)

// Evaluate evaluates cond with the default connective table.
func Evaluate(cond string, primary, reference *triple.Pool) (bool, error) {
	return defaultEvaluator.Evaluate(cond, primary, reference)
}

// Compile parses cond without evaluating it.
func (e *Evaluator) Compile(cond string) (*Expr, error) {
	root, err := parse(triple.Normalize(cond), e.grammar)
	if err != nil {
		return nil, ruleerr.Wrap(ruleerr.MalformedCondition, "cannot parse condition", cond, err)
	}
	return &Expr{src: cond, root: root}, nil
}

// Evaluate reports whether cond holds.
//
// $P.N references read from primary; bare P.N references read from
// reference. A missing fact is an UnresolvedTriplet error, never false.
func (e *Evaluator) Evaluate(cond string, primary, reference *triple.Pool) (bool, error) {
	expr, err := e.Compile(cond)
	if err != nil {
		return false, err
	}
	return expr.Eval(primary, reference)
}

// Eval evaluates a compiled expression.
func (x *Expr) Eval(primary, reference *triple.Pool) (bool, error) {
	ev := &evalState{src: x.src, primary: primary, reference: reference}
	v, err := ev.eval(x.root)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

type evalState struct {
	src                string
	primary, reference *triple.Pool
}

func (s *evalState) fail(format string, args ...any) error {
	return ruleerr.Wrap(ruleerr.MalformedCondition, "cannot evaluate condition", s.src, fmt.Errorf(format, args...))
}

func (s *evalState) eval(n node) (triple.Value, error) {
	switch n := n.(type) {
	case literal:
		return n.val, nil

	case ref:
		pool, marker := s.reference, ""
		if n.bound {
			pool, marker = s.primary, string(triple.LiteralMarker)
		}
		v, ok := pool.Get(n.prefix, n.name)
		if !ok {
			return nil, ruleerr.New(ruleerr.UnresolvedTriplet, "condition references a missing fact", marker+n.prefix+"."+n.name)
		}
		return v, nil

	case unary:
		x, err := s.eval(n.x)
		if err != nil {
			return nil, err
		}
		if n.op == "NOT" {
			return boolValue(!truthy(x)), nil
		}
		num, ok := asNumber(x)
		if !ok {
			return nil, s.fail("cannot negate text %s", x.Literal())
		}
		return triple.Number(-num), nil

	case binary:
		return s.binary(n)
	}
	return nil, s.fail("unknown node %T", n)
}

func (s *evalState) binary(n binary) (triple.Value, error) {
	l, err := s.eval(n.l)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit; the right side may reference facts
	// that only exist when the left side allows it.
	switch n.op {
	case "AND":
		if !truthy(l) {
			return boolValue(false), nil
		}
		r, err := s.eval(n.r)
		if err != nil {
			return nil, err
		}
		return boolValue(truthy(r)), nil
	case "OR":
		if truthy(l) {
			return boolValue(true), nil
		}
		r, err := s.eval(n.r)
		if err != nil {
			return nil, err
		}
		return boolValue(truthy(r)), nil
	}

	r, err := s.eval(n.r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "=", "!=", "<", "<=", ">", ">=":
		c, err := s.compare(l, r, n.op)
		if err != nil {
			return nil, err
		}
		return boolValue(c), nil
	case "+":
		if ls, ok := l.(triple.String); ok {
			if rs, ok := r.(triple.String); ok {
				return ls + rs, nil
			}
		}
	}

	ln, lok := asNumber(l)
	rn, rok := asNumber(r)
	if !lok || !rok {
		return nil, s.fail("operator %s needs numbers, got %s and %s", n.op, l.Literal(), r.Literal())
	}
	switch n.op {
	case "+":
		return triple.Number(ln + rn), nil
	case "-":
		return triple.Number(ln - rn), nil
	case "*":
		return triple.Number(ln * rn), nil
	case "/":
		if rn == 0 {
			return nil, s.fail("division by zero")
		}
		return triple.Number(ln / rn), nil
	}
	return nil, s.fail("unknown operator %s", n.op)
}

// compare orders two values. Text compares to text lexically, numbers
// numerically. Mixed operands compare numerically when the text parses as a
// number; otherwise only equality is defined and the values are unequal.
func (s *evalState) compare(l, r triple.Value, op string) (bool, error) {
	var c int
	ls, lText := l.(triple.String)
	rs, rText := r.(triple.String)

	switch {
	case lText && rText:
		c = strings.Compare(string(ls), string(rs))
	default:
		ln, lok := asNumber(l)
		rn, rok := asNumber(r)
		if !lok || !rok {
			switch op {
			case "=":
				return false, nil
			case "!=":
				return true, nil
			}
			return false, s.fail("cannot order %s against %s", l.Literal(), r.Literal())
		}
		switch {
		case ln < rn:
			c = -1
		case ln > rn:
			c = 1
		}
	}

	switch op {
	case "=":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func asNumber(v triple.Value) (float64, bool) {
	switch v := v.(type) {
	case triple.Number:
		return float64(v), true
	case triple.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f, err == nil
	}
	return 0, false
}

func truthy(v triple.Value) bool {
	switch v := v.(type) {
	case triple.Number:
		return v != 0
	case triple.String:
		return v != ""
	}
	return false
}

func boolValue(b bool) triple.Value {
	if b {
		return triple.Number(1)
	}
	return triple.Number(0)
}
