package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/triple"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		status := event.Outcome
		if event.Error != "" {
			status = event.Error
		}
		fmt.Fprintf(&buf, "  [%d] %s -> %s\n", i+1, event.Rule, status)
	}

	return buf.String()
}

// AssertionContext provides the state assertions run against.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = assertRowCount(result.Trace, a, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertRowCount counts rows of the table whose columns equal every
// entry of Where.
func assertRowCount(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("row_count requires a store")
	}

	stmt, err := countStatement(a)
	if err != nil {
		return err
	}

	rows, err := actx.Store.QueryRows(actx.Ctx, stmt.SQL, stmt.Params()...)
	if err != nil {
		return fmt.Errorf("row_count query failed: %w", err)
	}
	if len(rows) != 1 || len(rows[0]) != 1 {
		return fmt.Errorf("row_count query returned %d rows", len(rows))
	}
	got, ok := rows[0][0].(int64)
	if !ok {
		return fmt.Errorf("row_count query returned %T", rows[0][0])
	}

	if got != int64(a.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s matching %v", a.Count, a.Table, a.Where),
			Actual:   fmt.Sprintf("%d rows", got),
			Trace:    trace,
		}
	}
	return nil
}

// countStatement builds the COUNT query through the same compiler the
// engine uses, so identifiers are validated and values are bound.
func countStatement(a Assertion) (querysql.Statement, error) {
	keys := make([]string, 0, len(a.Where))
	for k := range a.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]queryir.Predicate, 0, len(keys))
	for _, k := range keys {
		v, err := toValue(a.Where[k])
		if err != nil {
			return querysql.Statement{}, fmt.Errorf("where.%s: %w", k, err)
		}
		preds = append(preds, queryir.Equals{Column: k, Value: v})
	}

	var filter queryir.Predicate = queryir.Fragment{SQL: "1 = 1"}
	if len(preds) > 0 {
		filter = queryir.And{Predicates: preds}
	}
	return querysql.NewSQLCompiler().Compile(queryir.Count{From: a.Table, Filter: filter})
}

// toValue converts a YAML scalar to a triplet value.
func toValue(v any) (triple.Value, error) {
	switch x := v.(type) {
	case string:
		return triple.String(x), nil
	case int:
		return triple.Number(x), nil
	case int64:
		return triple.Number(x), nil
	case float64:
		return triple.Number(x), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
