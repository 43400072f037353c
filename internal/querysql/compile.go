package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/triple"
)

// Statement is compiled SQL with its bound values.
type Statement struct {
	SQL  string
	Args []triple.Value
}

// Params returns the driver parameters for Args.
func (s Statement) Params() []any {
	params := make([]any, len(s.Args))
	for i, a := range s.Args {
		params[i] = a.Param()
	}
	return params
}

// Inline renders the statement with every placeholder replaced by its
// value's literal form. The result is for display only.
func (s Statement) Inline() string {
	return Inline(s.SQL, s.Args)
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: All values are parameterized (never interpolated).
// CRITICAL: All identifiers are validated, then double-quoted.
// Select without an explicit order is ordered by rowid so that result
// prefixes E, E1, E2 follow insertion order.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a QueryIR query to a parameterized statement.
func (c *SQLCompiler) Compile(q queryir.Query) (Statement, error) {
	if q == nil {
		return Statement{}, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q); err != nil {
		return Statement{}, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case queryir.Count:
		return c.compileCount(query)
	case queryir.Insert:
		return c.compileInsert(query)
	case queryir.Delete:
		return c.compileDelete(query)
	default:
		return Statement{}, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a queryir.Select to SQL.
func (c *SQLCompiler) compileSelect(q queryir.Select) (Statement, error) {
	cols := make([]string, len(q.Columns))
	for i, col := range q.Columns {
		cols[i] = QuoteIdent(col)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), QuoteIdent(q.From))

	var args []triple.Value
	if q.Filter != nil {
		where, whereArgs, err := c.compilePredicate(q.Filter)
		if err != nil {
			return Statement{}, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE " + where)
		args = whereArgs
	}

	if key := c.orderKey(q); key != "" {
		sb.WriteString(" ORDER BY " + key)
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

// orderKey returns the ORDER BY terms for a select, or "" for none.
// The rowid tiebreaker keeps equal sort keys in insertion order.
func (c *SQLCompiler) orderKey(q queryir.Select) string {
	if q.OrderBy == nil {
		if q.WithoutRowID {
			return ""
		}
		return "rowid ASC"
	}
	dir := "ASC"
	if q.OrderBy.Descending {
		dir = "DESC"
	}
	key := QuoteIdent(q.OrderBy.Column) + " " + dir
	if !q.WithoutRowID {
		key += ", rowid ASC"
	}
	return key
}

func (c *SQLCompiler) compileCount(q queryir.Count) (Statement, error) {
	where, args, err := c.compilePredicate(q.Filter)
	if err != nil {
		return Statement{}, fmt.Errorf("compile filter: %w", err)
	}
	return Statement{
		SQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", QuoteIdent(q.From), where),
		Args: args,
	}, nil
}

func (c *SQLCompiler) compileInsert(q queryir.Insert) (Statement, error) {
	cols := make([]string, len(q.Assignments))
	marks := make([]string, len(q.Assignments))
	args := make([]triple.Value, len(q.Assignments))
	for i, a := range q.Assignments {
		cols[i] = QuoteIdent(a.Column)
		marks[i] = "?"
		args[i] = a.Value
	}
	return Statement{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			QuoteIdent(q.Into), strings.Join(cols, ", "), strings.Join(marks, ", ")),
		Args: args,
	}, nil
}

func (c *SQLCompiler) compileDelete(q queryir.Delete) (Statement, error) {
	where, args, err := c.compilePredicate(q.Filter)
	if err != nil {
		return Statement{}, fmt.Errorf("compile filter: %w", err)
	}
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s", QuoteIdent(q.From), where),
		Args: args,
	}, nil
}

// compilePredicate compiles a queryir.Predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []triple.Value, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return fmt.Sprintf("%s = ?", QuoteIdent(pred.Column)), []triple.Value{pred.Value}, nil
	case queryir.And:
		return c.compileAnd(pred)
	case queryir.Fragment:
		return "(" + strings.TrimSpace(pred.SQL) + ")", pred.Args, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileAnd compiles an And predicate to conjunction with AND.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []triple.Value, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	parts := make([]string, 0, len(and.Predicates))
	var args []triple.Value
	for _, pred := range and.Predicates {
		sql, predArgs, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, predArgs...)
	}
	return strings.Join(parts, " AND "), args, nil
}

// QuoteIdent double-quotes an identifier, doubling embedded quotes.
// Callers validate identifiers first; quoting alone is not a defense.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Inline replaces each ? placeholder outside quoted text with the literal
// form of the matching value. Unmatched placeholders are left as is.
func Inline(sql string, args []triple.Value) string {
	var sb strings.Builder
	var quote rune
	next := 0
	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			sb.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			sb.WriteRune(r)
		case r == '?' && next < len(args):
			sb.WriteString(args[next].Literal())
			next++
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
