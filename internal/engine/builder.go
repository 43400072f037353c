package engine

import (
	"context"
	"fmt"

	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/subst"
	"github.com/roach88/vsptd/internal/triple"
)

// Plan is a resolved action: the compiled statements a rule runs against
// the agent's table.
type Plan struct {
	Kind  rule.ActionKind
	Table string

	// Statement is the select, insert or delete.
	Statement querysql.Statement

	// Probe is the existence check run before an insert or delete.
	Probe *querysql.Statement

	// find is the select a find compiles from; it is recompiled without
	// rowid ordering for tables that have none.
	find *queryir.Select
}

// plan resolves the agent's table and columns and compiles the action.
// It reads only the metadata store.
func (e *Engine) plan(ctx context.Context, action rule.Action, ac *AgentContext) (*Plan, error) {
	table, err := e.tables.Table(ctx, ac.Agent(), ac.Metadata())
	if err != nil {
		return nil, err
	}
	binder := e.columns.Binder(ac.Agent(), ac.Metadata())

	switch a := action.(type) {
	case rule.Find:
		return e.planFind(ctx, a, table, binder, ac)
	case rule.Insert:
		return e.planInsert(ctx, a, table, binder, ac)
	case rule.Delete:
		return e.planDelete(ctx, a, table, binder, ac)
	default:
		return nil, fmt.Errorf("unsupported action type: %T", action)
	}
}

// planFind builds
//
//	SELECT "<E.NM column>" FROM "<table>" WHERE (<predicate>) ORDER BY ...
func (e *Engine) planFind(ctx context.Context, a rule.Find, table string, b subst.Binder, ac *AgentContext) (*Plan, error) {
	filter, err := e.subst.Predicate(ctx, a.Predicate, ac.Primary(), b)
	if err != nil {
		return nil, err
	}

	col, err := b.Column(ctx, e.resultPrefix, e.resultName)
	if err != nil {
		return nil, wrapColumnErr(e.resultPrefix, e.resultName, err)
	}

	q := queryir.Select{From: table, Columns: []string{col}, Filter: filter}
	if a.Order != nil {
		orderCol, err := e.subst.Reference(ctx, a.Order.Reference, b)
		if err != nil {
			return nil, err
		}
		q.OrderBy = &queryir.Order{Column: orderCol, Descending: a.Order.Direction == rule.Descending}
	}

	st, err := e.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	return &Plan{Kind: rule.ActionFind, Table: table, Statement: st, find: &q}, nil
}

func (e *Engine) planInsert(ctx context.Context, a rule.Insert, table string, b subst.Binder, ac *AgentContext) (*Plan, error) {
	assignments, err := gather(ctx, a.Prefix, ac.Primary(), b)
	if err != nil {
		return nil, err
	}
	probe, err := e.compiler.Compile(queryir.Count{From: table, Filter: queryir.Conjunction(assignments)})
	if err != nil {
		return nil, err
	}
	st, err := e.compiler.Compile(queryir.Insert{Into: table, Assignments: assignments})
	if err != nil {
		return nil, err
	}
	return &Plan{Kind: rule.ActionInsert, Table: table, Statement: st, Probe: &probe}, nil
}

func (e *Engine) planDelete(ctx context.Context, a rule.Delete, table string, b subst.Binder, ac *AgentContext) (*Plan, error) {
	assignments, err := gather(ctx, a.Prefix, ac.Primary(), b)
	if err != nil {
		return nil, err
	}
	filter := queryir.Conjunction(assignments)
	probe, err := e.compiler.Compile(queryir.Count{From: table, Filter: filter})
	if err != nil {
		return nil, err
	}
	st, err := e.compiler.Compile(queryir.Delete{From: table, Filter: filter})
	if err != nil {
		return nil, err
	}
	return &Plan{Kind: rule.ActionDelete, Table: table, Statement: st, Probe: &probe}, nil
}

// gather maps every triplet of the prefix group to a column assignment, in
// pool order.
func gather(ctx context.Context, prefix string, pool *triple.Pool, b subst.Binder) ([]queryir.Assignment, error) {
	group := pool.Group(prefix)
	if len(group) == 0 {
		return nil, ruleerr.New(ruleerr.UnresolvedTriplet, "no triplets with this prefix in the primary pool", prefix)
	}

	owner := make(map[string]string, len(group))
	assignments := make([]queryir.Assignment, 0, len(group))
	for _, t := range group {
		col, err := b.Column(ctx, t.Prefix, t.Name)
		if err != nil {
			return nil, wrapColumnErr(t.Prefix, t.Name, err)
		}
		if prev, dup := owner[col]; dup {
			return nil, ruleerr.New(ruleerr.MalformedAction,
				fmt.Sprintf("%s and %s map to the same column %s", prev, t.Ref(), col), t.Ref())
		}
		owner[col] = t.Ref()
		assignments = append(assignments, queryir.Assignment{Column: col, Value: t.Value})
	}
	return assignments, nil
}

func wrapColumnErr(prefix, name string, err error) error {
	if ruleerr.CodeOf(err) != "" {
		return err
	}
	return fmt.Errorf("resolve column %s.%s: %w", prefix, name, err)
}

// resultPool maps projected rows to E.NM, E1.NM, ... in row order.
func (e *Engine) resultPool(rows [][]any) *triple.Pool {
	triplets := make([]triple.Triplet, 0, len(rows))
	for i, row := range rows {
		var cell any
		if len(row) > 0 {
			cell = row[0]
		}
		triplets = append(triplets, triple.Triplet{
			Prefix: triple.SequencePrefix(e.resultPrefix, i),
			Name:   e.resultName,
			Value:  triple.FromDriver(cell),
		})
	}
	return triple.NewPool(triplets...)
}
