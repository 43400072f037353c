package engine

import (
	"context"
	"fmt"

	"github.com/roach88/vsptd/internal/logging"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/store"
)

// execute runs plan against the agent's data store. Every call through the
// leased handle is bounded by the store timeout.
func (e *Engine) execute(ctx context.Context, plan *Plan, ac *AgentContext, res Result) (Result, error) {
	h, err := e.conns.Get(ctx, ac.Store())
	if err != nil {
		return res, err
	}
	defer h.Close()

	switch plan.Kind {
	case rule.ActionFind:
		st, err := e.findStatement(ctx, plan, ac)
		if err != nil {
			return res, err
		}
		e.trace(ctx, st)
		rows, err := h.QueryRows(ctx, st.SQL, st.Params()...)
		if err != nil {
			return res, fmt.Errorf("find in %s: %w", plan.Table, err)
		}
		res.Outcome = OutcomeFound
		res.Found = e.resultPool(rows)
		res.Statement = st
		return res, nil

	case rule.ActionInsert, rule.ActionDelete:
		err := h.InTx(ctx, func(conn store.Conn) error {
			e.trace(ctx, *plan.Probe)
			n, err := count(ctx, conn, *plan.Probe)
			if err != nil {
				return fmt.Errorf("probe %s: %w", plan.Table, err)
			}
			res.Statement = *plan.Probe

			if plan.Kind == rule.ActionInsert && n > 0 {
				res.Outcome = OutcomeAlreadyExists
				return nil
			}
			if plan.Kind == rule.ActionDelete && n == 0 {
				res.Outcome = OutcomeNotFound
				return nil
			}

			e.trace(ctx, plan.Statement)
			if _, err := conn.Exec(ctx, plan.Statement.SQL, plan.Statement.Params()...); err != nil {
				return fmt.Errorf("%s %s: %w", plan.Kind, plan.Table, err)
			}
			res.Statement = plan.Statement
			res.Outcome = OutcomeInserted
			if plan.Kind == rule.ActionDelete {
				res.Outcome = OutcomeDeleted
			}
			return nil
		})
		if err != nil {
			res.Outcome = ""
			return res, err
		}
		return res, nil
	}
	return res, fmt.Errorf("unsupported action kind: %s", plan.Kind)
}

// findStatement returns the plan's select, recompiled without rowid
// ordering when the agent's table is WITHOUT ROWID.
func (e *Engine) findStatement(ctx context.Context, plan *Plan, ac *AgentContext) (querysql.Statement, error) {
	if plan.find == nil {
		return plan.Statement, nil
	}
	ok, err := e.rowids.HasRowID(ctx, plan.Table, ac.Store())
	if err != nil {
		return querysql.Statement{}, err
	}
	if ok {
		return plan.Statement, nil
	}
	q := *plan.find
	q.WithoutRowID = true
	return e.compiler.Compile(q)
}

func count(ctx context.Context, conn store.Conn, st querysql.Statement) (int64, error) {
	rows, err := conn.QueryRows(ctx, st.SQL, st.Params()...)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 || len(rows[0]) != 1 {
		return 0, fmt.Errorf("count returned %d rows", len(rows))
	}
	n, ok := rows[0][0].(int64)
	if !ok {
		return 0, fmt.Errorf("count returned %T", rows[0][0])
	}
	return n, nil
}

// trace logs a statement with its values inlined.
func (e *Engine) trace(ctx context.Context, st querysql.Statement) {
	if e.logger.Enabled(ctx, logging.LevelTrace) {
		e.logger.Log(ctx, logging.LevelTrace, "store call", "sql", st.Inline())
	}
}
