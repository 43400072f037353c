package engine

import (
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/triple"
)

// Outcome is how an evaluated rule ended.
type Outcome string

const (
	// OutcomeNoMatch: the condition was false. No store was touched.
	OutcomeNoMatch Outcome = "no_match"

	// OutcomeFound: a find ran. Result.Found holds the rows, possibly none.
	OutcomeFound Outcome = "found"

	// OutcomeInserted: the row did not exist and was added.
	OutcomeInserted Outcome = "inserted"

	// OutcomeAlreadyExists: an identical row exists. Nothing was written.
	OutcomeAlreadyExists Outcome = "already_exists"

	// OutcomeDeleted: matching rows existed and were removed.
	OutcomeDeleted Outcome = "deleted"

	// OutcomeNotFound: no row matched the delete. Nothing was written.
	OutcomeNotFound Outcome = "not_found"
)

// Applied reports whether the action ran to completion: a find, an insert
// of a new row, or a delete of existing rows.
func (o Outcome) Applied() bool {
	switch o {
	case OutcomeFound, OutcomeInserted, OutcomeDeleted:
		return true
	}
	return false
}

// Result is the outcome of one rule evaluation.
type Result struct {
	// ID correlates log lines of one evaluation.
	ID string

	// Seq orders evaluations within one engine.
	Seq int64

	Outcome Outcome

	// Action is zero when the condition did not match.
	Action rule.ActionKind

	// Found holds the find results as E.NM, E1.NM, ... in row order.
	// Nil unless Outcome is OutcomeFound.
	Found *triple.Pool

	// Statement is the last statement run against the data store. For
	// OutcomeAlreadyExists and OutcomeNotFound that is the existence probe.
	Statement querysql.Statement
}

// Applied mirrors Outcome.Applied.
func (r Result) Applied() bool {
	return r.Outcome.Applied()
}

// actionLabel is the metrics label of r's action.
func (r Result) actionLabel() string {
	if r.Action == 0 {
		return ""
	}
	return r.Action.String()
}
