package queryir

import "github.com/roach88/vsptd/internal/triple"

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: projection of named columns with filtering and ordering
//   - Count: existence probe, COUNT(*) under a filter
//   - Insert: one row built from ordered assignments
//   - Delete: predicate-based removal
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: column = value
//   - And: all predicates must be true
//   - Fragment: an already-substituted rule predicate
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select represents a projection over an agent table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order>
//
// Example:
//
//	Select{
//	  From:    "VERT",
//	  Columns: []string{"NAME"},
//	  Filter:  Fragment{SQL: `"D" < ? AND "L" > ?`, Args: ...},
//	  OrderBy: &Order{Column: "D", Descending: true},
//	}
//
// Translates to SQL:
//
//	SELECT "NAME" FROM "VERT" WHERE "D" < ? AND "L" > ? ORDER BY "D" DESC
//
// Without OrderBy rows come back in insertion (rowid) order, and rowid
// breaks ties of OrderBy. A table declared WITHOUT ROWID has no rowid:
// there rows come back in the store's own order.
type Select struct {
	From    string    // Table name
	Columns []string  // Projected columns, in result order
	Filter  Predicate // WHERE conditions (nil = no filter)
	OrderBy *Order    // nil = rowid order

	WithoutRowID bool // From has no rowid; never order by it
}

func (Select) queryNode() {}

// Order is an ORDER BY term.
type Order struct {
	Column     string
	Descending bool
}

// Count represents an existence probe.
//
// Semantics:
//
//	SELECT COUNT(*) FROM <from> WHERE <filter>
type Count struct {
	From   string
	Filter Predicate
}

func (Count) queryNode() {}

// Insert represents a single-row insert.
//
// Semantics:
//
//	INSERT INTO <into> (<columns>) VALUES (<values>)
//
// Assignments keep their order; it is the order of the triplets in the
// fact pool.
type Insert struct {
	Into        string
	Assignments []Assignment
}

func (Insert) queryNode() {}

// Assignment is one column/value pair.
type Assignment struct {
	Column string
	Value  triple.Value
}

// Delete represents predicate-based removal. Every matching row is removed.
//
// Semantics:
//
//	DELETE FROM <from> WHERE <filter>
type Delete struct {
	From   string
	Filter Predicate
}

func (Delete) queryNode() {}

// Equals represents a column-equals-value predicate.
//
// Semantics:
//
//	<column> = ?
//
// The value is always bound as a parameter, never interpolated.
type Equals struct {
	Column string
	Value  triple.Value
}

func (Equals) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
//
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Fragment is a predicate produced by substitution.
//
// SQL holds quoted identifiers and one ? placeholder per entry of Args.
// It is embedded in parentheses so that connectives inside it cannot bind
// to surrounding terms.
type Fragment struct {
	SQL  string
	Args []triple.Value
}

func (Fragment) predicateNode() {}

// Conjunction builds an And of Equals from ordered assignments.
// Insert and Delete use it for their existence probe, so the probe and
// the mutation always share one column set.
func Conjunction(assignments []Assignment) And {
	preds := make([]Predicate, 0, len(assignments))
	for _, a := range assignments {
		preds = append(preds, Equals{Column: a.Column, Value: a.Value})
	}
	return And{Predicates: preds}
}
