// Package queryir provides the abstract query representation for rule
// actions.
//
// QueryIR sits between the query builder and the SQL backend:
//
//	[classified action + substituted predicate] → [Query IR] → [SQL Backend]
//
// Every action becomes one or two queries:
//
//	find    → Select
//	insert  → Count (existence probe) + Insert
//	delete  → Count (existence probe) + Delete
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, which keeps the type
// switches in querysql exhaustive.
//
// IDENTIFIERS:
//
// Table and column names come from metadata lookups and are untrusted.
// Validate rejects any name outside letters, digits and underscore before
// a query reaches the compiler. Values never appear in query text; they
// travel as triple.Value and are bound as parameters.
package queryir
