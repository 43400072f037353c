// Package subst turns the parameters of a classified action into query
// fragments.
//
// A find predicate such as
//
//	E.D<$L.D И E.L>$L.L
//
// becomes
//
//	"D"<? AND "L">?      args: [35 10]
//
// Bound references read the primary fact pool and travel as bound
// parameters. Unbound references go through a Binder to a column name,
// which is validated as an identifier and double-quoted.
package subst
