// Package triple provides the triplet data model used by rule evaluation.
//
// A triplet is one (prefix, attribute, value) fact. Triplets sharing a
// prefix describe one object; repeated roles are told apart by a numeric
// suffix on the prefix (E, E1, E2, ...). Values are a sealed String |
// Number variant so that query rendering never depends on runtime type
// inspection.
//
// This package imports nothing internal except ruleerr, so every other
// package can depend on it.
package triple
