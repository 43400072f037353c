// Package engine evaluates rules of the form
//
//	ЕСЛИ <condition> ТО <action>;
//
// against an agent's data store.
//
// Evaluation Flow:
// 1. The envelope is split into condition and action text
// 2. The condition is evaluated over the primary and reference pools
// 3. A false condition ends the rule with OutcomeNoMatch; no store is touched
// 4. The action is classified as find, insert or delete
// 5. Parameters are substituted and the query is built (builder.go)
// 6. The statements run against the agent's data store
//
// Table and column names come from the metadata store through the catalog
// resolvers. Each Engine owns its caches; two engines never share them.
//
// CRITICAL PATTERNS:
//
// Values are always bound parameters and identifiers are always validated
// and quoted before any SQL reaches a store.
//
// Insert and delete probe for existence and mutate inside one
// transaction. "Already exists" and "not found" are outcomes, not errors.
//
// Errors abort the rule immediately and are never retried.
package engine
