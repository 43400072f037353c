// Package catalog resolves the names a rule needs before any query runs:
// which table an agent owns, which column an attribute maps to, and which
// live connection serves a store.
//
// Each resolver sits in front of a memo.Cache owned by the engine that
// created it. Two engines never share entries.
package catalog
