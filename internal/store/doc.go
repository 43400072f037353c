// Package store provides connections to the relational stores a rule
// reads and writes: the metadata store (agent tables, ontology vocabulary)
// and the agent data store.
//
// Only SQLite is functional. MS SQL Server and MongoDB are declared kinds
// so that existing configurations parse, but opening them fails with
// UNSUPPORTED_STORE_KIND.
//
// # Database Configuration
//
//   - mode=rw: Open never creates a missing store file
//   - _txlock=immediate: transactions take the write lock on BEGIN
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection per store: SQLite has a single writer
package store
