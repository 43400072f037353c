// Package harness runs rule scenarios against fresh SQLite stores and
// compares their traces with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: insert_then_find
//	description: "Insert is idempotent and visible to find"
//	metadata_setup: |
//	  CREATE TABLE "AGENTS" ("NAME" TEXT, "DB" TEXT);
//	  ...
//	store_setup: |
//	  CREATE TABLE "VERT" ("NAME" TEXT, "D" INTEGER, "L" INTEGER);
//	context:
//	  agent: VERT
//	  triples: "$L.D=35;$L.L=10;"
//	steps:
//	  - rule: "ЕСЛИ 1 ТО ДОБАВИТЬ_В_БД(E);"
//	    triples: "$E.NM='Пила';$E.D=7;$E.L=50;"
//	    expect: {outcome: inserted}
//	  - rule: "ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D);"
//	    expect: {outcome: found, triples: "$E.NM='Пила';"}
//	assertions:
//	  - type: row_count
//	    table: VERT
//	    where: {NAME: "Пила"}
//	    count: 1
//
// A step's triples replace the context's primary pool for that step only.
// An expect clause names an outcome or an error code, never both.
//
// # Deterministic Testing
//
// Each scenario runs on its own engine with fresh caches and fresh store
// files, so sequence numbers and traces are identical across runs.
package harness
