// Package testutil builds SQLite fixtures for engine, CLI and harness tests.
//
// The fixture models the VERT agent: a metadata store mapping the E prefix
// onto the VERT table, and a data store holding three tools.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/store"
)

// MetadataSQL seeds a metadata store in the default AGENTS/ONTOLOGY layout.
// E.DIAM is an alias of E.D.
const MetadataSQL = `
CREATE TABLE "AGENTS" ("NAME" TEXT, "DB" TEXT);
INSERT INTO "AGENTS" VALUES ('VERT', 'VERT');
CREATE TABLE "ONTOLOGY" ("PREFIX" TEXT, "NAME" TEXT, "AGENT" TEXT, "CLN" TEXT);
INSERT INTO "ONTOLOGY" VALUES ('E', 'NM', 'VERT', 'NAME');
INSERT INTO "ONTOLOGY" VALUES ('E', 'D', 'VERT', 'D');
INSERT INTO "ONTOLOGY" VALUES ('E', 'L', 'VERT', 'L');
INSERT INTO "ONTOLOGY" VALUES ('E', 'DIAM', 'VERT', 'D');
`

// DataSQL seeds the VERT table.
const DataSQL = `
CREATE TABLE "VERT" ("NAME" TEXT, "D" INTEGER, "L" INTEGER);
INSERT INTO "VERT" VALUES ('Отвёртка', 13, 36);
INSERT INTO "VERT" VALUES ('Ключ', 20, 40);
INSERT INTO "VERT" VALUES ('Молоток', 5, 60);
`

// Fixture is a pair of SQLite stores for the VERT agent.
type Fixture struct {
	Data store.Locator
	Meta store.Locator
}

// NewFixture creates base.sqlite and metabase.sqlite under dir.
// An empty dir means a fresh t.TempDir().
func NewFixture(t testing.TB, dir string) Fixture {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return Fixture{
		Data: CreateSQLite(t, filepath.Join(dir, "base.sqlite"), DataSQL),
		Meta: CreateSQLite(t, filepath.Join(dir, "metabase.sqlite"), MetadataSQL),
	}
}

// CreateSQLite creates a SQLite store at path and runs script against it.
func CreateSQLite(t testing.TB, path, script string) store.Locator {
	t.Helper()
	s, err := store.Create(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ExecScript(context.Background(), script))
	return store.Locator{Path: path, Kind: store.KindSQLite}
}

// CountRows counts rows of table matching where, outside any engine.
func CountRows(t testing.TB, loc store.Locator, table, where string, args ...any) int64 {
	t.Helper()
	s, err := store.Open(context.Background(), loc.Path, loc.Kind)
	require.NoError(t, err)
	defer s.Close()
	q := "SELECT COUNT(*) FROM " + querysql.QuoteIdent(table) + " WHERE " + where
	rows, err := s.QueryRows(context.Background(), q, args...)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0][0].(int64)
}
