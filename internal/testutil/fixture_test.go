package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/store"
)

func TestNewFixture(t *testing.T) {
	dir := t.TempDir()
	f := NewFixture(t, dir)

	assert.Equal(t, filepath.Join(dir, "base.sqlite"), f.Data.Path)
	assert.Equal(t, filepath.Join(dir, "metabase.sqlite"), f.Meta.Path)
	assert.Equal(t, store.KindSQLite, f.Data.Kind)

	assert.Equal(t, int64(3), CountRows(t, f.Data, "VERT", "1 = 1"))
	assert.Equal(t, int64(1), CountRows(t, f.Data, "VERT", `"D" > ?`, 15))
	assert.Equal(t, int64(2), CountRows(t, f.Meta, "ONTOLOGY", `"CLN" = ?`, "D"))
}

func TestNewFixture_TempDir(t *testing.T) {
	f := NewFixture(t, "")
	require.FileExists(t, f.Data.Path)
	require.FileExists(t, f.Meta.Path)
}

func TestCreateSQLite_CustomScript(t *testing.T) {
	loc := CreateSQLite(t, filepath.Join(t.TempDir(), "x.sqlite"), `CREATE TABLE "T" ("A" TEXT); INSERT INTO "T" VALUES ('a');`)
	assert.Equal(t, int64(1), CountRows(t, loc, "T", `"A" = ?`, "a"))
}
