package ruleset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/store"
)

func TestLoad(t *testing.T) {
	rs, err := Load(filepath.Join("testdata", "vert.cue"))
	require.NoError(t, err)

	assert.Equal(t, "VERT", rs.Spec.Agent)
	assert.Equal(t, store.Locator{Path: filepath.Join("testdata", "bases", "base.sqlite"), Kind: store.KindSQLite}, rs.Spec.Store)
	assert.Equal(t, store.Locator{Path: "/srv/vsptd/metabase.sqlite", Kind: store.KindSQLite}, rs.Spec.Metadata)
	assert.Equal(t, "$L.D=35;$L.L=10;", rs.Spec.Triples)
	assert.Empty(t, rs.Spec.Reference)

	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "rule-1", rs.Rules[0].Name)
	assert.Equal(t, "ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D И E.L>$L.L);", rs.Rules[0].Text)
	assert.Nil(t, rs.Rules[0].Triples)

	assert.Equal(t, "add-saw", rs.Rules[1].Name)
	require.NotNil(t, rs.Rules[1].Triples)
	assert.Equal(t, "$E.NM='Пила';$E.D=7;$E.L=50;", *rs.Rules[1].Triples)
}

func TestParse_KindDefaultsToSQLite(t *testing.T) {
	rs, err := Parse("/x/set.cue", []byte(`
context: {
	agent: "A"
	store: locator: "a.sqlite"
	metadata: locator: "m.sqlite"
}
rules: ["ЕСЛИ 1 ТО УДАЛИТЬ_В_БД(E);"]
`))
	require.NoError(t, err)
	assert.Equal(t, store.Locator{Path: "/x/a.sqlite", Kind: store.KindSQLite}, rs.Spec.Store)
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"no rules": `
context: {agent: "A", store: locator: "a", metadata: locator: "m"}
rules: []`,
		"missing agent": `
context: {store: locator: "a", metadata: locator: "m"}
rules: ["r"]`,
		"empty agent": `
context: {agent: "", store: locator: "a", metadata: locator: "m"}
rules: ["r"]`,
		"unknown field": `
context: {agent: "A", store: locator: "a", metadata: locator: "m", extra: 1}
rules: ["r"]`,
		"empty rule": `
context: {agent: "A", store: locator: "a", metadata: locator: "m"}
rules: [""]`,
		"bad kind": `
context: {agent: "A", store: {locator: "a", kind: "Oracle"}, metadata: locator: "m"}
rules: ["r"]`,
		"syntax": `context: {`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("set.cue", []byte(src))
			require.Error(t, err)
			var le *LoadError
			assert.True(t, errors.As(err, &le), "%T: %v", err, err)
		})
	}
}

func TestParse_DeclaredKindsLoadButFailAtContext(t *testing.T) {
	rs, err := Parse("set.cue", []byte(`
context: {agent: "A", store: {locator: "a", kind: "MongoDB"}, metadata: locator: "m"}
rules: ["ЕСЛИ 1 ТО УДАЛИТЬ_В_БД(E);"]
`))
	require.NoError(t, err)
	assert.Equal(t, store.KindMongoDB, rs.Spec.Store.Kind)

	e, err := engine.New()
	require.NoError(t, err)
	defer e.Close()

	_, err = rs.Run(context.Background(), e)
	assert.True(t, ruleerr.Is(err, ruleerr.UnsupportedStoreKind))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	mustStore(t, filepath.Join(dir, "base.sqlite"), `
CREATE TABLE "VERT" ("NAME" TEXT, "D" INTEGER, "L" INTEGER);
INSERT INTO "VERT" VALUES ('Отвёртка', 13, 36);
`)
	mustStore(t, filepath.Join(dir, "metabase.sqlite"), `
CREATE TABLE "AGENTS" ("NAME" TEXT, "DB" TEXT);
INSERT INTO "AGENTS" VALUES ('VERT', 'VERT');
CREATE TABLE "ONTOLOGY" ("PREFIX" TEXT, "NAME" TEXT, "AGENT" TEXT, "CLN" TEXT);
INSERT INTO "ONTOLOGY" VALUES ('E', 'NM', 'VERT', 'NAME');
INSERT INTO "ONTOLOGY" VALUES ('E', 'D', 'VERT', 'D');
INSERT INTO "ONTOLOGY" VALUES ('E', 'L', 'VERT', 'L');
`)
	path := filepath.Join(dir, "set.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
context: {
	agent: "VERT"
	store: locator: "base.sqlite"
	metadata: locator: "metabase.sqlite"
	triples: "$L.D=35;$L.L=10;"
}
rules: [
	{name: "add", rule: "ЕСЛИ 1 ТО ДОБАВИТЬ_В_БД(E);", triples: "$E.NM='Пила';$E.D=7;$E.L=50;"},
	"ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D И E.L>$L.L);",
	"ЕСЛИ 1 ТО УДАЛИТЬ_В_БД(T);",
	"ЕСЛИ 1 ТО НАЙТИ_В_БД(E.D>0);",
]
`), 0o644))

	rs, err := Load(path)
	require.NoError(t, err)

	e, err := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer e.Close()

	steps, err := rs.Run(context.Background(), e)
	require.Error(t, err, "third rule has no T triplets")
	assert.True(t, ruleerr.Is(err, ruleerr.UnresolvedTriplet))
	assert.Contains(t, err.Error(), "rule-3")

	require.Len(t, steps, 2, "stops at the first error")
	assert.Equal(t, engine.OutcomeInserted, steps[0].Result.Outcome)
	assert.Equal(t, engine.OutcomeFound, steps[1].Result.Outcome)
	assert.Equal(t, 2, steps[1].Result.Found.Len())
}

func mustStore(t *testing.T, path, script string) {
	t.Helper()
	s, err := store.Create(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ExecScript(context.Background(), script))
}
