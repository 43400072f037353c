package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplain_InsertWithoutDataStore(t *testing.T) {
	dir := t.TempDir()
	_, meta := bases(t, dir)
	missing := filepath.Join(dir, "never-created.sqlite")

	out, _, err := execute(NewExplainCommand(&RootOptions{Format: "text"}),
		"ЕСЛИ $E.D=7 ТО ДОБАВИТЬ_В_БД(E);", "--triples", "$E.NM='Пила';$E.D=7;",
		"--agent", "VERT", "--db", missing, "--meta", meta)
	require.NoError(t, err)

	assert.Equal(t, "condition: $E.D=7 (true)\n"+
		"action:    insert VERT\n"+
		`probe:     SELECT COUNT(*) FROM "VERT" WHERE "NAME" = 'Пила' AND "D" = 7`+"\n"+
		`sql:       INSERT INTO "VERT" ("NAME", "D") VALUES ('Пила', 7)`+"\n", out)
}

func TestExplain_FalseConditionStillPlans(t *testing.T) {
	data, meta := bases(t, t.TempDir())

	out, _, err := execute(NewExplainCommand(&RootOptions{Format: "json"}),
		append([]string{`ЕСЛИ $L.D=1 ТО НАЙТИ_В_БД(E.D<$L.D\\E.L+\\);`, "--triples", "$L.D=35;"}, contextArgs(data, meta)...)...)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ExplainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ExplainResult{
		Condition: "$L.D=1",
		Matched:   false,
		Action:    "find",
		Table:     "VERT",
		SQL:       `SELECT "NAME" FROM "VERT" WHERE ("D"<35) ORDER BY "L" ASC, rowid ASC`,
	}, resp.Data)
}

func TestExplain_RuleFailure(t *testing.T) {
	data, meta := bases(t, t.TempDir())

	out, _, err := execute(NewExplainCommand(&RootOptions{Format: "text"}),
		append([]string{"ЕСЛИ 1 ТО ПРЫГНУТЬ(E);"}, contextArgs(data, meta)...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [MALFORMED_ACTION]")
}
