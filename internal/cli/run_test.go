package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/engine"
)

const ruleSetCUE = `
context: {
	agent: "VERT"
	store: {locator: "bases/base.sqlite", kind: "SQLite"}
	metadata: {locator: "bases/metabase.sqlite", kind: 1}
	triples: "$L.D=35;$L.L=10;"
}

rules: [
	{
		name:    "add-saw"
		rule:    "ЕСЛИ 1 ТО ДОБАВИТЬ_В_БД(E);"
		triples: "$E.NM='Пила';$E.D=7;$E.L=50;"
	},
	"ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<10);",
]
`

func TestRun_RuleSet(t *testing.T) {
	dir := t.TempDir()
	data, _ := bases(t, dir)
	path := writeFile(t, filepath.Join(dir, "vert.cue"), ruleSetCUE)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	assert.Equal(t, "✓ add-saw: inserted\n"+
		"✓ rule-2: found\n"+
		"  $E.NM='Молоток';$E1.NM='Пила';\n"+
		"✓ 2 rule(s) evaluated\n", out)
	assert.Equal(t, int64(1), countRows(t, data, `"NAME" = ?`, "Пила"))
}

func TestRun_JSON(t *testing.T) {
	dir := t.TempDir()
	bases(t, dir)
	path := writeFile(t, filepath.Join(dir, "vert.cue"), ruleSetCUE)

	opts := &RunOptions{
		RootOptions:   &RootOptions{Format: "json"},
		EngineOptions: []engine.Option{engine.WithIDGenerator(engine.NewFixedGenerator("a", "b"))},
	}
	out, _, err := execute(newRunCommand(opts), path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "VERT", resp.Data.Agent)
	require.Len(t, resp.Data.Steps, 2)
	assert.Equal(t, "add-saw", resp.Data.Steps[0].Rule)
	assert.Equal(t, "a", resp.Data.Steps[0].ID)
	assert.Equal(t, "inserted", resp.Data.Steps[0].Outcome)
	assert.Equal(t, int64(2), resp.Data.Steps[1].Seq)
}

func TestRun_StopsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	data, _ := bases(t, dir)
	path := writeFile(t, filepath.Join(dir, "vert.cue"), `
context: {
	agent: "VERT"
	store: locator: "bases/base.sqlite"
	metadata: locator: "bases/metabase.sqlite"
	triples: "$E.NM='Ключ';$E.D=20;$E.L=40;"
}
rules: [
	"ЕСЛИ 1 ТО УДАЛИТЬ_В_БД(E);",
	"ЕСЛИ 1 ТО НАЙТИ_В_БД(E.XX=1);",
	"ЕСЛИ 1 ТО УДАЛИТЬ_В_БД(E);",
]
`)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✓ rule-1: deleted")
	assert.Contains(t, out, "✗ stopped after 1 of 3 rule(s)")
	assert.Contains(t, out, "Error [UNRESOLVED_COLUMN]")
	assert.NotContains(t, out, "rule-3")
	assert.Equal(t, int64(0), countRows(t, data, `"NAME" = ?`, "Ключ"))
}

func TestRun_MissingRuleSet(t *testing.T) {
	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [RULESET]")
}
