package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AllValid(t *testing.T) {
	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}),
		sampleRule,
		"ЕСЛИ 1 ТО ДОБАВИТЬ_В_БД(E);",
		`ЕСЛИ $L.D>1 или $L.L<2 ТО НАЙТИ_В_БД(E.D>0\\E.D-\\);`,
	)
	require.NoError(t, err)

	assert.Equal(t, "✓ rule-1 (find)\n"+
		"✓ rule-2 (insert)\n"+
		"✓ rule-3 (find)\n"+
		"✓ All rules valid\n", out)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		rule string
		code string
	}{
		{"envelope", "ЕСЛИ 1 НАЙТИ_В_БД(E.D>0);", "MALFORMED_RULE"},
		{"condition", "ЕСЛИ ($L.D ТО НАЙТИ_В_БД(E.D>0);", "MALFORMED_CONDITION"},
		{"action", "ЕСЛИ 1 ТО СТЕРЕТЬ(E);", "MALFORMED_ACTION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), sampleRule, tt.rule)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp struct {
				Status string           `json:"status"`
				Data   ValidationResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.False(t, resp.Data.Valid)
			require.Len(t, resp.Data.Rules, 2)
			assert.True(t, resp.Data.Rules[0].Valid)
			require.NotNil(t, resp.Data.Rules[1].Error)
			assert.Equal(t, tt.code, resp.Data.Rules[1].Error.Code)
		})
	}
}

func TestValidate_RuleSet(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "rules.cue"), `
context: {agent: "VERT", store: locator: "b.sqlite", metadata: locator: "m.sqlite"}
rules: [
	"ЕСЛИ 1 ТО УДАЛИТЬ_В_БД(E);",
	{name: "broken", rule: "ЕСЛИ 1 ТО"},
]
`)
	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), "--ruleset", path)
	require.Error(t, err)
	assert.Contains(t, out, "✓ rule-1 (delete)")
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "1 of 2 rule(s) invalid")
}

func TestValidate_BadRuleSetFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "rules.cue"), `context: {}`+"\n")
	out, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), "--ruleset", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [RULESET]")
}

func TestValidate_NoRules(t *testing.T) {
	_, _, err := execute(NewValidateCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
