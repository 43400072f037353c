package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "vsptd", cmd.Use)
	assert.Contains(t, cmd.Long, "ЕСЛИ")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"exec", "explain", "validate", "run", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "log-file", "metrics-file"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Empty(t, f.DefValue, name)
	}
}

func TestContextFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"exec", "explain"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		for _, flag := range []string{"agent", "db", "db-kind", "meta", "meta-kind", "triples", "reference"} {
			assert.NotNil(t, sub.Flags().Lookup(flag), "%s --%s", name, flag)
		}
		assert.Equal(t, "SQLite", sub.Flags().Lookup("db-kind").DefValue)
	}
}

func TestRootInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, _, err := execute(cmd, "validate", "--format", "xml", sampleRule)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootDispatch(t *testing.T) {
	cmd := NewRootCommand()
	out, _, err := execute(cmd, "validate", sampleRule)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ rule-1 (find)")
}

func TestRootUnknownFlag(t *testing.T) {
	_, _, err := execute(NewRootCommand(), "validate", "--nope", sampleRule)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
