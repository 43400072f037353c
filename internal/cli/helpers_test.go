package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/testutil"
)

const sampleRule = "ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D И E.L>$L.L);"

// bases creates base.sqlite and metabase.sqlite under dir/bases.
func bases(t *testing.T, dir string) (data, meta string) {
	t.Helper()
	f := testutil.NewFixture(t, filepath.Join(dir, "bases"))
	return f.Data.Path, f.Meta.Path
}

func countRows(t *testing.T, path, where string, args ...any) int64 {
	t.Helper()
	return testutil.CountRows(t, store.Locator{Path: path, Kind: store.KindSQLite}, "VERT", where, args...)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func contextArgs(data, meta string) []string {
	return []string{"--agent", "VERT", "--db", data, "--meta", meta}
}
