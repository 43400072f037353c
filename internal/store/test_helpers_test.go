package store

import (
	"context"
	"path/filepath"
	"testing"
)

const fixtureSQL = `
CREATE TABLE "VERT" ("NAME" TEXT, "D" INTEGER, "L" INTEGER);
INSERT INTO "VERT" VALUES ('Отвёртка', 13, 36);
INSERT INTO "VERT" VALUES ('Ключ', 20, 40);
`

// createTestFile creates a fixture store file and returns its path.
func createTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "base.sqlite")
	s, err := Create(context.Background(), path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer s.Close()
	if err := s.ExecScript(context.Background(), fixtureSQL); err != nil {
		t.Fatalf("ExecScript() failed: %v", err)
	}
	return path
}

// createTestStore opens a fixture store that is closed on cleanup.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), createTestFile(t), KindSQLite)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func asBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	}
	return nil
}
