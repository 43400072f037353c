package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/vsptd/internal/ruleerr"
)

// Kind identifies a store backend. The numbering is shared with existing
// agent configurations, which refer to kinds by name or by number.
type Kind int

const (
	KindSQLite      Kind = 1
	KindMSSQLServer Kind = 2
	KindMongoDB     Kind = 3
)

var kindNames = map[Kind]string{
	KindSQLite:      "SQLite",
	KindMSSQLServer: "MS SQL Server",
	KindMongoDB:     "MongoDB",
}

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Known reports whether k is a declared kind.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// Functional reports whether k can be opened. Only SQLite is implemented;
// the other declared kinds are rejected.
func (k Kind) Functional() bool {
	return k == KindSQLite
}

// ParseKind accepts a kind name (case-insensitive) or its number.
// Declared but non-functional kinds parse successfully; Check rejects them.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		k := Kind(n)
		if !k.Known() {
			return 0, ruleerr.New(ruleerr.UnsupportedStoreKind, "unknown store kind", s)
		}
		return k, nil
	}
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, ruleerr.New(ruleerr.UnsupportedStoreKind, "unknown store kind", s)
}

// Check returns UnsupportedStoreKind unless k is functional.
func (k Kind) Check() error {
	switch {
	case k.Functional():
		return nil
	case k.Known():
		return ruleerr.New(ruleerr.UnsupportedStoreKind, "store kind is declared but not implemented", k.String())
	default:
		return ruleerr.New(ruleerr.UnsupportedStoreKind, "unknown store kind", k.String())
	}
}

// Locator names one store: a file path plus its kind.
// It is comparable and used directly as a cache key.
type Locator struct {
	Path string
	Kind Kind
}

// String renders the locator for logs.
func (l Locator) String() string {
	return fmt.Sprintf("%s:%s", l.Kind, l.Path)
}
