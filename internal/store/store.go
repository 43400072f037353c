package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/vsptd/internal/ruleerr"
)

// Conn executes statements. Both a Store and an open transaction
// implement it.
type Conn interface {
	// QueryRows runs a query and returns every row as driver values.
	QueryRows(ctx context.Context, query string, args ...any) ([][]any, error)

	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Handle is a live connection to one store.
type Handle interface {
	Conn

	// InTx runs fn inside one transaction. fn's error rolls back.
	InTx(ctx context.Context, fn func(Conn) error) error

	Close() error
}

// Store is a SQLite-backed Handle.
type Store struct {
	db      *sql.DB
	locator string
}

var _ Handle = (*Store)(nil)

// Open connects to an existing store file.
//
// The file must exist: a missing file is StoreNotFound, never an empty new
// database. Non-functional kinds are UnsupportedStoreKind.
//
// Transactions begin IMMEDIATE so that an existence probe and the mutation
// that follows it run under one write lock.
func Open(ctx context.Context, locator string, kind Kind) (*Store, error) {
	if err := kind.Check(); err != nil {
		return nil, err
	}

	info, err := os.Stat(locator)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ruleerr.New(ruleerr.StoreNotFound, "store file does not exist", locator)
	}
	if err != nil {
		return nil, fmt.Errorf("stat store %s: %w", locator, err)
	}
	if info.IsDir() {
		return nil, ruleerr.New(ruleerr.StoreNotFound, "store locator is a directory", locator)
	}

	return open(ctx, locator, "rw")
}

// Create opens a store file, creating it if it does not exist.
// Used to prepare fixture stores.
func Create(ctx context.Context, locator string) (*Store, error) {
	return open(ctx, locator, "rwc")
}

// uriPath escapes the characters that end or escape the path part of a
// SQLite file: URI.
var uriPath = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

func open(ctx context.Context, locator, mode string) (*Store, error) {
	q := url.Values{}
	q.Set("mode", mode)
	q.Set("_txlock", "immediate")
	dsn := "file:" + uriPath.Replace(locator) + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db, locator: locator}, nil
}

// Locator returns the path the store was opened from.
func (s *Store) Locator() string {
	return s.locator
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// QueryRows implements Conn.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	return queryRows(ctx, s.db, query, args...)
}

// Exec implements Conn.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execAffected(ctx, s.db, query, args...)
}

// ExecScript runs a multi-statement script, e.g. fixture setup.
func (s *Store) ExecScript(ctx context.Context, script string) error {
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec script: %w", err)
	}
	return nil
}

// InTx implements Handle.
func (s *Store) InTx(ctx context.Context, fn func(Conn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	if err := fn(txConn{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txConn is a Conn bound to one transaction.
type txConn struct {
	tx *sql.Tx
}

func (c txConn) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	return queryRows(ctx, c.tx, query, args...)
}

func (c txConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execAffected(ctx, c.tx, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryRows(ctx context.Context, q querier, query string, args ...any) ([][]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	result := [][]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func execAffected(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// applyPragmas sets required SQLite configuration.
// The journal mode is left alone: stores are owned by other tools.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
