package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/catalog"
	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/testutil"
)

type fixture struct {
	data store.Locator
	meta store.Locator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := testutil.NewFixture(t, "")
	return fixture{data: f.Data, meta: f.Meta}
}

func (f fixture) context(t *testing.T, triples string) *AgentContext {
	t.Helper()
	ac, err := NewAgentContext(AgentSpec{
		Agent:    "VERT",
		Store:    f.data,
		Metadata: f.meta,
		Triples:  triples,
	})
	require.NoError(t, err)
	return ac
}

// rowCount counts rows of VERT matching where, outside the engine.
func (f fixture) rowCount(t *testing.T, where string, args ...any) int64 {
	t.Helper()
	return testutil.CountRows(t, f.data, "VERT", where, args...)
}

// createStore creates a store named name in a fresh directory.
func createStore(t *testing.T, name, script string) store.Locator {
	t.Helper()
	return testutil.CreateSQLite(t, filepath.Join(t.TempDir(), name), script)
}

func countRows(t *testing.T, loc store.Locator, table, where string, args ...any) int64 {
	t.Helper()
	return testutil.CountRows(t, loc, table, where, args...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// storeCounter is a store double that opens real stores and counts every
// call made against one watched locator.
type storeCounter struct {
	watch store.Locator

	mu    sync.Mutex
	opens int
	calls int
}

func (c *storeCounter) open(ctx context.Context, loc store.Locator) (store.Handle, error) {
	h, err := catalog.OpenStore(ctx, loc)
	if err != nil || loc != c.watch {
		return h, err
	}
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return &countingHandle{Handle: h, counter: c}, nil
}

func (c *storeCounter) touched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens + c.calls
}

func (c *storeCounter) inc() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

type countingHandle struct {
	store.Handle
	counter *storeCounter
}

func (h *countingHandle) QueryRows(ctx context.Context, q string, args ...any) ([][]any, error) {
	h.counter.inc()
	return h.Handle.QueryRows(ctx, q, args...)
}

func (h *countingHandle) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	h.counter.inc()
	return h.Handle.Exec(ctx, q, args...)
}

func (h *countingHandle) InTx(ctx context.Context, fn func(store.Conn) error) error {
	h.counter.inc()
	return h.Handle.InTx(ctx, fn)
}

// blockingHandle never answers until the caller's context ends.
type blockingHandle struct{}

func (blockingHandle) QueryRows(ctx context.Context, _ string, _ ...any) ([][]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingHandle) Exec(ctx context.Context, _ string, _ ...any) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (h blockingHandle) InTx(ctx context.Context, fn func(store.Conn) error) error {
	return fn(h)
}

func (blockingHandle) Close() error { return nil }

// lockedHandle answers queries but never gets the write lock: InTx waits
// like a BEGIN IMMEDIATE behind another writer.
type lockedHandle struct {
	store.Handle
}

func (lockedHandle) InTx(ctx context.Context, _ func(store.Conn) error) error {
	<-ctx.Done()
	return ctx.Err()
}
