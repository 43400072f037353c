package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/store"
)

const metadataSQL = `
CREATE TABLE "AGENTS" ("NAME" TEXT, "DB" TEXT);
INSERT INTO "AGENTS" VALUES ('VERT', 'VERT_T');
INSERT INTO "AGENTS" VALUES ('EVIL', 'x"; DROP TABLE y; --');
CREATE TABLE "ONTOLOGY" ("PREFIX" TEXT, "NAME" TEXT, "AGENT" TEXT, "CLN" TEXT);
INSERT INTO "ONTOLOGY" VALUES ('E', 'D', 'VERT', 'DIAM');
INSERT INTO "ONTOLOGY" VALUES ('E', 'NM', 'VERT', 'NAME');
INSERT INTO "ONTOLOGY" VALUES ('E', 'D', 'OTHER', 'D_OTHER');
`

func metadataStore(t *testing.T) store.Locator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metabase.sqlite")
	s, err := store.Create(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ExecScript(context.Background(), metadataSQL))
	return store.Locator{Path: path, Kind: store.KindSQLite}
}

func newConns(t *testing.T, open Opener) *ConnectionCache {
	t.Helper()
	c, err := NewConnectionCache(8, open, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// =============================================================================
// SchemaResolver
// =============================================================================

func TestSchemaResolver_Table(t *testing.T) {
	meta := metadataStore(t)
	r, err := NewSchemaResolver(newConns(t, nil), DefaultMetadataSchema(), 4, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		table, err := r.Table(context.Background(), "VERT", meta)
		require.NoError(t, err)
		assert.Equal(t, "VERT_T", table)
	}
	assert.Equal(t, uint64(1), r.Stats().Loads, "one metadata query per agent")
}

func TestSchemaResolver_UnknownAgent(t *testing.T) {
	meta := metadataStore(t)
	r, err := NewSchemaResolver(newConns(t, nil), DefaultMetadataSchema(), 4, nil)
	require.NoError(t, err)

	_, err = r.Table(context.Background(), "NOBODY", meta)
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.UnknownAgent))
}

func TestSchemaResolver_RejectsHostileTableName(t *testing.T) {
	meta := metadataStore(t)
	r, err := NewSchemaResolver(newConns(t, nil), DefaultMetadataSchema(), 4, nil)
	require.NoError(t, err)

	_, err = r.Table(context.Background(), "EVIL", meta)
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.InvalidIdentifier))
}

func TestSchemaResolver_MissingMetadataStore(t *testing.T) {
	r, err := NewSchemaResolver(newConns(t, nil), DefaultMetadataSchema(), 4, nil)
	require.NoError(t, err)

	missing := store.Locator{Path: filepath.Join(t.TempDir(), "nope.sqlite"), Kind: store.KindSQLite}
	_, err = r.Table(context.Background(), "VERT", missing)
	assert.True(t, ruleerr.Is(err, ruleerr.StoreNotFound))
}

func TestNewSchemaResolver_InvalidSchema(t *testing.T) {
	schema := DefaultMetadataSchema()
	schema.AgentsTable = "AGENTS; --"
	_, err := NewSchemaResolver(newConns(t, nil), schema, 4, nil)
	assert.True(t, ruleerr.Is(err, ruleerr.InvalidIdentifier))
}

// =============================================================================
// Vocabulary
// =============================================================================

func TestSQLVocabulary(t *testing.T) {
	meta := metadataStore(t)
	v := NewSQLVocabulary(newConns(t, nil), DefaultMetadataSchema())

	col, err := v.ResolveColumn(context.Background(), "E", "D", "VERT", meta)
	require.NoError(t, err)
	assert.Equal(t, "DIAM", col)

	col, err = v.ResolveColumn(context.Background(), "E", "D", "OTHER", meta)
	require.NoError(t, err)
	assert.Equal(t, "D_OTHER", col, "columns are per agent")

	_, err = v.ResolveColumn(context.Background(), "E", "XX", "VERT", meta)
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.UnresolvedColumn))

	var re *ruleerr.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "E.XX", re.Subject)
}

func TestVocabularyBinding_Memoizes(t *testing.T) {
	var calls atomic.Int32
	resolver := ColumnResolverFunc(func(_ context.Context, prefix, name, agent string, _ store.Locator) (string, error) {
		calls.Add(1)
		return prefix + "_" + name + "_" + agent, nil
	})
	b, err := NewVocabularyBinding(resolver, 8, nil)
	require.NoError(t, err)

	meta := store.Locator{Path: "meta.sqlite", Kind: store.KindSQLite}
	binder := b.Binder("VERT", meta)
	for i := 0; i < 3; i++ {
		col, err := binder.Column(context.Background(), "E", "D")
		require.NoError(t, err)
		assert.Equal(t, "E_D_VERT", col)
	}
	assert.Equal(t, int32(1), calls.Load())

	// A different metadata store is a different key.
	_, err = b.Column(context.Background(), "E", "D", "VERT", store.Locator{Path: "other.sqlite", Kind: store.KindSQLite})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVocabularyBinding_InstancesDoNotShare(t *testing.T) {
	var calls atomic.Int32
	resolver := ColumnResolverFunc(func(context.Context, string, string, string, store.Locator) (string, error) {
		calls.Add(1)
		return "DIAM", nil
	})
	meta := store.Locator{Path: "meta.sqlite", Kind: store.KindSQLite}

	for i := 0; i < 2; i++ {
		b, err := NewVocabularyBinding(resolver, 8, nil)
		require.NoError(t, err)
		_, err = b.Column(context.Background(), "E", "D", "VERT", meta)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

// =============================================================================
// ConnectionCache
// =============================================================================

type fakeHandle struct {
	store.Handle // nil; only QueryRows and Close are called
	closed       atomic.Bool
}

func (h *fakeHandle) QueryRows(context.Context, string, ...any) ([][]any, error) {
	if h.closed.Load() {
		return nil, errors.New("query on closed handle")
	}
	return [][]any{}, nil
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// stallHandle blocks every call until its context is done.
type stallHandle struct {
	store.Handle
}

func (h *stallHandle) QueryRows(ctx context.Context, _ string, _ ...any) ([][]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *stallHandle) InTx(ctx context.Context, fn func(store.Conn) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (h *stallHandle) Close() error { return nil }

type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeHandle
}

func (o *fakeOpener) open(context.Context, store.Locator) (store.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := &fakeHandle{}
	o.opened = append(o.opened, h)
	return h, nil
}

func (o *fakeOpener) handles() []*fakeHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeHandle(nil), o.opened...)
}

func TestConnectionCache_SharesAndEvicts(t *testing.T) {
	o := &fakeOpener{}
	c, err := NewConnectionCache(1, o.open, nil)
	require.NoError(t, err)

	a := store.Locator{Path: "a.sqlite", Kind: store.KindSQLite}
	b := store.Locator{Path: "b.sqlite", Kind: store.KindSQLite}

	h1, err := c.Get(context.Background(), a)
	require.NoError(t, err)
	h2, err := c.Get(context.Background(), a)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "each Get is its own lease")
	require.Len(t, o.handles(), 1, "leases share one connection")

	hb, err := c.Get(context.Background(), b)
	require.NoError(t, err)
	opened := o.handles()
	require.Len(t, opened, 2)
	assert.False(t, opened[0].closed.Load(), "evicted connection stays open while leased")

	_, err = h1.QueryRows(context.Background(), "SELECT 1")
	require.NoError(t, err)

	require.NoError(t, h1.Close())
	require.NoError(t, h1.Close())
	assert.False(t, opened[0].closed.Load(), "a repeated Close releases once")
	require.NoError(t, h2.Close())
	assert.True(t, opened[0].closed.Load(), "last release closes the evicted connection")

	c.Close()
	assert.False(t, opened[1].closed.Load(), "purged connection stays open while leased")
	require.NoError(t, hb.Close())
	assert.True(t, opened[1].closed.Load())
}

func TestConnectionCache_ConcurrentEviction(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := &fakeOpener{}
	c, err := NewConnectionCache(1, o.open, nil)
	require.NoError(t, err)

	locs := []store.Locator{
		{Path: "a.sqlite", Kind: store.KindSQLite},
		{Path: "b.sqlite", Kind: store.KindSQLite},
	}

	const workers, rounds = 16, 50
	errs := make(chan error, workers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, err := c.Get(context.Background(), locs[(w+i)%len(locs)])
				if err != nil {
					errs <- err
					continue
				}
				if _, err := h.QueryRows(context.Background(), "SELECT 1"); err != nil {
					errs <- err
				}
				h.Close()
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	c.Close()
	for i, h := range o.handles() {
		assert.True(t, h.closed.Load(), "connection %d left open", i)
	}
}

func TestConnectionCache_CallTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ops []string
	var mu sync.Mutex
	record := func(op string, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		ops = append(ops, op)
	}
	open := func(context.Context, store.Locator) (store.Handle, error) {
		return &stallHandle{}, nil
	}
	c, err := NewConnectionCache(4, open, nil, WithCallTimeout(20*time.Millisecond), WithCallObserver(record))
	require.NoError(t, err)
	defer c.Close()

	h, err := c.Get(context.Background(), store.Locator{Path: "slow.sqlite", Kind: store.KindSQLite})
	require.NoError(t, err)
	defer h.Close()

	_, err = h.QueryRows(context.Background(), `SELECT "CLN" FROM "ONTOLOGY"`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var ran bool
	err = h.InTx(context.Background(), func(store.Conn) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a BEGIN waiting on the write lock times out")
	assert.False(t, ran)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"select", "tx"}, ops)
}

func TestConnectionCache_RejectsKindsBeforeOpening(t *testing.T) {
	var calls int
	open := func(context.Context, store.Locator) (store.Handle, error) {
		calls++
		return &fakeHandle{}, nil
	}
	c := newConns(t, open)

	for _, k := range []store.Kind{store.KindMSSQLServer, store.KindMongoDB, store.Kind(7)} {
		_, err := c.Get(context.Background(), store.Locator{Path: "x", Kind: k})
		assert.True(t, ruleerr.Is(err, ruleerr.UnsupportedStoreKind), k.String())
	}
	assert.Zero(t, calls)
}

func TestConnectionCache_StoreNotFound(t *testing.T) {
	c := newConns(t, nil)
	_, err := c.Get(context.Background(), store.Locator{Path: filepath.Join(t.TempDir(), "x.sqlite"), Kind: store.KindSQLite})
	assert.True(t, ruleerr.Is(err, ruleerr.StoreNotFound))
	assert.Equal(t, 0, c.Stats().Len)
}

// =============================================================================
// RowIDResolver
// =============================================================================

func TestRowIDResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.sqlite")
	s, err := store.Create(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.ExecScript(context.Background(), `
CREATE TABLE "VERT_T" ("NAME" TEXT, "DIAM" INTEGER);
CREATE TABLE "W" ("NAME" TEXT PRIMARY KEY, "D" INTEGER) WITHOUT ROWID;
`))
	require.NoError(t, s.Close())
	data := store.Locator{Path: path, Kind: store.KindSQLite}

	r, err := NewRowIDResolver(newConns(t, nil), 4, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := r.HasRowID(context.Background(), "VERT_T", data)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := r.HasRowID(context.Background(), "W", data)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.HasRowID(context.Background(), "MISSING", data)
	require.NoError(t, err)
	assert.True(t, ok, "unlisted tables keep rowid ordering")

	assert.Equal(t, uint64(3), r.Stats().Loads)
}
