package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/vsptd/internal/memo"
	"github.com/roach88/vsptd/internal/store"
)

// Opener establishes a connection to one store.
type Opener func(ctx context.Context, loc store.Locator) (store.Handle, error)

// OpenStore is the default Opener.
func OpenStore(ctx context.Context, loc store.Locator) (store.Handle, error) {
	return store.Open(ctx, loc.Path, loc.Kind)
}

// Observer receives cache activity for metrics.
type Observer func(cache string, hit bool, err error)

// CallObserver receives the latency of one store call, labeled select,
// count, insert, delete or tx.
type CallObserver func(operation string, d time.Duration)

// ConnectionOption configures a ConnectionCache.
type ConnectionOption func(*ConnectionCache)

// WithCallTimeout bounds connecting and every call made through a handle
// from the cache. A transaction counts as one call from BEGIN to COMMIT;
// each statement inside it is bounded again. Zero disables the deadline.
func WithCallTimeout(d time.Duration) ConnectionOption {
	return func(c *ConnectionCache) { c.timeout = d }
}

// WithCallObserver records the latency of every call.
func WithCallObserver(fn CallObserver) ConnectionOption {
	return func(c *ConnectionCache) { c.record = fn }
}

// ConnectionCache shares live connections keyed by (locator, kind).
//
// Get hands out leases. A connection leaving the cache, by eviction or
// Close, is closed once its last lease is released.
type ConnectionCache struct {
	open    Opener
	cache   *memo.Cache[store.Locator, *shared]
	timeout time.Duration
	record  CallObserver
}

// NewConnectionCache creates a cache holding at most size connections.
// A nil opener means OpenStore.
func NewConnectionCache(size int, open Opener, observe Observer, opts ...ConnectionOption) (*ConnectionCache, error) {
	if open == nil {
		open = OpenStore
	}
	c := &ConnectionCache{open: open}
	for _, opt := range opts {
		opt(c)
	}

	memoOpts := []memo.Option[store.Locator, *shared]{
		memo.WithEvict[store.Locator, *shared](func(_ store.Locator, s *shared) { s.evict() }),
	}
	if observe != nil {
		memoOpts = append(memoOpts, memo.WithObserver[store.Locator, *shared](observe))
	}

	cache, err := memo.New[store.Locator, *shared]("connections", size, memoOpts...)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Get leases the shared connection for loc, connecting on first use.
// The kind is checked before any connection attempt. The caller must Close
// the returned handle; that releases the lease, not the connection.
func (c *ConnectionCache) Get(ctx context.Context, loc store.Locator) (store.Handle, error) {
	if err := loc.Kind.Check(); err != nil {
		return nil, err
	}
	for {
		s, err := c.cache.Get(ctx, loc, func(ctx context.Context) (*shared, error) {
			ctx, cancel := deadline(ctx, c.timeout)
			defer cancel()
			slog.Debug("opening store connection", "locator", loc.String())
			h, err := c.open(ctx, loc)
			if err != nil {
				return nil, err
			}
			return &shared{h: h, loc: loc}, nil
		})
		if err != nil {
			return nil, err
		}
		if s.acquire() {
			return &lease{s: s, timeout: c.timeout, record: c.record}, nil
		}
		// Evicted and closed between lookup and acquire; the cache no
		// longer holds it, so the next lookup reconnects.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Stats returns cache activity.
func (c *ConnectionCache) Stats() memo.Stats {
	return c.cache.Stats()
}

// Close drops every cached connection. Connections still leased close when
// their last lease is released.
func (c *ConnectionCache) Close() {
	c.cache.Purge()
}

// shared is one cached connection with its lease count.
type shared struct {
	h   store.Handle
	loc store.Locator

	mu      sync.Mutex
	refs    int
	evicted bool
	closed  bool
}

func (s *shared) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.refs++
	return true
}

func (s *shared) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs == 0 && s.evicted {
		s.closeLocked()
	}
}

func (s *shared) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted = true
	if s.refs == 0 {
		s.closeLocked()
	}
}

func (s *shared) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.h.Close(); err != nil {
		slog.Warn("close store connection", "locator", s.loc.String(), "error", err)
		return
	}
	slog.Debug("closed store connection", "locator", s.loc.String())
}

// lease is a caller's hold on a shared connection. Every call runs under
// the cache's call timeout.
type lease struct {
	s       *shared
	timeout time.Duration
	record  CallObserver
	once    sync.Once
}

var _ store.Handle = (*lease)(nil)

func (l *lease) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	return timed{conn: l.s.h, timeout: l.timeout, record: l.record}.QueryRows(ctx, query, args...)
}

func (l *lease) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return timed{conn: l.s.h, timeout: l.timeout, record: l.record}.Exec(ctx, query, args...)
}

// InTx bounds the whole transaction, including a BEGIN that waits for the
// write lock.
func (l *lease) InTx(ctx context.Context, fn func(store.Conn) error) error {
	ctx, cancel := deadline(ctx, l.timeout)
	defer cancel()
	defer observe(l.record, "tx", time.Now())
	return l.s.h.InTx(ctx, func(tx store.Conn) error {
		return fn(timed{conn: tx, timeout: l.timeout, record: l.record})
	})
}

// Close releases the lease. Further Closes are no-ops.
func (l *lease) Close() error {
	l.once.Do(l.s.release)
	return nil
}
