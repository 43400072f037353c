// Package memo provides bounded, per-key single-flight memoization.
//
// Every resolver cache in the engine is a memo.Cache: an LRU of fixed
// capacity in front of a loader. Concurrent misses for one key share a
// single loader call; hits never wait on loads. Failed loads are not
// cached.
package memo

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a missing key.
type Loader[V any] func(ctx context.Context) (V, error)

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      uint64
	Loads     uint64
	Failures  uint64
	Evictions uint64
	Len       int
}

// Cache is a bounded memoization table. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	name  string
	lru   *lru.Cache[K, V]
	group singleflight.Group

	onEvict  func(K, V)
	observer func(name string, hit bool, err error)

	hits, loads, failures, evictions atomic.Uint64
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithEvict registers a callback for entries leaving the cache, by
// eviction or by Purge.
func WithEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// WithObserver registers a callback run after every Get.
func WithObserver[K comparable, V any](fn func(name string, hit bool, err error)) Option[K, V] {
	return func(c *Cache[K, V]) { c.observer = fn }
}

// New creates a cache holding at most size entries.
func New[K comparable, V any](name string, size int, opts ...Option[K, V]) (*Cache[K, V], error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache %s: size must be positive, got %d", name, size)
	}
	c := &Cache[K, V]{name: name}
	for _, opt := range opts {
		opt(c)
	}

	l, err := lru.NewWithEvict[K, V](size, func(k K, v V) {
		c.evictions.Add(1)
		if c.onEvict != nil {
			c.onEvict(k, v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	c.lru = l
	return c, nil
}

// Name returns the cache name used in logs and metrics.
func (c *Cache[K, V]) Name() string {
	return c.name
}

// Get returns the cached value for key, calling load on a miss.
//
// Waiters stop waiting when ctx is done. The shared load runs detached from
// every caller's cancellation, keeping only ctx's values, so one caller
// giving up never fails the others; loaders bound their own calls.
func (c *Cache[K, V]) Get(ctx context.Context, key K, load Loader[V]) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		c.observe(true, nil)
		return v, nil
	}

	ch := c.group.DoChan(flightKey(key), func() (any, error) {
		// Another flight may have filled the entry since our miss.
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		c.loads.Add(1)
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			c.failures.Add(1)
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		c.observe(false, ctx.Err())
		return zero, ctx.Err()
	case res := <-ch:
		c.observe(false, res.Err)
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Peek returns a cached value without loading or updating recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	return c.lru.Peek(key)
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Purge removes every entry, running the evict callback for each.
func (c *Cache[K, V]) Purge() {
	c.lru.Purge()
}

// Stats returns a snapshot of cache activity.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Loads:     c.loads.Load(),
		Failures:  c.failures.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.lru.Len(),
	}
}

func (c *Cache[K, V]) observe(hit bool, err error) {
	if c.observer != nil {
		c.observer(c.name, hit, err)
	}
}

// flightKey renders a comparable key as a single-flight key. %#v keeps
// field boundaries, so {"a","bc"} and {"ab","c"} stay distinct.
func flightKey[K comparable](key K) string {
	return fmt.Sprintf("%#v", key)
}
