package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const keySeparator = "|"

// Cache is a size-bounded TTL cache whose entries are owned by a user.
// Concurrent loads of the same key share one call. Errors are never cached.
type Cache[V any] struct {
	name    string
	entries *lru.LRU[string, V]
	flights singleflight.Group
	metrics *observability.Metrics

	// generation moves on every invalidation; loads that started earlier do not store.
	mu         sync.Mutex
	generation atomic.Uint64
}

// New creates a cache. A size of zero means unbounded.
func New[V any](name string, size int, ttl time.Duration, metrics *observability.Metrics) *Cache[V] {
	return &Cache[V]{
		name:    name,
		entries: lru.NewLRU[string, V](size, nil, ttl),
		metrics: metrics,
	}
}

// Key builds an entry key scoped to user.
func Key(user uuid.UUID, parts ...string) string {
	return UserPrefix(user) + strings.Join(parts, keySeparator)
}

func UserPrefix(user uuid.UUID) string {
	return user.String() + keySeparator
}

func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.metrics.CacheHit(c.name)
	} else {
		c.metrics.CacheMiss(c.name)
	}
	return v, ok
}

func (c *Cache[V]) Set(key string, v V) {
	c.entries.Add(key, v)
}

// GetOrLoad returns the cached value or runs load once for all concurrent callers of key.
// The shared load is detached from any single caller's cancellation.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	gen := c.generation.Load()
	flightKey := key + keySeparator + strconv.FormatUint(gen, 10)
	loadCtx := context.WithoutCancel(ctx)

	ch := c.flights.DoChan(flightKey, func() (interface{}, error) {
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.generation.Load() == gen {
			c.entries.Add(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// InvalidateUser drops every entry owned by user.
func (c *Cache[V]) InvalidateUser(user uuid.UUID) int {
	prefix := UserPrefix(user)
	n := c.remove(func(key string) bool { return strings.HasPrefix(key, prefix) })
	c.metrics.CacheInvalidated(c.name, "user", n)
	return n
}

// InvalidateMatching drops every entry whose key satisfies match.
func (c *Cache[V]) InvalidateMatching(match func(key string) bool) int {
	n := c.remove(match)
	c.metrics.CacheInvalidated(c.name, "match", n)
	return n
}

// InvalidateValues drops every entry whose value satisfies match.
func (c *Cache[V]) InvalidateValues(match func(V) bool) int {
	n := c.removeEntries(func(key string, v V) bool { return match(v) })
	c.metrics.CacheInvalidated(c.name, "value", n)
	return n
}

func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	n := c.entries.Len()
	c.entries.Purge()
	c.metrics.CacheInvalidated(c.name, "all", n)
}

func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[V]) remove(match func(key string) bool) int {
	return c.removeEntries(func(key string, _ V) bool { return match(key) })
}

func (c *Cache[V]) removeEntries(match func(key string, v V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	n := 0
	for _, key := range c.entries.Keys() {
		v, ok := c.entries.Peek(key)
		if ok && match(key, v) && c.entries.Remove(key) {
			n++
		}
	}
	return n
}

// KeyParts splits a key built by Key into its owner and the remaining parts.
func KeyParts(key string) (string, []string) {
	parts := strings.Split(key, keySeparator)
	return parts[0], parts[1:]
}
