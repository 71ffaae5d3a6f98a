package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds each namespace when no size is configured
const DefaultMaxEntries = 10000

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUCache is a thread-safe in-memory cache. Each namespace is an independent
// LRU bounded to maxEntries, so stale entries that are never read are
// eventually evicted by newer writes.
type LRUCache struct {
	mu         sync.RWMutex
	namespaces map[string]*lru.Cache[string, lruEntry]
	maxEntries int
	now        func() time.Time
	hits       atomic.Uint64
	misses     atomic.Uint64
}

// LRUStats represents cache statistics
type LRUStats struct {
	Namespaces int
	Entries    int
	Hits       uint64
	Misses     uint64
	HitRate    float64
}

// NewLRUCache creates an LRUCache holding at most maxEntries per namespace
func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LRUCache{
		namespaces: make(map[string]*lru.Cache[string, lruEntry]),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for expiry
func (c *LRUCache) WithClock(now func() time.Time) *LRUCache {
	c.now = now
	return c
}

func (c *LRUCache) get(namespace string) *lru.Cache[string, lruEntry] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namespaces[namespace]
}

func (c *LRUCache) getOrCreate(namespace string) (*lru.Cache[string, lruEntry], error) {
	if l := c.get(namespace); l != nil {
		return l, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.namespaces[namespace]; ok {
		return l, nil
	}
	l, err := lru.New[string, lruEntry](c.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create namespace %q: %w", namespace, err)
	}
	c.namespaces[namespace] = l
	return l, nil
}

// Put stores value under key
func (c *LRUCache) Put(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if !validEntry(namespace, key, value) {
		return nil
	}
	l, err := c.getOrCreate(namespace)
	if err != nil {
		return err
	}
	l.Add(key, lruEntry{value: value, expiresAt: expiryFor(c.now(), ttl)})
	return nil
}

func (c *LRUCache) lookup(namespace, key string) ([]byte, bool) {
	if isBlank(namespace) || isBlank(key) {
		return nil, false
	}
	l := c.get(namespace)
	if l == nil {
		c.misses.Add(1)
		return nil, false
	}
	e, ok := l.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if expired(e.expiresAt, c.now()) {
		l.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Get returns the value for key, evicting it first if it has expired
func (c *LRUCache) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	v, ok := c.lookup(namespace, key)
	return v, ok, nil
}

// Contains reports whether a live entry exists for key
func (c *LRUCache) Contains(_ context.Context, namespace, key string) (bool, error) {
	_, ok := c.lookup(namespace, key)
	return ok, nil
}

// GetAll returns the live entries among keys
func (c *LRUCache) GetAll(_ context.Context, namespace string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := c.lookup(namespace, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// PutAll stores every valid entry of values
func (c *LRUCache) PutAll(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		if err := c.Put(ctx, namespace, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes key
func (c *LRUCache) Remove(_ context.Context, namespace, key string) error {
	if isBlank(namespace) || isBlank(key) {
		return nil
	}
	if l := c.get(namespace); l != nil {
		l.Remove(key)
	}
	return nil
}

// RemoveAll drops the whole namespace
func (c *LRUCache) RemoveAll(_ context.Context, namespace string) error {
	if isBlank(namespace) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.namespaces, namespace)
	return nil
}

// RemoveKeys deletes each of keys
func (c *LRUCache) RemoveKeys(ctx context.Context, namespace string, keys []string) error {
	for _, k := range keys {
		_ = c.Remove(ctx, namespace, k)
	}
	return nil
}

// Stats returns cache statistics
func (c *LRUCache) Stats() LRUStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := LRUStats{
		Namespaces: len(c.namespaces),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}
	for _, l := range c.namespaces {
		stats.Entries += l.Len()
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
