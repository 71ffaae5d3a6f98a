// Package cache provides namespaced key/value caches with optional per-entry expiry.
//
// Every operation takes an explicit namespace, normally an app identifier, and
// namespaces never observe each other's entries. Blank namespaces or keys and nil
// values are ignored rather than reported as errors. Expiry is absolute
// (insertion time + ttl) and is enforced when an entry is read.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is a namespaced byte cache. A ttl <= 0 stores the entry without expiry.
type Cache interface {
	Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Contains(ctx context.Context, namespace, key string) (bool, error)
	GetAll(ctx context.Context, namespace string, keys []string) (map[string][]byte, error)
	PutAll(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error
	Remove(ctx context.Context, namespace, key string) error
	RemoveAll(ctx context.Context, namespace string) error
	RemoveKeys(ctx context.Context, namespace string, keys []string) error
}

// Pinger is implemented by caches backed by a remote store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Namespaced binds a Cache to a single namespace
type Namespaced struct {
	cache     Cache
	namespace string
}

// In returns c bound to namespace
func In(c Cache, namespace string) *Namespaced {
	return &Namespaced{cache: c, namespace: namespace}
}

// Namespace returns the bound namespace
func (n *Namespaced) Namespace() string { return n.namespace }

func (n *Namespaced) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.cache.Put(ctx, n.namespace, key, value, ttl)
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.cache.Get(ctx, n.namespace, key)
}

func (n *Namespaced) Contains(ctx context.Context, key string) (bool, error) {
	return n.cache.Contains(ctx, n.namespace, key)
}

func (n *Namespaced) GetAll(ctx context.Context, keys []string) (map[string][]byte, error) {
	return n.cache.GetAll(ctx, n.namespace, keys)
}

func (n *Namespaced) PutAll(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	return n.cache.PutAll(ctx, n.namespace, values, ttl)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.cache.Remove(ctx, n.namespace, key)
}

func (n *Namespaced) RemoveAll(ctx context.Context) error {
	return n.cache.RemoveAll(ctx, n.namespace)
}

func (n *Namespaced) RemoveKeys(ctx context.Context, keys []string) error {
	return n.cache.RemoveKeys(ctx, n.namespace, keys)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// validEntry reports whether an entry may be stored
func validEntry(namespace, key string, value []byte) bool {
	return !isBlank(namespace) && !isBlank(key) && value != nil
}

// expiryFor converts a ttl into an absolute expiry; zero means none
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// expired reports whether an entry with the given expiry is stale at now
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
