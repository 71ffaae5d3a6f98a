package cache

import (
	"context"
	"time"
)

type mapEntry struct {
	value     []byte
	expiresAt time.Time
}

// MapCache is a plain map-of-maps cache.
//
// It is NOT safe for concurrent use and exists for tests and single-goroutine
// tooling. Expired entries stay in memory until they are read or removed.
type MapCache struct {
	namespaces map[string]map[string]mapEntry
	now        func() time.Time
}

// NewMapCache creates an empty MapCache
func NewMapCache() *MapCache {
	return &MapCache{
		namespaces: make(map[string]map[string]mapEntry),
		now:        time.Now,
	}
}

// WithClock replaces the time source used for expiry
func (c *MapCache) WithClock(now func() time.Time) *MapCache {
	c.now = now
	return c
}

func (c *MapCache) namespace(ns string, create bool) map[string]mapEntry {
	m, ok := c.namespaces[ns]
	if !ok && create {
		m = make(map[string]mapEntry)
		c.namespaces[ns] = m
	}
	return m
}

// Put stores value under key
func (c *MapCache) Put(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if !validEntry(namespace, key, value) {
		return nil
	}
	c.namespace(namespace, true)[key] = mapEntry{value: value, expiresAt: expiryFor(c.now(), ttl)}
	return nil
}

// Get returns the value for key, evicting it first if it has expired
func (c *MapCache) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	v, ok := c.lookup(namespace, key)
	return v, ok, nil
}

func (c *MapCache) lookup(namespace, key string) ([]byte, bool) {
	if isBlank(namespace) || isBlank(key) {
		return nil, false
	}
	m := c.namespace(namespace, false)
	e, ok := m[key]
	if !ok {
		return nil, false
	}
	if expired(e.expiresAt, c.now()) {
		delete(m, key)
		return nil, false
	}
	return e.value, true
}

// Contains reports whether a live entry exists for key
func (c *MapCache) Contains(_ context.Context, namespace, key string) (bool, error) {
	_, ok := c.lookup(namespace, key)
	return ok, nil
}

// GetAll returns the live entries among keys; missing and expired keys are omitted
func (c *MapCache) GetAll(_ context.Context, namespace string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := c.lookup(namespace, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// PutAll stores every valid entry of values
func (c *MapCache) PutAll(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		_ = c.Put(ctx, namespace, k, v, ttl)
	}
	return nil
}

// Remove deletes key
func (c *MapCache) Remove(_ context.Context, namespace, key string) error {
	if isBlank(namespace) || isBlank(key) {
		return nil
	}
	delete(c.namespace(namespace, false), key)
	return nil
}

// RemoveAll drops the whole namespace
func (c *MapCache) RemoveAll(_ context.Context, namespace string) error {
	if isBlank(namespace) {
		return nil
	}
	delete(c.namespaces, namespace)
	return nil
}

// RemoveKeys deletes each of keys
func (c *MapCache) RemoveKeys(ctx context.Context, namespace string, keys []string) error {
	for _, k := range keys {
		_ = c.Remove(ctx, namespace, k)
	}
	return nil
}

// Len returns the number of stored entries in namespace, including expired ones not yet read
func (c *MapCache) Len(namespace string) int {
	return len(c.namespace(namespace, false))
}
