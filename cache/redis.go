package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "para"

// RedisCache stores entries in Redis under "para:<len(namespace)>:<namespace>:<key>".
// Expiry is delegated to Redis key TTLs.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis server at redisURL
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// namespacePrefix length-prefixes the namespace so that colons inside it
// cannot make two (namespace, key) pairs share a Redis key
func namespacePrefix(namespace string) string {
	return redisKeyPrefix + ":" + strconv.Itoa(len(namespace)) + ":" + namespace + ":"
}

func redisKey(namespace, key string) string {
	return namespacePrefix(namespace) + key
}

// Put stores value under key
func (c *RedisCache) Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if !validEntry(namespace, key, value) {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, redisKey(namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Get returns the value for key
func (c *RedisCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if isBlank(namespace) || isBlank(key) {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return data, true, nil
}

// Contains reports whether key exists
func (c *RedisCache) Contains(ctx context.Context, namespace, key string) (bool, error) {
	if isBlank(namespace) || isBlank(key) {
		return false, nil
	}
	n, err := c.client.Exists(ctx, redisKey(namespace, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// GetAll fetches keys with a single MGET; missing keys are omitted
func (c *RedisCache) GetAll(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if isBlank(namespace) {
		return out, nil
	}

	wanted := make([]string, 0, len(keys))
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if isBlank(k) {
			continue
		}
		wanted = append(wanted, k)
		full = append(full, redisKey(namespace, k))
	}
	if len(full) == 0 {
		return out, nil
	}

	vals, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[wanted[i]] = []byte(s)
		}
	}
	return out, nil
}

// PutAll writes every valid entry in one pipeline
func (c *RedisCache) PutAll(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	if isBlank(namespace) || len(values) == 0 {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	pipe := c.client.TxPipeline()
	for k, v := range values {
		if !validEntry(namespace, k, v) {
			continue
		}
		pipe.Set(ctx, redisKey(namespace, k), v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Remove deletes key
func (c *RedisCache) Remove(ctx context.Context, namespace, key string) error {
	if isBlank(namespace) || isBlank(key) {
		return nil
	}
	if err := c.client.Del(ctx, redisKey(namespace, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// RemoveAll deletes every key in namespace using SCAN
func (c *RedisCache) RemoveAll(ctx context.Context, namespace string) error {
	if isBlank(namespace) {
		return nil
	}
	pattern := redisKeyPrefix + ":" + strconv.Itoa(len(namespace)) + ":" + escapePattern(namespace) + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// RemoveKeys deletes keys with a single DEL
func (c *RedisCache) RemoveKeys(ctx context.Context, namespace string, keys []string) error {
	if isBlank(namespace) {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if !isBlank(k) {
			full = append(full, redisKey(namespace, k))
		}
	}
	if len(full) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// escapePattern escapes glob metacharacters for use in SCAN MATCH
func escapePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
