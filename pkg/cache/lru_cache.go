package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is an in-process Cache used when no Redis is configured, and as
// the deployment-free default in tests and the worker binary. Values are
// JSON round-tripped so behavior matches the Redis backend.
type LRUCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRUCache creates an in-process cache holding at most size entries, each
// expiring after ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get retrieves a value from the cache
func (c *LRUCache) Get(ctx context.Context, key string, value interface{}) error {
	data, ok := c.lru.Get(key)
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, value)
}

// Set stores a value in the cache. The per-entry ttl is bounded by the
// cache-wide ttl given at construction.
func (c *LRUCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.lru.Add(key, data)
	return nil
}

// Delete removes a value from the cache
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Exists checks if a key exists in the cache
func (c *LRUCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.lru.Contains(key), nil
}

// Flush clears all values from the cache
func (c *LRUCache) Flush(ctx context.Context) error {
	c.lru.Purge()
	return nil
}

// Close implements Cache.
func (c *LRUCache) Close() error { return nil }
