package middleware

import (
	"sync"
	"time"
)

// Cache is an in-memory map whose entries expire. The OIDC middleware keeps
// token introspection results in one.
type Cache[V any] struct {
	items map[string]cacheItem[V]
	mu    sync.RWMutex
}

type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{
		items: make(map[string]cacheItem[V]),
	}
}

// Set stores value under key for the given duration.
func (c *Cache[V]) Set(key string, value V, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem[V]{
		value:      value,
		expiration: time.Now().Add(duration),
	}
}

// Get returns the value stored under key unless it has expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found || time.Now().After(item.expiration) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// CleanupExpired removes expired items from the cache.
func (c *Cache[V]) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
