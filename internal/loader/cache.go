package loader

import (
	"sync"
	"time"

	"github.com/i474232898/energy-dashboard/internal/metrics"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a process-wide memo of values keyed by a parameter tuple, each
// entry living for a fixed TTL.
type Cache[V any] struct {
	name string
	ttl  time.Duration

	mu      sync.Mutex
	entries map[string]entry[V]

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// NewCache creates a cache whose entries expire ttl after being set.
func NewCache[V any](name string, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		name:    name,
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		Now:     time.Now,
	}
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.Now().Before(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		var zero V
		return zero, false
	}
	metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, expires: c.Now().Add(c.ttl)}
}

// Invalidate drops every entry.
func (c *Cache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
}

// PurgeExpired drops entries whose TTL has passed and returns how many were removed.
func (c *Cache[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, live or not yet purged.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
