// Package cache is a small time-expiring key/value store used to keep
// spreadsheet reads off the network. Expired entries are dropped lazily on
// lookup; nothing runs in the background.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

type Cache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	entries    map[string]entry[V]
	generation uint64
	now        func() time.Time
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests use it to expire entries
// without sleeping.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the value for key if it is present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with a fresh expiry.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// Generation identifies the current invalidation epoch. It changes on every
// InvalidateAll.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfGeneration stores value only if no InvalidateAll happened since gen
// was observed. A read that started before a write must not repopulate the
// cache with what it saw.
func (c *Cache[V]) SetIfGeneration(gen uint64, key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.set(key, value)
	return true
}

// InvalidateAll drops every entry and starts a new generation.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.generation++
}

// Len counts stored entries, expired ones included until they are looked up.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) set(key string, value V) {
	c.entries[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
}
