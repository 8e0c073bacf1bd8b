package api

import (
	"sync"
	"time"

	"github.com/sweeney/tigerwatch/internal/clock"
)

// DefaultCacheTTL is how long an unused cached response is kept.
const DefaultCacheTTL = 60 * time.Second

// Cache holds raw GET response bodies keyed by URL. Each entry carries tags;
// invalidating a tag drops every entry that carries it. Safe for
// concurrent use.
type Cache struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	tags    []string
	expires time.Time
}

// NewCache returns a cache whose entries expire after ttl. A ttl of zero
// or less disables caching.
func NewCache(c clock.Clock, ttl time.Duration) *Cache {
	if c == nil {
		c = clock.Real()
	}
	return &Cache{clock: c, ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached body for key if present and fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

// Put stores body under key with the given tags.
func (c *Cache) Put(key string, body []byte, tags ...string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		body:    body,
		tags:    tags,
		expires: c.clock.Now().Add(c.ttl),
	}
}

// Invalidate drops every entry carrying any of tags and returns how many
// entries were dropped.
func (c *Cache) Invalidate(tags ...string) int {
	if len(tags) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		for _, t := range e.tags {
			if _, hit := want[t]; hit {
				delete(c.entries, key)
				n++
				break
			}
		}
	}
	return n
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of entries, including stale ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
