package assets

import (
	"sync"
	"time"
)

type cacheKey struct {
	tenantID int64
	logoURL  string
}

type cacheEntry struct {
	html     string
	storedAt time.Time
}

// footerCache is a bounded TTL cache. When full it drops expired entries
// first, then the oldest one.
type footerCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
	maxSize int
	ttl     time.Duration
}

func newFooterCache(maxSize int, ttl time.Duration) *footerCache {
	return &footerCache{
		entries: make(map[cacheKey]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *footerCache) get(key cacheKey) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Since(entry.storedAt) > c.ttl {
		return "", false
	}
	return entry.html, true
}

func (c *footerCache) set(key cacheKey, html string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{html: html, storedAt: time.Now()}
}

func (c *footerCache) clear() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
}

func (c *footerCache) evictLocked() {
	var (
		oldestKey cacheKey
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if time.Since(e.storedAt) > c.ttl {
			delete(c.entries, k)
			continue
		}
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if len(c.entries) >= c.maxSize && found {
		delete(c.entries, oldestKey)
	}
}
