package utils

import (
	"context"
	"sync"
	"time"
)

// DedupCache remembers keys for a TTL so repeated frames (radio retransmits,
// webhook retries) are processed once. It is safe for concurrent use.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	data    map[string]time.Time
	sweepAt int // Mark drops expired keys once the map reaches this size
}

const minSweepAt = 1024

// NewDedupCache creates a cache with the given TTL. If ttl <= 0, it defaults to 10m.
func NewDedupCache(ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DedupCache{ttl: ttl, now: time.Now, data: make(map[string]time.Time, 256), sweepAt: minSweepAt}
}

// Seen reports whether key was marked within the TTL. It does not mark it.
func (c *DedupCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.data[key]
	if !ok {
		return false
	}
	if c.now().Sub(at) > c.ttl {
		delete(c.data, key)
		return false
	}
	return true
}

// Mark records key with the current time. When the map has grown past its
// sweep threshold, expired keys are dropped first, so the cache stays bounded by
// the number of keys marked within one TTL.
func (c *DedupCache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.data) >= c.sweepAt {
		c.purgeLocked(now)
		c.sweepAt = max(2*len(c.data), minSweepAt)
	}
	c.data[key] = now
}

// Purge drops expired keys and returns how many remain.
func (c *DedupCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(c.now())
	return len(c.data)
}

func (c *DedupCache) purgeLocked(now time.Time) {
	for k, at := range c.data {
		if now.Sub(at) > c.ttl {
			delete(c.data, k)
		}
	}
}

// Len returns the number of keys held, expired or not.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// RunJanitor calls Purge every interval until ctx is done.
func (c *DedupCache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// SetTTL updates the cache TTL for subsequent checks.
func (c *DedupCache) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}
