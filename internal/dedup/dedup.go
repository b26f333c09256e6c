// Package dedup suppresses duplicate submissions inside a short window.
// The cache is process-local; a restart clears it, which is acceptable
// because the ledger still rejects replayed work downstream.
package dedup

import (
	"sync"
	"time"
)

// Cache remembers recently seen submission identifiers.
type Cache struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// New creates a cache with the given suppression window.
func New(window time.Duration) *Cache {
	return &Cache{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Seen records the identifier and reports whether it was already present
// inside the window. The first call for an identifier returns false.
func (c *Cache) Seen(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if stamp, ok := c.seen[id]; ok && now.Sub(stamp) < c.window {
		return true
	}
	c.seen[id] = now
	return false
}

// Sweep drops entries older than the window and returns how many were
// removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, stamp := range c.seen {
		if now.Sub(stamp) >= c.window {
			delete(c.seen, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
