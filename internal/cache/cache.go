// Package cache provides the time-boxed in-memory cache of expanded
// occurrences per feed, so repeated recomputes inside the TTL do not
// refetch and re-expand every feed.
package cache

import (
	"sync"
	"time"

	"calnotes/internal/model"
)

// DefaultTTL bounds how long a feed's expanded occurrences are reused.
const DefaultTTL = 5 * time.Minute

// Key identifies one cached expansion. Window bounds are part of the key
// so a widened window never serves stale truncated results.
type Key struct {
	URL              string
	WindowStart      int64 // Unix seconds
	WindowEnd        int64
	IncludeCancelled bool
}

// NewKey builds a Key from a feed URL and window.
func NewKey(url string, windowStart, windowEnd time.Time, includeCancelled bool) Key {
	return Key{
		URL:              url,
		WindowStart:      windowStart.Unix(),
		WindowEnd:        windowEnd.Unix(),
		IncludeCancelled: includeCancelled,
	}
}

type entry struct {
	occurrences []model.Occurrence
	storedAt    time.Time
}

// Cache is safe for concurrent use. Fetch failures must not be stored:
// callers only Put successful expansions, so an empty cached slice always
// means "feed really had no events in window".
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]entry

	// now is swappable for tests.
	now func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[Key]entry),
		now:     time.Now,
	}
}

// Get returns the cached occurrences for key, or false when absent or
// expired. Expired entries are dropped on access.
func (c *Cache) Get(key Key) ([]model.Occurrence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.occurrences, true
}

// Put stores a successful expansion for key.
func (c *Cache) Put(key Key, occs []model.Occurrence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{occurrences: occs, storedAt: c.now()}
}

// Invalidate drops every entry, forcing the next cycle to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry)
}
