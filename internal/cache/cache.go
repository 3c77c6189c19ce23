// Package cache provides an in-memory key/value store with per-entry expiry
// for the workrelay batching layer.
//
// The cache short-circuits repeated reads against the remote workspace API
// within a bounded freshness window. It supplies mechanism only: entries expire
// by TTL and can be deleted explicitly, while the decision of when to
// invalidate (write-invalidate policy) belongs to the batch coordinator.
//
// EXPIRY MODEL:
//   - Lazy: an expired entry is never returned by Get, regardless of whether
//     the sweeper has run
//   - Active: a background sweep goroutine periodically removes expired entries
//     so memory is reclaimed even for keys that are never read again
//
// The cache holds arbitrary in-process values and is guarded by its own mutex,
// kept separate from the performance monitor's lock to avoid contention
// between unrelated concerns.
package cache

import (
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper scans for expired
// entries. Lazy expiry on Get keeps correctness independent of this value.
const DefaultSweepInterval = 30 * time.Second

// entry pairs a stored value with its absolute expiry deadline.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL-bounded key/value store safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a cache and starts its background sweeper with the default
// interval. Call Close to stop the sweeper when the cache is discarded.
func New() *Cache {
	return NewWithSweepInterval(DefaultSweepInterval)
}

// NewWithSweepInterval creates a cache whose sweeper runs at the given
// interval. Intervals <= 0 disable the sweeper entirely; expiry then relies
// on lazy checks in Get.
func NewWithSweepInterval(interval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}

	if interval > 0 {
		c.wg.Add(1)
		go c.sweep(interval)
	}

	return c
}

// Get returns the value stored under key if present and unexpired. An expired
// entry is removed and reported as a miss; it is never returned past its
// deadline.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		// Re-check under the write lock: a concurrent Set may have refreshed
		// the entry between the read check and now.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Set stores or replaces the entry for key with expiry now+ttl. A replace
// keeps the single-entry-per-key invariant: the old value is gone immediately.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
}

// Delete removes the entry for key if present. Deleting an absent key is a
// no-op, which lets the coordinator invalidate unconditionally on writes.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries currently stored, including entries that
// have expired but not yet been swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Close stops the background sweeper. Safe to call multiple times. The cache
// remains usable after Close; only active expiry stops.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// sweep periodically removes expired entries until Close is called.
func (c *Cache) sweep(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired deletes every entry past its deadline.
func (c *Cache) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
