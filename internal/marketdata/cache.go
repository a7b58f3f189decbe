package marketdata

import (
	"sync"
	"time"
)

// Cache is the thread-safe store of the latest dataset per key.
// Readers always receive copies; the stored slice is never handed out.
type Cache struct {
	mu       sync.RWMutex
	entries  map[Key]*entry
	interval IntervalFunc
	now      func() time.Time
}

type entry struct {
	data      Dataset
	fetchedAt time.Time
}

func NewCache(interval IntervalFunc) *Cache {
	if interval == nil {
		interval = UpdateInterval
	}
	return &Cache{
		entries:  make(map[Key]*entry),
		interval: interval,
		now:      time.Now,
	}
}

// Put replaces the entry for key and stamps it with the current time.
func (c *Cache) Put(key Key, data Dataset) {
	e := &entry{data: data.clone(), fetchedAt: c.now()}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Get returns a copy of the dataset for key if it is no older than MaxAge(key.Timeframe).
func (c *Cache) Get(key Key) (Dataset, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	// entries are replaced, never mutated, so reading e outside the lock is safe
	if c.now().Sub(e.fetchedAt) > maxAge(c.interval, key.Timeframe) {
		return nil, false
	}
	return e.data.clone(), true
}

// Age returns how long ago key was last written.
func (c *Cache) Age(key Key) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.fetchedAt), true
}

// Evict removes the entry for key.
func (c *Cache) Evict(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// has reports whether an entry (fresh or stale) is stored for key.
func (c *Cache) has(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
}
