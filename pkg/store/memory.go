package store

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process SessionCache. Entries expire ttl after their
// last Put; a zero ttl keeps them forever.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	sess    Session
	expires time.Time
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Put(_ context.Context, s Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{sess: s}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[s.ID] = e
	return nil
}

func (c *MemoryCache) Get(_ context.Context, id string) (Session, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if c.expired(e) {
		c.mu.Lock()
		if cur, ok := c.entries[id]; ok && c.expired(cur) {
			delete(c.entries, id)
		}
		c.mu.Unlock()
		return Session{}, false, nil
	}
	return e.sess, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *MemoryCache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many entries are held, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}
