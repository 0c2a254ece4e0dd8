package github

import (
	"sync"
	"time"
)

// Cache stores recent fetch results per username.
//
// It's an interface, not a concrete map, so the client can be handed a
// different implementation (a shared cache in a multi-process deployment, or
// a stub that always misses in tests). The cache is purely an optimisation —
// never a source of truth — so losing it costs API calls, not data.
type Cache interface {
	Get(username string) ([]PullRequest, bool)
	Set(username string, prs []PullRequest)
}

// MemoryCache is the default Cache: an in-process map with a TTL.
//
// Entries are not evicted in the background; a stale entry is simply treated
// as a miss on the next Get and overwritten on the next Set. At one entry per
// participant this stays small enough that a janitor goroutine isn't worth
// its complexity.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is stubbed in tests to control expiry without sleeping.
	now func() time.Time
}

type cacheEntry struct {
	prs       []PullRequest
	fetchedAt time.Time
}

// NewMemoryCache creates a MemoryCache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached result for username if one exists and is younger
// than the TTL.
func (c *MemoryCache) Get(username string) ([]PullRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[username]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, username)
		return nil, false
	}
	return e.prs, true
}

// Set stores a fetch result for username, stamped with the current time.
func (c *MemoryCache) Set(username string, prs []PullRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[username] = cacheEntry{prs: prs, fetchedAt: c.now()}
}
