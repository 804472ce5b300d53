// Package inflight provides the TTL-bounded set of request IDs the executor
// is currently working on. It is the only synchronization point preventing
// two concurrent ticks from relaying the same request.
package inflight

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// Defaults applied when New is given non-positive values.
const (
	DefaultCapacity = 1000
	DefaultTTL      = 30 * time.Second
)

// Cache is a thread-safe request-ID set with per-entry TTL and a hard
// capacity cap. Expiry is checked on read, no background sweep runs; the LRU
// evicts the least recently touched entry once the cap is reached.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache
	ttl     time.Duration

	now func() time.Time
}

// New creates a cache with the given capacity and default TTL. Non-positive
// arguments fall back to DefaultCapacity and DefaultTTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entries, _ := lru.New(capacity) // errors only on capacity <= 0
	return &Cache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Has reports whether id is in flight. Expired entries are dropped on the
// spot and reported as absent.
func (c *Cache) Has(id common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(id)
	if !ok {
		return false
	}
	if c.now().After(v.(time.Time)) {
		c.entries.Remove(id)
		return false
	}
	return true
}

// Set marks id as in flight for the given TTL (the cache default when ttl is
// non-positive). Setting an existing entry refreshes its deadline.
func (c *Cache) Set(id common.Hash, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(id, c.now().Add(ttl))
}

// Delete removes id so that a later tick may retry it.
func (c *Cache) Delete(id common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(id)
}

// Len returns the number of tracked entries, expired ones included until
// their next read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
