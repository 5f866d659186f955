package inflight

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// Cache tracks submission keys that are currently being processed. Entries
// expire after ttl even if never released, and the least recently used
// entry is evicted once maxEntries is reached.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	owner   string
	expires time.Time
}

func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		lru: lru.New(maxEntries),
		ttl: ttl,
		now: time.Now,
	}
}

// Acquire claims key for owner. It returns false when another live claim
// holds the key.
func (c *Cache) Acquire(key, owner string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if v, ok := c.lru.Get(key); ok {
		if e := v.(entry); now.Before(e.expires) {
			return false
		}
	}
	c.lru.Add(key, entry{owner: owner, expires: now.Add(c.ttl)})
	return true
}

// Release drops the claim if owner still holds it.
func (c *Cache) Release(key, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.lru.Get(key); ok && v.(entry).owner == owner {
		c.lru.Remove(key)
	}
}

// Holder returns the owner of a live claim.
func (c *Cache) Holder(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return "", false
	}
	e := v.(entry)
	if !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return "", false
	}
	return e.owner, true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
