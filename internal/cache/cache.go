// Package cache implements the cache-through store shared by the Tranco,
// VirusTotal, and WHOIS clients (C6-C8): positive and negative TTL entries
// with LRU eviction, and a singleflight in front of the remote call so a
// burst of requests for the same key only issues one upstream lookup.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	key       string
	value     any
	err       error
	expiresAt time.Time
	elem      *list.Element
}

// TTLCache is a generic, size-bounded, TTL-expiring cache. Safe for
// concurrent use.
type TTLCache struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *list.List
	maxItems int
	group    singleflight.Group
	now      func() time.Time
}

// New returns a TTLCache holding at most maxItems entries, evicting the
// least-recently-used entry once full.
func New(maxItems int) *TTLCache {
	return &TTLCache{
		items:    make(map[string]*entry),
		order:    list.New(),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache) Get(key string) (value any, err error, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.items[key]
	if !found {
		return nil, nil, false
	}
	if c.now().After(e.expiresAt) {
		c.removeLocked(e)
		return nil, nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.value, e.err, true
}

// Set stores value (or err, for a negative cache entry) under key with the
// given TTL.
func (c *TTLCache) Set(key string, value any, err error, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.items[key]; ok {
		c.removeLocked(existing)
	}
	e := &entry{key: key, value: value, err: err, expiresAt: c.now().Add(ttl)}
	e.elem = c.order.PushFront(e)
	c.items[key] = e

	for c.maxItems > 0 && len(c.items) > c.maxItems {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}
}

func (c *TTLCache) removeLocked(e *entry) {
	delete(c.items, e.key)
	c.order.Remove(e.elem)
}

// Fetch implements the full cache-through contract: on hit, return
// immediately; on miss, run load exactly once across concurrent callers for
// the same key (via singleflight), cache the outcome under the positive or
// negative TTL, and return it.
func (c *TTLCache) Fetch(ctx context.Context, key string, positiveTTL, negativeTTL time.Duration, load func(context.Context) (any, error)) (any, error) {
	if v, err, ok := c.Get(key); ok {
		return v, err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, loadErr := load(ctx)
		ttl := positiveTTL
		if loadErr != nil {
			ttl = negativeTTL
		}
		c.Set(key, result, loadErr, ttl)
		return result, loadErr
	})
	return v, err
}

// Len reports the current number of stored entries, including expired ones
// not yet removed by Get or Purge.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge removes all expired entries, intended to be called periodically by
// a background janitor goroutine.
func (c *TTLCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for e := c.order.Back(); e != nil; {
		prev := e.Prev()
		ent := e.Value.(*entry)
		if now.After(ent.expiresAt) {
			c.removeLocked(ent)
			removed++
		}
		e = prev
	}
	return removed
}
