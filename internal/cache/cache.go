// Package cache is a bounded in-memory cache with a fixed time-to-live.
//
// Entries are ordered by insertion time only. Get never refreshes an entry,
// and a full cache makes room by dropping the oldest insert.
package cache

import (
	"fmt"
	"sync"
	"time"
)

type item[V any] struct {
	val     V
	created time.Time
	seq     uint64 // tie-break for identical timestamps
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]item[V]
	capacity int
	ttl      time.Duration
	now      func() time.Time
	seq      uint64

	hits, misses, evictions, expired uint64
}

// New returns a cache holding at most capacity entries for ttl each.
// A non-positive capacity is treated as 1.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Cache[K, V]{
		items:    make(map[K]item[V], max(capacity, 1)),
		capacity: max(capacity, 1),
		ttl:      ttl,
		now:      o.now,
	}
}

// Get returns the value for k. An entry older than the TTL is removed and
// reported as absent.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[k]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if c.stale(it, c.now()) {
		delete(c.items, k)
		c.expired++
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return it.val, true
}

// Put stores v under k, replacing any previous value and its age. When the
// cache is full and k is new, the oldest entry is evicted first.
func (c *Cache[K, V]) Put(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[k]; !exists && len(c.items) >= c.capacity {
		c.removeOldestLocked()
	}
	c.seq++
	c.items[k] = item[V]{val: v, created: c.now(), seq: c.seq}
	if len(c.items) > c.capacity {
		panic(fmt.Sprintf("cache: size %d exceeds capacity %d", len(c.items), c.capacity))
	}
}

// EvictExpired removes every entry older than the TTL and returns the count.
func (c *Cache[K, V]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, it := range c.items {
		if c.stale(it, now) {
			delete(c.items, k)
			n++
		}
	}
	c.expired += uint64(n)
	return n
}

// EvictOldestUntil removes oldest entries until at most target remain and
// returns the count. It is a no-op when the cache is already small enough.
func (c *Cache[K, V]) EvictOldestUntil(target int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	target = max(target, 0)
	n := 0
	for len(c.items) > target {
		if !c.removeOldestLocked() {
			break
		}
		n++
	}
	return n
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K, V]) Cap() int { return c.capacity }

func (c *Cache[K, V]) TTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl
}

// SetTTL changes the TTL for existing and future entries.
func (c *Cache[K, V]) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

func (c *Cache[K, V]) stale(it item[V], now time.Time) bool {
	return now.Sub(it.created) > c.ttl
}

// removeOldestLocked scans every entry; capacity is small.
func (c *Cache[K, V]) removeOldestLocked() bool {
	var (
		oldestKey K
		oldest    item[V]
		found     bool
	)
	for k, it := range c.items {
		if !found || it.created.Before(oldest.created) || (it.created.Equal(oldest.created) && it.seq < oldest.seq) {
			oldestKey, oldest, found = k, it, true
		}
	}
	if found {
		delete(c.items, oldestKey)
		c.evictions++
	}
	return found
}
