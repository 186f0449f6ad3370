// Package storage holds the proxy's bounded in-memory response cache.
//
// The container owns its entries and keeps them in insertion order, head
// first; the recency counter is orthogonal to that order and is consulted
// only by the LRU policy. Lower recency is more recently touched.
package storage

import (
	"github.com/nilandasd/httpproxy/internal/constants"
	"github.com/nilandasd/httpproxy/metrics"
)

// Policy selects the replacement policy used once the cache is full.
type Policy int

const (
	FIFO Policy = iota
	LRU
)

func (p Policy) String() string {
	if p == LRU {
		return "lru"
	}
	return "fifo"
}

// ParsePolicy maps a config string onto a Policy. Anything but "lru" is FIFO.
func ParsePolicy(s string) Policy {
	if s == "lru" {
		return LRU
	}
	return FIFO
}

// Entry is one cached GET response.
type Entry struct {
	key          string
	lastModified [constants.LastModifiedLen]byte
	body         []byte
	recency      int
}

// NewEntry builds an entry for the given request target. The target is
// truncated to the cache-key width; lastModified must be the 29-byte value
// captured from the origin header.
func NewEntry(target string, lastModified []byte, body []byte) *Entry {
	e := &Entry{
		key:  Key(target),
		body: body,
	}
	copy(e.lastModified[:], lastModified)
	return e
}

// Key returns the cache key for a request target.
func Key(target string) string {
	if len(target) > constants.MaxKeyLen {
		return target[:constants.MaxKeyLen]
	}
	return target
}

func (e *Entry) Key() string { return e.key }

// Body returns the owned response body.
func (e *Entry) Body() []byte { return e.body }

// LastModified returns the entry's freshness fingerprint.
func (e *Entry) LastModified() []byte { return e.lastModified[:] }

// Recency returns the aging counter. Zero means most recently touched.
func (e *Entry) Recency() int { return e.recency }

// SameFingerprint reports whether lm matches the entry byte for byte.
func (e *Entry) SameFingerprint(lm []byte) bool {
	return string(e.lastModified[:]) == string(lm[:constants.LastModifiedLen])
}

// Refresh replaces the body and fingerprint after a revalidation showed the
// origin copy is newer.
func (e *Entry) Refresh(lastModified []byte, body []byte) {
	copy(e.lastModified[:], lastModified)
	e.body = body
}

// Cache is the bounded response store. It is not safe for concurrent use;
// the proxy serves one client at a time, so every access is ordered.
type Cache struct {
	entries []*Entry // entries[0] is the head, the most recent insertion
	cap     int
	policy  Policy
}

// NewCache builds a cache bounded to capacity entries. Capacity 0 disables
// admission entirely.
func NewCache(capacity int, policy Policy) *Cache {
	return &Cache{
		entries: make([]*Entry, 0, capacity),
		cap:     capacity,
		policy:  policy,
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int { return len(c.entries) }

// Cap returns the entry bound.
func (c *Cache) Cap() int { return c.cap }

// Policy returns the replacement policy.
func (c *Cache) Policy() Policy { return c.policy }

// Lookup scans for the entry matching the target's cache key.
func (c *Cache) Lookup(target string) *Entry {
	key := Key(target)
	for _, e := range c.entries {
		if e.key == key {
			return e
		}
	}
	return nil
}

// Remove unlinks and destroys the entry for the target, if present.
func (c *Cache) Remove(target string) bool {
	key := Key(target)
	for i, e := range c.entries {
		if e.key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			metrics.CacheEvents.WithLabelValues("remove").Inc()
			metrics.CacheEntries.Set(float64(len(c.entries)))
			return true
		}
	}
	return false
}

// TouchAll increments every entry's recency by one.
func (c *Cache) TouchAll() {
	for _, e := range c.entries {
		e.recency++
	}
}

// TouchEntry resets e's recency to zero. When it was non-zero every other
// entry is aged first, so the touched entry is strictly newest.
func (c *Cache) TouchEntry(e *Entry) {
	if e.recency != 0 {
		c.TouchAll()
		e.recency = 0
	}
}

// Admit places a new entry per the admission rule: plain insert below
// capacity, otherwise evict per policy. A zero-capacity cache admits
// nothing. The caller is responsible for the touch-all aging that precedes
// admission.
func (c *Cache) Admit(e *Entry) bool {
	switch {
	case c.cap == 0:
		return false
	case len(c.entries) < c.cap:
		c.insert(e)
	case c.policy == LRU:
		c.evictAndInsertLRU(e)
	default:
		c.evictAndInsertFIFO(e)
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return true
}

// insert prepends e at the head.
func (c *Cache) insert(e *Entry) {
	c.entries = append([]*Entry{e}, c.entries...)
	metrics.CacheEvents.WithLabelValues("insert").Inc()
}

// evictAndInsertLRU destroys the entry with the maximum recency, first such
// entry from the head on a tie, and splices the new entry into the vacated
// slot so every neighbour keeps its position.
func (c *Cache) evictAndInsertLRU(e *Entry) {
	victim := 0
	for i, cur := range c.entries {
		if cur.recency > c.entries[victim].recency {
			victim = i
		}
	}
	c.entries[victim] = e
	metrics.CacheEvents.WithLabelValues("evict_lru").Inc()
}

// evictAndInsertFIFO destroys the tail, the oldest insertion, and prepends
// the new entry at the head.
func (c *Cache) evictAndInsertFIFO(e *Entry) {
	c.entries = append([]*Entry{e}, c.entries[:len(c.entries)-1]...)
	metrics.CacheEvents.WithLabelValues("evict_fifo").Inc()
}

// Keys returns the cache keys head first. Used by tests; order is
// insertion order.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	return keys
}
