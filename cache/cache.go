// Package cache implements the per-group plan cache (spec §4.3): a
// hash-keyed associative cache over a fixed-size cache-line key, with
// bounded size and an eviction policy that skips persistent entries.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package cache

import (
	"sync"

	"github.com/OneOfOne/xxhash"
)

// KeySize is the cache-line size spec §4.3 truncates the collective
// params struct to before hashing.
const KeySize = 64

// Key is a fixed-size snapshot of the params that select a plan:
// collective type, group placement, and whatever else the lowerer
// needs to treat two calls as cache-equivalent.
type Key [KeySize]byte

// Fingerprint hashes a Key down to the 64-bit bucket index, via
// xxhash — the same hash family the teacher itself reaches for
// (ais/tests/multiproxy_test.go's xxhash.ChecksumString64S) for a
// cheap non-cryptographic digest, exactly what a cache lookup wants.
func Fingerprint(k Key) uint64 {
	h := xxhash.New64()
	h.Write(k[:])
	return h.Sum64()
}

// Entry is one cached plan. Plan is kept as interface{} to avoid an
// import cycle: the cache package doesn't know about ucg.Plan, only
// that it's something the owner can discard.
type Entry struct {
	Key        Key
	Plan       interface{}
	Persistent bool // spec §4.3: PERSISTENT-modifier plans are never evicted

	fp    uint64
	older *Entry
	newer *Entry
}

// Cache is a per-group bounded plan cache. Zero value is not usable;
// construct with New.
type Cache struct {
	mu      sync.Mutex
	limit   int
	byFP    map[uint64][]*Entry
	oldest  *Entry // LRU doubly-linked list over non-persistent entries, insertion order
	newest  *Entry
	count   int
}

// New returns a Cache bounded to hold at most limit non-persistent
// entries (persistent entries don't count against the limit, matching
// spec §4.3's "never evicted").
func New(limit int) *Cache {
	return &Cache{limit: limit, byFP: make(map[uint64][]*Entry)}
}

// Lookup returns the cached plan for key, or ok=false on a miss —
// callers invoke the lowerer themselves and then call Insert.
func (c *Cache) Lookup(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp := Fingerprint(key)
	for _, e := range c.byFP[fp] {
		if e.Key == key {
			return e.Plan, true
		}
	}
	return nil, false
}

// Insert adds plan under key. If inserting a non-persistent entry
// would exceed the configured limit, the oldest non-persistent entry
// is evicted first via onEvict, which may be nil.
func (c *Cache) Insert(key Key, plan interface{}, persistent bool, onEvict func(evicted interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp := Fingerprint(key)
	e := &Entry{Key: key, Plan: plan, Persistent: persistent, fp: fp}
	c.byFP[fp] = append(c.byFP[fp], e)

	if persistent {
		return
	}
	if c.limit > 0 && c.count >= c.limit {
		c.evictOldestLocked(onEvict)
	}
	c.pushNewestLocked(e)
	c.count++
}

// evictOldestLocked walks backward from the oldest entry until it
// finds a non-persistent one to discard (spec §4.3: "an attempted
// eviction walks backward one entry" past any persistent plan it
// meets).
func (c *Cache) evictOldestLocked(onEvict func(interface{})) {
	e := c.oldest
	for e != nil && e.Persistent {
		e = e.newer
	}
	if e == nil {
		return
	}
	c.unlinkLocked(e)
	c.removeFromBucketLocked(e)
	c.count--
	if onEvict != nil {
		onEvict(e.Plan)
	}
}

func (c *Cache) pushNewestLocked(e *Entry) {
	e.older = c.newest
	if c.newest != nil {
		c.newest.newer = e
	}
	c.newest = e
	if c.oldest == nil {
		c.oldest = e
	}
}

func (c *Cache) unlinkLocked(e *Entry) {
	if e.older != nil {
		e.older.newer = e.newer
	} else {
		c.oldest = e.newer
	}
	if e.newer != nil {
		e.newer.older = e.older
	} else {
		c.newest = e.older
	}
	e.older, e.newer = nil, nil
}

func (c *Cache) removeFromBucketLocked(e *Entry) {
	bucket := c.byFP[e.fp]
	for i, cand := range bucket {
		if cand == e {
			c.byFP[e.fp] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(c.byFP[e.fp]) == 0 {
		delete(c.byFP, e.fp)
	}
}

// Remove deletes the entry for key unconditionally, including a
// persistent one — the explicit `collective_destroy(plan)` path for
// persistent plans (spec §6), as opposed to Insert's automatic
// eviction which never touches a persistent entry on its own.
func (c *Cache) Remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp := Fingerprint(key)
	for _, e := range c.byFP[fp] {
		if e.Key == key {
			if !e.Persistent {
				c.unlinkLocked(e)
				c.count--
			}
			c.removeFromBucketLocked(e)
			return true
		}
	}
	return false
}

// Len returns the number of non-persistent entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
