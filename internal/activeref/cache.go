// Package activeref implements the bounded, insertion-ordered active
// reference caches described in §4.4: one for likes, one for reposts,
// each mapping a "<did>/<rkey>" reference key to the numeric post id it
// targets. Capacity is enforced by an LRU so overflow silently falls
// back to the KV store on the next lookup, rather than by evicting the
// underlying KV row.
package activeref

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a fixed-capacity active-reference cache.
type Cache struct {
	lru      *lru.Cache[string, uint64]
	capacity int
}

// New creates a cache with the given capacity.
func New(capacity int) (*Cache, error) {
	c, err := lru.New[string, uint64](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c, capacity: capacity}, nil
}

// Get resolves a reference key to a post id, promoting it to
// most-recently-used on hit.
func (c *Cache) Get(ref string) (uint64, bool) {
	return c.lru.Get(ref)
}

// Set inserts ref at the most-recently-used position, evicting the
// least-recently-used entry if the cache is at capacity. The evicted
// entry's KV row is left untouched (§4.4, §9) — it remains the durable
// fallback for the next delete lookup.
func (c *Cache) Set(ref string, postID uint64) {
	c.lru.Add(ref, postID)
}

// Remove deletes ref from the cache, if present.
func (c *Cache) Remove(ref string) {
	c.lru.Remove(ref)
}

// Len reports the current occupancy.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Cap reports the configured capacity.
func (c *Cache) Cap() int {
	return c.capacity
}

// RemoveWhere scans every entry and removes those whose post id is in
// targetIDs, returning the removed reference keys. Used by the pruner's
// cascade (§4.6) to purge active-cache entries for posts that were
// evicted from the tally.
func (c *Cache) RemoveWhere(targetIDs map[uint64]struct{}) []string {
	var removed []string
	for _, ref := range c.lru.Keys() {
		id, ok := c.lru.Peek(ref)
		if !ok {
			continue
		}
		if _, hit := targetIDs[id]; hit {
			c.lru.Remove(ref)
			removed = append(removed, ref)
		}
	}
	return removed
}
