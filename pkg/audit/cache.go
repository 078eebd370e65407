package audit

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats reports recent-decision cache effectiveness.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Expired uint64 `json:"expired"`
	Size    int    `json:"size"`
}

type cacheEntry struct {
	rec       *Record
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// RecentCache keeps the most recent audit records in memory for admin
// lookups, keyed by request ID. Entries are bounded by size (LRU eviction)
// and by age. Records are stored as snapshots, so the recorder can keep
// joining outcomes without racing cache readers.
type RecentCache struct {
	cache *lru.Cache[string, *cacheEntry]
	ttl   time.Duration

	hits    atomic.Uint64
	misses  atomic.Uint64
	expired atomic.Uint64
}

// NewRecentCache creates a cache holding up to size records. A zero ttl
// disables age-based expiry.
func NewRecentCache(size int, ttl time.Duration) (*RecentCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	inner, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create recent-decision cache: %w", err)
	}
	return &RecentCache{cache: inner, ttl: ttl}, nil
}

// Add inserts or replaces the record for its request ID.
func (c *RecentCache) Add(rec *Record) {
	entry := &cacheEntry{rec: rec}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.cache.Add(rec.RequestID, entry)
}

// Get returns the record for a request ID, dropping it if expired.
func (c *RecentCache) Get(requestID string) (*Record, bool) {
	entry, ok := c.cache.Get(requestID)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if entry.expired(time.Now()) {
		c.cache.Remove(requestID)
		c.expired.Add(1)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.rec, true
}

// Remove deletes the record for a request ID, if present.
func (c *RecentCache) Remove(requestID string) {
	c.cache.Remove(requestID)
}

// Recent returns up to n unexpired records, most recently touched first.
// It does not refresh recency.
func (c *RecentCache) Recent(n int) []*Record {
	if n <= 0 {
		return nil
	}

	// Keys are ordered oldest to newest; walk backward.
	keys := c.cache.Keys()
	now := time.Now()

	records := make([]*Record, 0, min(n, len(keys)))
	for i := len(keys) - 1; i >= 0 && len(records) < n; i-- {
		entry, ok := c.cache.Peek(keys[i])
		if !ok || entry.expired(now) {
			continue
		}
		records = append(records, entry.rec)
	}
	return records
}

// Len returns the number of cached entries, including unexpired ones that
// have not been read since passing their TTL.
func (c *RecentCache) Len() int {
	return c.cache.Len()
}

// Stats snapshots the cache counters.
func (c *RecentCache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Expired: c.expired.Load(),
		Size:    c.cache.Len(),
	}
}
