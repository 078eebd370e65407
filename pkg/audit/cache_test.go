package audit

import (
	"testing"
	"time"
)

func TestRecentCacheAddGet(t *testing.T) {
	c, err := NewRecentCache(8, 0)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	rec := newTestRecord("req-1", time.Now())
	c.Add(rec)

	got, ok := c.Get("req-1")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.ArmID != rec.ArmID {
		t.Errorf("expected arm %s, got %s", rec.ArmID, got.ArmID)
	}

	if _, ok := c.Get("req-missing"); ok {
		t.Error("expected a miss for an unknown request")
	}
}

func TestRecentCacheReplacesSameRequest(t *testing.T) {
	c, err := NewRecentCache(8, 0)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	pending := newTestRecord("req-1", time.Now())
	pending.State = "awaiting_outcome"
	c.Add(pending)

	completed := newTestRecord("req-1", time.Now())
	completed.State = "complete"
	c.Add(completed)

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	got, ok := c.Get("req-1")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.State != "complete" {
		t.Errorf("expected the completed record, got state %s", got.State)
	}
}

func TestRecentCacheEvictsOldest(t *testing.T) {
	c, err := NewRecentCache(2, 0)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	base := time.Now()
	c.Add(newTestRecord("req-1", base))
	c.Add(newTestRecord("req-2", base))
	c.Add(newTestRecord("req-3", base))

	if _, ok := c.Get("req-1"); ok {
		t.Error("expected the oldest entry to be evicted")
	}
	if _, ok := c.Get("req-3"); !ok {
		t.Error("expected the newest entry to survive")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestRecentCacheTTLExpiry(t *testing.T) {
	c, err := NewRecentCache(8, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	c.Add(newTestRecord("req-1", time.Now()))

	if _, ok := c.Get("req-1"); !ok {
		t.Fatal("expected a hit before the TTL")
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("req-1"); ok {
		t.Error("expected the entry to expire")
	}

	stats := c.Stats()
	if stats.Expired != 1 {
		t.Errorf("expected 1 expired entry, got %d", stats.Expired)
	}
}

func TestRecentCacheRecent(t *testing.T) {
	c, err := NewRecentCache(8, 0)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	base := time.Now()
	c.Add(newTestRecord("req-1", base))
	c.Add(newTestRecord("req-2", base))
	c.Add(newTestRecord("req-3", base))

	records := c.Recent(2)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RequestID != "req-3" || records[1].RequestID != "req-2" {
		t.Errorf("expected newest first, got %v", requestIDs(records))
	}

	if got := c.Recent(0); got != nil {
		t.Errorf("expected nil for a non-positive n, got %v", got)
	}

	if got := c.Recent(10); len(got) != 3 {
		t.Errorf("expected all 3 records, got %d", len(got))
	}
}

func TestRecentCacheRemove(t *testing.T) {
	c, err := NewRecentCache(8, 0)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	c.Add(newTestRecord("req-1", time.Now()))
	c.Remove("req-1")

	if _, ok := c.Get("req-1"); ok {
		t.Error("expected the entry to be gone")
	}

	// Removing an absent key is a no-op.
	c.Remove("req-missing")
}

func TestRecentCacheStats(t *testing.T) {
	c, err := NewRecentCache(8, 0)
	if err != nil {
		t.Fatalf("NewRecentCache failed: %v", err)
	}

	c.Add(newTestRecord("req-1", time.Now()))
	c.Get("req-1")
	c.Get("req-1")
	c.Get("req-missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.Size != 1 {
		t.Errorf("expected size 1, got %d", stats.Size)
	}
}

func TestNewRecentCacheRejectsNonPositiveSize(t *testing.T) {
	if _, err := NewRecentCache(0, 0); err == nil {
		t.Error("expected an error for size 0")
	}
	if _, err := NewRecentCache(-5, 0); err == nil {
		t.Error("expected an error for a negative size")
	}
}
