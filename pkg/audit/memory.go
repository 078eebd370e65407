package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultMemoryMaxRecords bounds the in-memory backend when no explicit
// capacity is given.
const DefaultMemoryMaxRecords = 10000

// MemoryStorage keeps audit records in a fixed-capacity in-memory ring:
// once full, each new record overwrites the oldest. Suited to development
// and tests; everything is lost on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*Record
	head    int // index of the oldest record once the ring is full
	max     int
}

// NewMemoryStorage creates an in-memory backend holding up to maxRecords.
// Zero or negative uses DefaultMemoryMaxRecords.
func NewMemoryStorage(maxRecords int) *MemoryStorage {
	if maxRecords <= 0 {
		maxRecords = DefaultMemoryMaxRecords
	}
	return &MemoryStorage{
		records: make([]*Record, 0, 64),
		max:     maxRecords,
	}
}

// Store persists one record, overwriting the oldest when the ring is full.
func (s *MemoryStorage) Store(ctx context.Context, record *Record) error {
	if record == nil {
		return NewStorageError("memory", "store", ErrNilRecord)
	}

	cp := *record

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) < s.max {
		s.records = append(s.records, &cp)
		return nil
	}
	s.records[s.head] = &cp
	s.head = (s.head + 1) % s.max
	return nil
}

// Query retrieves matching records with sorting and pagination applied.
func (s *MemoryStorage) Query(ctx context.Context, query *Query) ([]*Record, error) {
	if query == nil {
		query = &Query{}
	}

	s.mu.RLock()
	var matched []*Record
	for _, rec := range s.ordered() {
		if matchesQuery(rec, query) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	if err := sortRecords(matched, query); err != nil {
		return nil, NewStorageError("memory", "query", err)
	}

	offset := query.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []*Record{}, nil
	}
	matched = matched[offset:]

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	// Hand out copies so callers cannot mutate stored records.
	out := make([]*Record, len(matched))
	for i, rec := range matched {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

// Count returns how many records match the filters.
func (s *MemoryStorage) Count(ctx context.Context, query *Query) (int64, error) {
	if query == nil {
		query = &Query{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, rec := range s.records {
		if matchesQuery(rec, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes matching records and returns how many went.
func (s *MemoryStorage) Delete(ctx context.Context, query *Query) (int64, error) {
	if query == nil {
		query = &Query{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*Record, 0, len(s.records))
	var deleted int64
	for _, rec := range s.ordered() {
		if matchesQuery(rec, query) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	s.head = 0
	return deleted, nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStorage) Close() error {
	return nil
}

// Size returns the number of stored records. Intended for tests.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes all records. Intended for tests.
func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
	s.head = 0
}

// ordered returns the ring contents oldest first. Callers hold s.mu.
func (s *MemoryStorage) ordered() []*Record {
	out := make([]*Record, 0, len(s.records))
	if len(s.records) < s.max {
		return append(out, s.records...)
	}
	out = append(out, s.records[s.head:]...)
	return append(out, s.records[:s.head]...)
}

// matchesQuery reports whether a record passes every filter in the query.
func matchesQuery(rec *Record, q *Query) bool {
	if q.StartTime != nil && rec.DecidedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && rec.DecidedAt.After(*q.EndTime) {
		return false
	}
	if q.RequestID != "" && rec.RequestID != q.RequestID {
		return false
	}
	if q.TenantID != "" && rec.TenantID != q.TenantID {
		return false
	}
	if q.ArmID != "" && rec.ArmID != q.ArmID {
		return false
	}
	if q.PolicyID != "" && rec.PolicyID != q.PolicyID {
		return false
	}
	if q.VariantID != "" && rec.VariantID != q.VariantID {
		return false
	}
	if q.MinReward != nil && rec.Reward < *q.MinReward {
		return false
	}
	if q.MaxReward != nil && rec.Reward > *q.MaxReward {
		return false
	}
	if q.Fallback != nil && rec.Fallback != *q.Fallback {
		return false
	}
	if q.Explored != nil && rec.Explored != *q.Explored {
		return false
	}
	return true
}

// sortRecords orders records in place per the query's sort fields.
func sortRecords(records []*Record, query *Query) error {
	var less func(a, b *Record) bool
	switch query.SortBy {
	case "", "decided_at":
		less = func(a, b *Record) bool { return a.DecidedAt.Before(b.DecidedAt) }
	case "reward":
		less = func(a, b *Record) bool { return a.Reward < b.Reward }
	case "cost":
		less = func(a, b *Record) bool { return a.Cost < b.Cost }
	case "latency_ms":
		less = func(a, b *Record) bool { return a.LatencyMS < b.LatencyMS }
	default:
		return fmt.Errorf("unsupported sort column %q", query.SortBy)
	}

	ascending := false
	switch query.SortOrder {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		return fmt.Errorf("unsupported sort order %q", query.SortOrder)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if ascending {
			return less(records[i], records[j])
		}
		return less(records[j], records[i])
	})
	return nil
}
