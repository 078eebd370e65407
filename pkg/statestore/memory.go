package statestore

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store for tests and single-shot runs.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]PolicyCheckpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]PolicyCheckpoint)}
}

// Load returns the stored checkpoint, or (nil, nil) if absent.
func (s *MemoryStore) Load(ctx context.Context, policyID string) (*PolicyCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[policyID]
	if !ok {
		return nil, nil
	}
	dup := cp
	dup.Data = append([]byte(nil), cp.Data...)
	return &dup, nil
}

// Save stores a copy of the checkpoint.
func (s *MemoryStore) Save(ctx context.Context, cp *PolicyCheckpoint) error {
	if cp == nil || cp.PolicyID == "" {
		return &PersistenceError{Backend: "memory", Op: "save", Err: errNilCheckpoint}
	}

	dup := *cp
	dup.Data = append([]byte(nil), cp.Data...)

	s.mu.Lock()
	s.checkpoints[cp.PolicyID] = dup
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
