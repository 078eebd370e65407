package statestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testCheckpoint(policyID string) *PolicyCheckpoint {
	return &PolicyCheckpoint{
		PolicyID:   policyID,
		PolicyType: "ucb1",
		Data:       []byte(`{"policy":"ucb1","version":1,"total_pulls":3,"arms":{}}`),
		SavedAt:    time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.Load(ctx, "router-main")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Load() before save = %+v, want nil", got)
	}

	want := testCheckpoint("router-main")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err = s.Load(ctx, "router-main")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatalf("Load() = nil after save")
	}
	if got.PolicyType != want.PolicyType || string(got.Data) != string(want.Data) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	// The stored copy must be isolated from later caller mutation.
	want.Data[0] = 'X'
	got, err = s.Load(ctx, "router-main")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Data[0] == 'X' {
		t.Errorf("stored checkpoint shares memory with the caller's buffer")
	}
}

func TestMemoryStoreRejectsNilCheckpoint(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Save(context.Background(), nil); !errors.Is(err, ErrPersistence) {
		t.Errorf("Save(nil) error = %v, want ErrPersistence", err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{DBPath: filepath.Join(t.TempDir(), "checkpoints.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	got, err := s.Load(ctx, "router-main")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Load() before save = %+v, want nil", got)
	}

	want := testCheckpoint("router-main")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err = s.Load(ctx, "router-main")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatalf("Load() = nil after save")
	}
	if got.PolicyType != want.PolicyType || string(got.Data) != string(want.Data) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, want.SavedAt)
	}
}

func TestSQLiteStoreUpsertReplaces(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{DBPath: filepath.Join(t.TempDir(), "checkpoints.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	first := testCheckpoint("router-main")
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := testCheckpoint("router-main")
	second.Data = []byte(`{"policy":"ucb1","version":1,"total_pulls":9,"arms":{}}`)
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "router-main")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got.Data) != string(second.Data) {
		t.Errorf("Load() after upsert = %s, want %s", got.Data, second.Data)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteConfig{}); err == nil {
		t.Errorf("NewSQLiteStore() with empty path = nil error, want failure")
	}
}
