package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// seedAged stores n records whose decisions are the given age.
func seedAged(t *testing.T, s Storage, prefix string, n int, age time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		decidedAt := time.Now().Add(-age).Add(time.Duration(i) * time.Second)
		rec := newTestRecord(fmt.Sprintf("%s-%d", prefix, i), decidedAt)
		rec.ID = rec.RequestID
		if err := s.Store(context.Background(), rec); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}
}

func TestPrunerPruneByAge(t *testing.T) {
	storage := NewMemoryStorage(100)
	seedAged(t, storage, "old", 3, 100*24*time.Hour)
	seedAged(t, storage, "recent", 2, time.Hour)

	p, err := NewPruner(storage, RetentionConfig{Days: 90})
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 records pruned, got %d", deleted)
	}
	if storage.Size() != 2 {
		t.Errorf("expected 2 records left, got %d", storage.Size())
	}

	records, err := storage.Query(context.Background(), &Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, rec := range records {
		if rec.RequestID[:6] != "recent" {
			t.Errorf("expected only recent records to survive, found %s", rec.RequestID)
		}
	}
}

func TestPrunerPruneByCount(t *testing.T) {
	storage := NewMemoryStorage(100)
	seedAged(t, storage, "req", 10, time.Hour)

	p, err := NewPruner(storage, RetentionConfig{MaxRecords: 4})
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 6 {
		t.Errorf("expected 6 records pruned, got %d", deleted)
	}

	records, err := storage.Query(context.Background(), &Query{SortOrder: "asc"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := []string{"req-6", "req-7", "req-8", "req-9"}
	got := requestIDs(records)
	if len(got) != len(want) {
		t.Fatalf("expected the newest 4 to survive, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPrunerBothPhases(t *testing.T) {
	storage := NewMemoryStorage(100)
	seedAged(t, storage, "old", 2, 100*24*time.Hour)
	seedAged(t, storage, "recent", 5, time.Hour)

	p, err := NewPruner(storage, RetentionConfig{Days: 90, MaxRecords: 3})
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	// Two by age, then two more by count.
	if deleted != 4 {
		t.Errorf("expected 4 records pruned, got %d", deleted)
	}
	if storage.Size() != 3 {
		t.Errorf("expected 3 records left, got %d", storage.Size())
	}
}

func TestPrunerNoopWhenDisabled(t *testing.T) {
	storage := NewMemoryStorage(100)
	seedAged(t, storage, "old", 3, 100*24*time.Hour)

	p, err := NewPruner(storage, RetentionConfig{})
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected nothing pruned, got %d", deleted)
	}
	if storage.Size() != 3 {
		t.Errorf("expected all records kept, got %d", storage.Size())
	}
}

func TestNewPrunerValidation(t *testing.T) {
	storage := NewMemoryStorage(10)

	tests := []struct {
		name    string
		storage Storage
		cfg     RetentionConfig
		wantErr bool
	}{
		{
			name:    "valid",
			storage: storage,
			cfg:     DefaultRetentionConfig(),
			wantErr: false,
		},
		{
			name:    "nil storage",
			storage: nil,
			cfg:     DefaultRetentionConfig(),
			wantErr: true,
		},
		{
			name:    "negative days",
			storage: storage,
			cfg:     RetentionConfig{Days: -1},
			wantErr: true,
		},
		{
			name:    "negative max records",
			storage: storage,
			cfg:     RetentionConfig{MaxRecords: -1},
			wantErr: true,
		},
		{
			name:    "malformed schedule",
			storage: storage,
			cfg:     RetentionConfig{Days: 1, Schedule: "every day at dawn"},
			wantErr: true,
		},
		{
			name:    "empty schedule allowed for on-demand use",
			storage: storage,
			cfg:     RetentionConfig{Days: 1},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPruner(tt.storage, tt.cfg)
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPrunerStartStop(t *testing.T) {
	p, err := NewPruner(NewMemoryStorage(10), DefaultRetentionConfig())
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !p.IsRunning() {
		t.Error("expected the pruner to be running")
	}
	next := p.NextRun()
	if next.IsZero() || !next.After(time.Now()) {
		t.Errorf("expected a future next run, got %v", next)
	}

	if err := p.Start(context.Background()); err == nil {
		t.Error("expected a second Start to fail")
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("expected the pruner to stop")
	}
	if !p.NextRun().IsZero() {
		t.Error("expected no next run after Stop")
	}

	// Stop is idempotent.
	p.Stop()
}

func TestPrunerStartRequiresSchedule(t *testing.T) {
	p, err := NewPruner(NewMemoryStorage(10), RetentionConfig{Days: 1})
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("expected Start without a schedule to fail")
	}
}

func TestPrunerStopsOnContextCancel(t *testing.T) {
	p, err := NewPruner(NewMemoryStorage(10), DefaultRetentionConfig())
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("pruner did not stop after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// failingStorage errors on every operation.
type failingStorage struct{}

func (failingStorage) Store(context.Context, *Record) error { return errors.New("boom") }
func (failingStorage) Query(context.Context, *Query) ([]*Record, error) {
	return nil, errors.New("boom")
}
func (failingStorage) Count(context.Context, *Query) (int64, error) { return 0, errors.New("boom") }
func (failingStorage) Delete(context.Context, *Query) (int64, error) {
	return 0, errors.New("boom")
}
func (failingStorage) Close() error { return nil }

func TestPrunerWrapsStorageFailures(t *testing.T) {
	p, err := NewPruner(failingStorage{}, RetentionConfig{Days: 30})
	if err != nil {
		t.Fatalf("NewPruner failed: %v", err)
	}

	_, err = p.Prune(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}

	var rerr *RetentionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected a RetentionError, got %T", err)
	}
	if rerr.RetentionDays != 30 {
		t.Errorf("expected retention_days 30 in the error, got %d", rerr.RetentionDays)
	}
}
