package arms

import (
	"errors"
	"sync"
	"testing"

	"bearing-hq/sextant/pkg/features"
)

func testArms() []Arm {
	return []Arm{
		{ID: "alpha", CapabilityTags: []string{"text"}, Pricing: Pricing{Base: 0.01}},
		{ID: "beta", CapabilityTags: []string{"text", "code"}, Pricing: Pricing{Base: 0.05}},
		{ID: "gamma", CapabilityTags: []string{"multimodal"}, Pricing: Pricing{Base: 0.02, PerUnit: 0.01}},
	}
}

func testContext(t *testing.T) *features.Context {
	t.Helper()
	ctx, err := features.Extract(features.RequestMetadata{
		TenantID:     "tenant-1",
		RequestID:    "req-1",
		ContentType:  features.ContentTypeText,
		PayloadBytes: 1024,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	return ctx
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		initial []Arm
		wantErr error
	}{
		{name: "empty", initial: nil, wantErr: ErrEmptyCatalog},
		{
			name: "duplicate id",
			initial: []Arm{
				{ID: "alpha"},
				{ID: "alpha"},
			},
			wantErr: ErrDuplicateArm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.initial)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewCatalog() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogAddRetire(t *testing.T) {
	cat, err := NewCatalog(testArms())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	first := cat.Current()
	if got := len(first.Active()); got != 3 {
		t.Fatalf("Active() count = %d, want 3", got)
	}
	if first.Version != 1 {
		t.Errorf("initial Version = %d, want 1", first.Version)
	}

	if _, err := cat.Add(Arm{ID: "alpha"}); !errors.Is(err, ErrDuplicateArm) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateArm", err)
	}

	snap, err := cat.Add(Arm{ID: "delta", Pricing: Pricing{Base: 0.03}})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !snap.Contains("delta") {
		t.Errorf("Contains(delta) = false after Add")
	}
	if snap.Version != 2 {
		t.Errorf("Version after Add = %d, want 2", snap.Version)
	}

	snap, err = cat.Retire("beta")
	if err != nil {
		t.Fatalf("Retire() error = %v", err)
	}
	if snap.Contains("beta") {
		t.Errorf("Contains(beta) = true after Retire")
	}
	retired, ok := snap.Get("beta")
	if !ok {
		t.Fatalf("Get(beta) not found; retired arms must stay visible for audit")
	}
	if retired.Active {
		t.Errorf("retired arm still marked active")
	}
	if retired.RetiredAt.IsZero() {
		t.Errorf("retired arm has zero RetiredAt")
	}

	// Retiring again is a no-op and must not bump the version.
	again, err := cat.Retire("beta")
	if err != nil {
		t.Fatalf("Retire() second call error = %v", err)
	}
	if again.Version != snap.Version {
		t.Errorf("no-op Retire bumped version %d -> %d", snap.Version, again.Version)
	}

	if _, err := cat.Retire("unknown"); !errors.Is(err, ErrArmNotFound) {
		t.Errorf("Retire(unknown) error = %v, want ErrArmNotFound", err)
	}

	// The first snapshot must be unchanged by everything above.
	if got := len(first.Active()); got != 3 {
		t.Errorf("old snapshot mutated: Active() count = %d, want 3", got)
	}
	if !first.Contains("beta") {
		t.Errorf("old snapshot mutated: beta no longer active in old view")
	}
}

func TestSnapshotLeastCost(t *testing.T) {
	cat, err := NewCatalog(testArms())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	ctx := testContext(t)

	arm, ok := cat.Current().LeastCost(ctx)
	if !ok {
		t.Fatalf("LeastCost() ok = false")
	}
	if arm.ID != "alpha" {
		t.Errorf("LeastCost() = %s, want alpha", arm.ID)
	}

	// Retire the cheapest arm; the fallback target must follow.
	if _, err := cat.Retire("alpha"); err != nil {
		t.Fatalf("Retire() error = %v", err)
	}
	arm, ok = cat.Current().LeastCost(ctx)
	if !ok {
		t.Fatalf("LeastCost() ok = false after retire")
	}
	if arm.ID == "alpha" {
		t.Errorf("LeastCost() returned retired arm")
	}
}

func TestCatalogReprice(t *testing.T) {
	cat, err := NewCatalog(testArms())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	table := NewPricingTable(map[string]Pricing{
		"alpha": {Base: 0.10},
	}, Pricing{Base: 0.02})

	snap := cat.Reprice(table)

	alpha, _ := snap.Get("alpha")
	if alpha.Pricing.Base != 0.10 {
		t.Errorf("alpha base after reprice = %v, want 0.10", alpha.Pricing.Base)
	}
	beta, _ := snap.Get("beta")
	if beta.Pricing.Base != 0.02 {
		t.Errorf("beta base after reprice = %v, want default 0.02", beta.Pricing.Base)
	}
}

func TestCatalogConcurrentReaders(t *testing.T) {
	cat, err := NewCatalog(testArms())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup

	// Readers continuously take snapshots and verify internal consistency.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := cat.Current()
				for _, a := range snap.Active() {
					if !a.Active {
						t.Errorf("active list contains retired arm %s", a.ID)
						return
					}
					if _, ok := snap.Get(a.ID); !ok {
						t.Errorf("active arm %s missing from index", a.ID)
						return
					}
				}
			}
		}()
	}

	// Writer churns the catalog.
	for i := 0; i < 50; i++ {
		if _, err := cat.Add(Arm{ID: armID(i)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if i%2 == 0 {
			if _, err := cat.Retire(armID(i)); err != nil {
				t.Fatalf("Retire() error = %v", err)
			}
		}
	}
	close(done)
	wg.Wait()

	snap := cat.Current()
	if got := len(snap.All()); got != 53 {
		t.Errorf("All() count = %d, want 53", got)
	}
}

func armID(i int) string {
	return "arm-" + string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
}
