package arms

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bearing-hq/sextant/pkg/features"
)

// Common catalog errors that can be checked with errors.Is().
var (
	// ErrArmNotFound is returned when an operation references an unknown arm.
	ErrArmNotFound = errors.New("arm not found")

	// ErrDuplicateArm is returned when adding an arm whose ID already exists.
	ErrDuplicateArm = errors.New("arm already exists")

	// ErrEmptyCatalog is returned when a catalog is created with no arms.
	ErrEmptyCatalog = errors.New("catalog requires at least one arm")
)

// Arm is a candidate backend configuration the router can dispatch to.
// Sextant never invokes the backend itself; an arm carries only the metadata
// selection needs.
type Arm struct {
	// ID uniquely identifies the arm (e.g. "gpt-4o-mini", "sonnet-batch").
	ID string

	// CapabilityTags describe what the arm can serve ("text", "code", ...).
	CapabilityTags []string

	// Pricing determines the arm's estimated per-request cost.
	Pricing Pricing

	// Active is false once the arm has been retired. Retired arms are
	// excluded from selection but retained for audit.
	Active bool

	// RetiredAt records when the arm was retired (zero while active).
	RetiredAt time.Time
}

// Cost estimates the cost of serving one request with this arm.
func (a *Arm) Cost(ctx *features.Context) float64 {
	return a.Pricing.Base + a.Pricing.PerUnit*ctx.Magnitude()
}

// HasTag reports whether the arm carries the given capability tag.
func (a *Arm) HasTag(tag string) bool {
	for _, t := range a.CapabilityTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Snapshot is an immutable view of the catalog at one version. All fields
// and returned slices must be treated as read-only.
type Snapshot struct {
	// Version increases by one with every applied change.
	Version int64

	arms   []Arm          // every arm ever added, in insertion order
	active []Arm          // active arms, in insertion order
	index  map[string]int // arm ID -> position in arms
}

// Active returns the active arms in stable insertion order. Policies rely on
// this ordering for deterministic tie-breaking.
func (s *Snapshot) Active() []Arm {
	return s.active
}

// All returns every arm, including retired ones.
func (s *Snapshot) All() []Arm {
	return s.arms
}

// Get returns the arm with the given ID, retired or not.
func (s *Snapshot) Get(id string) (Arm, bool) {
	i, ok := s.index[id]
	if !ok {
		return Arm{}, false
	}
	return s.arms[i], true
}

// Contains reports whether the given ID belongs to an ACTIVE arm.
func (s *Snapshot) Contains(id string) bool {
	i, ok := s.index[id]
	return ok && s.arms[i].Active
}

// LeastCost returns the active arm with the lowest estimated cost for the
// given context. This is the deterministic fallback target when policy math
// goes unstable. Ties resolve to the earlier arm.
func (s *Snapshot) LeastCost(ctx *features.Context) (Arm, bool) {
	if len(s.active) == 0 {
		return Arm{}, false
	}
	best := s.active[0]
	bestCost := best.Cost(ctx)
	for _, a := range s.active[1:] {
		if c := a.Cost(ctx); c < bestCost {
			best, bestCost = a, c
		}
	}
	return best, true
}

// Catalog holds the current arm snapshot. Reads are a single atomic pointer
// load; writes are serialized and swap in a freshly built snapshot.
type Catalog struct {
	mu   sync.Mutex // serializes Apply operations
	snap atomic.Pointer[Snapshot]
}

// NewCatalog creates a catalog from the initial arm set. Arm IDs must be
// unique and at least one arm is required.
func NewCatalog(initial []Arm) (*Catalog, error) {
	if len(initial) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]struct{}, len(initial))
	arms := make([]Arm, 0, len(initial))
	for _, a := range initial {
		if a.ID == "" {
			return nil, fmt.Errorf("failed to build catalog: arm with empty ID")
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("failed to build catalog: %w: %s", ErrDuplicateArm, a.ID)
		}
		seen[a.ID] = struct{}{}
		a.Active = true
		a.RetiredAt = time.Time{}
		arms = append(arms, a)
	}

	c := &Catalog{}
	c.snap.Store(buildSnapshot(1, arms))
	return c, nil
}

// Current returns the latest snapshot. The returned snapshot never changes;
// concurrent catalog updates produce new snapshots instead.
func (c *Catalog) Current() *Snapshot {
	return c.snap.Load()
}

// Add introduces a new active arm and publishes a new snapshot.
func (c *Catalog) Add(arm Arm) (*Snapshot, error) {
	if arm.ID == "" {
		return nil, fmt.Errorf("failed to add arm: arm with empty ID")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if _, exists := cur.index[arm.ID]; exists {
		return nil, fmt.Errorf("failed to add arm %q: %w", arm.ID, ErrDuplicateArm)
	}

	arm.Active = true
	arm.RetiredAt = time.Time{}
	next := append(copyArms(cur.arms), arm)

	snap := buildSnapshot(cur.Version+1, next)
	c.snap.Store(snap)
	return snap, nil
}

// Retire deactivates an arm and publishes a new snapshot. Retiring an
// already retired arm is a no-op that returns the current snapshot.
func (c *Catalog) Retire(id string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	i, ok := cur.index[id]
	if !ok {
		return nil, fmt.Errorf("failed to retire arm %q: %w", id, ErrArmNotFound)
	}
	if !cur.arms[i].Active {
		return cur, nil
	}

	next := copyArms(cur.arms)
	next[i].Active = false
	next[i].RetiredAt = time.Now().UTC()

	snap := buildSnapshot(cur.Version+1, next)
	c.snap.Store(snap)
	return snap, nil
}

// Reprice applies a pricing table to every arm and publishes a new snapshot.
// Arms without a table entry fall back to the table's default pricing.
func (c *Catalog) Reprice(table *PricingTable) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	next := copyArms(cur.arms)
	for i := range next {
		next[i].Pricing = table.Lookup(next[i].ID)
	}

	snap := buildSnapshot(cur.Version+1, next)
	c.snap.Store(snap)
	return snap
}

func copyArms(in []Arm) []Arm {
	out := make([]Arm, len(in))
	copy(out, in)
	return out
}

func buildSnapshot(version int64, all []Arm) *Snapshot {
	s := &Snapshot{
		Version: version,
		arms:    all,
		index:   make(map[string]int, len(all)),
	}
	for i, a := range all {
		s.index[a.ID] = i
		if a.Active {
			s.active = append(s.active, a)
		}
	}
	return s
}
