package bandit

import (
	"sync"
	"sync/atomic"
)

// cell holds one arm's state. Reads are lock-free atomic loads of an
// immutable value; writers clone the current value, mutate the clone, and
// publish it under the cell's own lock. Updates for different arms never
// contend.
type cell[T any] struct {
	mu  sync.Mutex // serializes read-modify-write cycles for this arm only
	cur atomic.Pointer[T]
}

// load returns the current state value. The pointee is immutable; callers
// must not modify it.
func (c *cell[T]) load() *T {
	return c.cur.Load()
}

// update applies mutate to a clone of the current state and publishes the
// result. clone must produce a deep copy for any state with interior
// pointers.
func (c *cell[T]) update(clone func(*T) T, mutate func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := clone(c.cur.Load())
	mutate(&next)
	c.cur.Store(&next)
}

// arena maps arm IDs to state cells. Cells are created lazily on first
// access, seeded by the policy's prior. The map lock guards only cell
// creation and iteration, never per-arm state.
type arena[T any] struct {
	mu    sync.RWMutex
	cells map[string]*cell[T]
	seed  func() T
	clone func(*T) T
}

func newArena[T any](seed func() T, clone func(*T) T) *arena[T] {
	return &arena[T]{
		cells: make(map[string]*cell[T]),
		seed:  seed,
		clone: clone,
	}
}

// get returns the cell for an arm, creating it from the seed on first use.
func (a *arena[T]) get(armID string) *cell[T] {
	a.mu.RLock()
	c, ok := a.cells[armID]
	a.mu.RUnlock()
	if ok {
		return c
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok = a.cells[armID]; ok {
		return c
	}
	c = &cell[T]{}
	init := a.seed()
	c.cur.Store(&init)
	a.cells[armID] = c
	return c
}

// load returns the current state for an arm, creating the cell if needed.
// The pointee must be treated as read-only.
func (a *arena[T]) load(armID string) *T {
	return a.get(armID).load()
}

// update applies the arena's clone-and-mutate cycle to one arm.
func (a *arena[T]) update(armID string, mutate func(*T)) {
	a.get(armID).update(a.clone, mutate)
}

// each visits every cell's current state. It holds only the map read lock;
// per-arm state is read via atomic loads, so checkpointing never blocks an
// update for longer than the map scan.
func (a *arena[T]) each(visit func(armID string, state *T)) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for id, c := range a.cells {
		visit(id, c.load())
	}
}

// replace swaps the entire arena contents, used by Restore.
func (a *arena[T]) replace(states map[string]T) {
	cells := make(map[string]*cell[T], len(states))
	for id, st := range states {
		c := &cell[T]{}
		v := st
		c.cur.Store(&v)
		cells[id] = c
	}

	a.mu.Lock()
	a.cells = cells
	a.mu.Unlock()
}

// size returns the number of arms with state.
func (a *arena[T]) size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.cells)
}

// valueClone suits state types without interior pointers.
func valueClone[T any](p *T) T {
	return *p
}
