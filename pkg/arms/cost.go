package arms

import (
	"sync"
)

// Pricing describes the cost model of a single arm: a flat per-request base
// plus a component scaling with the request's payload magnitude.
type Pricing struct {
	// Base is the flat cost charged per request.
	Base float64

	// PerUnit is the additional cost per unit of context magnitude.
	PerUnit float64
}

// PricingTable maps arm IDs to pricing and supports hot reload from
// configuration. Lookups fall back to a default entry so newly added arms
// are never priced at zero by accident.
//
// The table is thread-safe; Update replaces the whole entry set atomically
// under the write lock.
type PricingTable struct {
	mu      sync.RWMutex
	entries map[string]Pricing
	def     Pricing
}

// NewPricingTable creates a pricing table with the given per-arm entries and
// the default used for arms without an entry.
func NewPricingTable(entries map[string]Pricing, def Pricing) *PricingTable {
	t := &PricingTable{
		entries: make(map[string]Pricing, len(entries)),
		def:     def,
	}
	for id, p := range entries {
		t.entries[id] = p
	}
	return t
}

// Lookup returns the pricing for an arm, falling back to the default when
// the arm has no dedicated entry.
func (t *PricingTable) Lookup(armID string) Pricing {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.entries[armID]; ok {
		return p
	}
	return t.def
}

// Update replaces the table contents. Used by config hot reload; safe to
// call while lookups are in flight.
func (t *PricingTable) Update(entries map[string]Pricing, def Pricing) {
	next := make(map[string]Pricing, len(entries))
	for id, p := range entries {
		next[id] = p
	}

	t.mu.Lock()
	t.entries = next
	t.def = def
	t.mu.Unlock()
}

// Len returns the number of dedicated entries.
func (t *PricingTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}
