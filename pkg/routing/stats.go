package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of router counters, safe to read
// without locks. It backs the admin stats endpoint.
type Stats struct {
	// TotalDecisions counts every RouteRequest that produced a decision.
	TotalDecisions int64 `json:"total_decisions"`

	// DecisionsPerArm counts dispatched decisions by arm.
	DecisionsPerArm map[string]int64 `json:"decisions_per_arm"`

	// DecisionsPerPolicy counts decisions by policy instance.
	DecisionsPerPolicy map[string]int64 `json:"decisions_per_policy"`

	// DecisionsPerVariant counts decisions by experiment variant.
	DecisionsPerVariant map[string]int64 `json:"decisions_per_variant"`

	// Explorations counts decisions picked by an exploration rule.
	Explorations int64 `json:"explorations"`

	// Fallbacks counts decisions served by the deterministic fallback arm.
	Fallbacks int64 `json:"fallbacks"`

	// ValidationRejects counts requests rejected before selection.
	ValidationRejects int64 `json:"validation_rejects"`

	// OutcomesReceived counts real outcome reports that resolved a
	// decision.
	OutcomesReceived int64 `json:"outcomes_received"`

	// OutcomesTimedOut counts decisions resolved by the outcome timer.
	OutcomesTimedOut int64 `json:"outcomes_timed_out"`

	// OutcomesVoided counts decisions cancelled before completion.
	OutcomesVoided int64 `json:"outcomes_voided"`

	// LateOutcomes counts outcome reports with no pending decision.
	LateOutcomes int64 `json:"late_outcomes"`

	// InstabilityEvents counts numeric instabilities recovered by fallback
	// or a skipped update.
	InstabilityEvents int64 `json:"instability_events"`

	// Errors counts RouteRequest calls that returned an error.
	Errors int64 `json:"errors"`

	// LastResetTime is when the counters were last reset.
	LastResetTime time.Time `json:"last_reset_time"`
}

// engineStats tracks router counters with atomics so the request path never
// serializes on a stats lock.
type engineStats struct {
	totalDecisions atomic.Int64

	perArm     sync.Map // map[string]*atomic.Int64
	perPolicy  sync.Map // map[string]*atomic.Int64
	perVariant sync.Map // map[string]*atomic.Int64

	explorations      atomic.Int64
	fallbacks         atomic.Int64
	validationRejects atomic.Int64

	outcomesReceived atomic.Int64
	outcomesTimedOut atomic.Int64
	outcomesVoided   atomic.Int64
	lateOutcomes     atomic.Int64

	instability atomic.Int64
	errors      atomic.Int64

	mu            sync.RWMutex // protects lastResetTime
	lastResetTime time.Time
}

func newEngineStats() *engineStats {
	return &engineStats{lastResetTime: time.Now().UTC()}
}

func bump(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// recordDecision folds one dispatched decision into the counters.
func (s *engineStats) recordDecision(dec Decision) {
	s.totalDecisions.Add(1)
	bump(&s.perArm, dec.ArmID)
	bump(&s.perPolicy, dec.PolicyID)
	bump(&s.perVariant, dec.VariantID)
	if dec.Explored {
		s.explorations.Add(1)
	}
	if dec.Fallback {
		s.fallbacks.Add(1)
	}
}

// Snapshot returns a copy of the current counters.
func (s *engineStats) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collect := func(m *sync.Map) map[string]int64 {
		out := make(map[string]int64)
		m.Range(func(key, value any) bool {
			out[key.(string)] = value.(*atomic.Int64).Load()
			return true
		})
		return out
	}

	return Stats{
		TotalDecisions:      s.totalDecisions.Load(),
		DecisionsPerArm:     collect(&s.perArm),
		DecisionsPerPolicy:  collect(&s.perPolicy),
		DecisionsPerVariant: collect(&s.perVariant),
		Explorations:        s.explorations.Load(),
		Fallbacks:           s.fallbacks.Load(),
		ValidationRejects:   s.validationRejects.Load(),
		OutcomesReceived:    s.outcomesReceived.Load(),
		OutcomesTimedOut:    s.outcomesTimedOut.Load(),
		OutcomesVoided:      s.outcomesVoided.Load(),
		LateOutcomes:        s.lateOutcomes.Load(),
		InstabilityEvents:   s.instability.Load(),
		Errors:              s.errors.Load(),
		LastResetTime:       s.lastResetTime,
	}
}

// Reset zeroes every counter.
func (s *engineStats) Reset() {
	s.totalDecisions.Store(0)
	s.explorations.Store(0)
	s.fallbacks.Store(0)
	s.validationRejects.Store(0)
	s.outcomesReceived.Store(0)
	s.outcomesTimedOut.Store(0)
	s.outcomesVoided.Store(0)
	s.lateOutcomes.Store(0)
	s.instability.Store(0)
	s.errors.Store(0)

	for _, m := range []*sync.Map{&s.perArm, &s.perPolicy, &s.perVariant} {
		m.Range(func(key, _ any) bool {
			m.Delete(key)
			return true
		})
	}

	s.mu.Lock()
	s.lastResetTime = time.Now().UTC()
	s.mu.Unlock()
}
