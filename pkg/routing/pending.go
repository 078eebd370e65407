package routing

import (
	"fmt"
	"sync"
	"time"

	"bearing-hq/sextant/pkg/features"
)

// legalTransitions is the decision lifecycle graph. Init and complete are
// the only initial and terminal states; everything in between is one hop.
var legalTransitions = map[DecisionState][]DecisionState{
	StateInit:            {StateSelecting},
	StateSelecting:       {StateDispatched, StateSelectionFailed},
	StateDispatched:      {StateAwaitingOutcome},
	StateSelectionFailed: {StateAwaitingOutcome},
	StateAwaitingOutcome: {StateRewarded, StateOutcomeTimeout, StateVoided},
	StateRewarded:        {StateComplete},
	StateOutcomeTimeout:  {StateComplete},
	StateVoided:          {StateComplete},
}

// shadowPick records one shadow policy's would-have-been selection for a
// request, scored later against the realized reward.
type shadowPick struct {
	variantID string
	policyID  string
	armID     string
	estimate  float64
}

// pendingDecision is one dispatched decision awaiting its outcome. The
// lifecycle state is guarded by mu; the timer is owned by the engine.
type pendingDecision struct {
	mu    sync.Mutex
	state DecisionState

	dec     Decision
	featCtx *features.Context
	shadows []shadowPick

	// via records which terminal branch resolved the decision.
	via DecisionState

	timer *time.Timer
}

func newPendingDecision() *pendingDecision {
	return &pendingDecision{state: StateInit}
}

// advance moves the decision to the next lifecycle state, rejecting moves
// the lifecycle graph does not allow. This is what guarantees a decision
// completes exactly once.
func (p *pendingDecision) advance(to DecisionState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, next := range legalTransitions[p.state] {
		if next == to {
			if to == StateRewarded || to == StateOutcomeTimeout || to == StateVoided {
				p.via = to
			}
			p.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal decision transition %s -> %s for request %q",
		p.state, to, p.dec.RequestID)
}

// currentState returns the lifecycle state.
func (p *pendingDecision) currentState() DecisionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// stopTimer cancels the outcome timer if it is still pending.
func (p *pendingDecision) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// pendingTable tracks in-flight decisions by request ID with a hard
// capacity. Register and take are the only mutations; a decision removed by
// take is owned exclusively by the caller, which is what serializes the
// race between a real outcome and the timeout timer.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingDecision
	max     int
}

func newPendingTable(max int) *pendingTable {
	return &pendingTable{
		entries: make(map[string]*pendingDecision),
		max:     max,
	}
}

// register adds a pending decision, enforcing uniqueness and capacity.
func (t *pendingTable) register(requestID string, p *pendingDecision) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[requestID]; ok {
		return fmt.Errorf("failed to register decision: %w: %q", ErrDuplicateRequest, requestID)
	}
	if len(t.entries) >= t.max {
		return fmt.Errorf("failed to register decision: %w (capacity %d)", ErrTooManyPending, t.max)
	}
	t.entries[requestID] = p
	return nil
}

// take removes and returns the pending decision for a request ID. Exactly
// one caller wins; everyone else sees false.
func (t *pendingTable) take(requestID string) (*pendingDecision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[requestID]
	if ok {
		delete(t.entries, requestID)
	}
	return p, ok
}

// size returns the number of in-flight decisions.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// drain removes and returns every pending decision, used at shutdown.
func (t *pendingTable) drain() []*pendingDecision {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*pendingDecision, 0, len(t.entries))
	for id, p := range t.entries {
		out = append(out, p)
		delete(t.entries, id)
	}
	return out
}
