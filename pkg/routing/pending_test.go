package routing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDecisionLifecycleHappyPath(t *testing.T) {
	p := newPendingDecision()

	steps := []DecisionState{
		StateSelecting,
		StateDispatched,
		StateAwaitingOutcome,
		StateRewarded,
		StateComplete,
	}
	for _, next := range steps {
		if err := p.advance(next); err != nil {
			t.Fatalf("advance(%s) error = %v", next, err)
		}
		if got := p.currentState(); got != next {
			t.Fatalf("currentState() = %s, want %s", got, next)
		}
	}
	if p.via != StateRewarded {
		t.Errorf("via = %s, want %s", p.via, StateRewarded)
	}
}

func TestDecisionLifecycleBranches(t *testing.T) {
	tests := []struct {
		name  string
		steps []DecisionState
		via   DecisionState
	}{
		{
			"selection failure",
			[]DecisionState{StateSelecting, StateSelectionFailed, StateAwaitingOutcome, StateRewarded, StateComplete},
			StateRewarded,
		},
		{
			"outcome timeout",
			[]DecisionState{StateSelecting, StateDispatched, StateAwaitingOutcome, StateOutcomeTimeout, StateComplete},
			StateOutcomeTimeout,
		},
		{
			"voided",
			[]DecisionState{StateSelecting, StateDispatched, StateAwaitingOutcome, StateVoided, StateComplete},
			StateVoided,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPendingDecision()
			for _, next := range tt.steps {
				if err := p.advance(next); err != nil {
					t.Fatalf("advance(%s) error = %v", next, err)
				}
			}
			if p.via != tt.via {
				t.Errorf("via = %s, want %s", p.via, tt.via)
			}
		})
	}
}

func TestDecisionLifecycleRejectsIllegalMoves(t *testing.T) {
	tests := []struct {
		name string
		prep []DecisionState
		move DecisionState
	}{
		{"init cannot dispatch", nil, StateDispatched},
		{"init cannot complete", nil, StateComplete},
		{"selecting cannot reward", []DecisionState{StateSelecting}, StateRewarded},
		{"awaiting cannot complete directly", []DecisionState{StateSelecting, StateDispatched, StateAwaitingOutcome}, StateComplete},
		{"rewarded cannot be voided", []DecisionState{StateSelecting, StateDispatched, StateAwaitingOutcome, StateRewarded}, StateVoided},
		{"complete is terminal", []DecisionState{StateSelecting, StateDispatched, StateAwaitingOutcome, StateRewarded, StateComplete}, StateSelecting},
		{"no double reward", []DecisionState{StateSelecting, StateDispatched, StateAwaitingOutcome, StateRewarded}, StateRewarded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPendingDecision()
			for _, next := range tt.prep {
				if err := p.advance(next); err != nil {
					t.Fatalf("advance(%s) error = %v", next, err)
				}
			}
			before := p.currentState()
			if err := p.advance(tt.move); err == nil {
				t.Fatalf("advance(%s) = nil error from %s, want rejection", tt.move, before)
			}
			if got := p.currentState(); got != before {
				t.Errorf("state after rejected move = %s, want unchanged %s", got, before)
			}
		})
	}
}

func TestPendingTableRegisterAndTake(t *testing.T) {
	tbl := newPendingTable(8)

	p := newPendingDecision()
	if err := tbl.register("req-1", p); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if got := tbl.size(); got != 1 {
		t.Fatalf("size() = %d, want 1", got)
	}

	if err := tbl.register("req-1", newPendingDecision()); !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("register(duplicate) error = %v, want ErrDuplicateRequest", err)
	}

	got, ok := tbl.take("req-1")
	if !ok || got != p {
		t.Fatalf("take() = (%v, %v), want the registered decision", got, ok)
	}
	if _, ok := tbl.take("req-1"); ok {
		t.Error("take() succeeded twice for the same request")
	}
	if got := tbl.size(); got != 0 {
		t.Errorf("size() after take = %d, want 0", got)
	}
}

func TestPendingTableCapacity(t *testing.T) {
	tbl := newPendingTable(2)

	for i := 0; i < 2; i++ {
		if err := tbl.register(fmt.Sprintf("req-%d", i), newPendingDecision()); err != nil {
			t.Fatalf("register(%d) error = %v", i, err)
		}
	}
	if err := tbl.register("req-overflow", newPendingDecision()); !errors.Is(err, ErrTooManyPending) {
		t.Errorf("register() at capacity error = %v, want ErrTooManyPending", err)
	}

	// Capacity frees up as decisions resolve.
	if _, ok := tbl.take("req-0"); !ok {
		t.Fatal("take(req-0) found nothing")
	}
	if err := tbl.register("req-overflow", newPendingDecision()); err != nil {
		t.Errorf("register() after take error = %v", err)
	}
}

func TestPendingTableTakeHasOneWinner(t *testing.T) {
	tbl := newPendingTable(4)
	if err := tbl.register("req-race", newPendingDecision()); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	const racers = 32
	var wins atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := tbl.take("req-race"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("winners = %d, want exactly 1", got)
	}
}

func TestPendingTableDrain(t *testing.T) {
	tbl := newPendingTable(8)
	for i := 0; i < 5; i++ {
		if err := tbl.register(fmt.Sprintf("req-%d", i), newPendingDecision()); err != nil {
			t.Fatalf("register(%d) error = %v", i, err)
		}
	}

	drained := tbl.drain()
	if len(drained) != 5 {
		t.Errorf("drain() returned %d decisions, want 5", len(drained))
	}
	if got := tbl.size(); got != 0 {
		t.Errorf("size() after drain = %d, want 0", got)
	}
}
