package bandit

import (
	"math"
	"testing"
)

func TestEpsilonDecaySchedule(t *testing.T) {
	p := newEpsilonGreedy(Config{Epsilon: 0.2, EpsilonDecay: 0.01})

	if got := p.epsilonAt(0); got != 0.2 {
		t.Errorf("epsilonAt(0) = %v, want 0.2", got)
	}
	if got := p.epsilonAt(100); got != 0.1 {
		t.Errorf("epsilonAt(100) = %v, want 0.1", got)
	}

	prev := p.epsilonAt(0)
	for _, step := range []int64{10, 100, 1_000, 10_000} {
		got := p.epsilonAt(step)
		if got >= prev {
			t.Errorf("epsilonAt(%d) = %v, want < %v", step, got, prev)
		}
		prev = got
	}
}

func TestEpsilonSetEpsilonRetunesSchedule(t *testing.T) {
	p := newEpsilonGreedy(Config{Epsilon: 0.2, EpsilonDecay: 0.01})

	p.SetEpsilon(0.5)
	if got := p.epsilonAt(0); got != 0.5 {
		t.Errorf("epsilonAt(0) after SetEpsilon(0.5) = %v, want 0.5", got)
	}
	if got := p.epsilonAt(100); got != 0.25 {
		t.Errorf("epsilonAt(100) after SetEpsilon(0.5) = %v, want 0.25", got)
	}

	// Out-of-range and non-finite inputs must not break the schedule.
	p.SetEpsilon(3)
	if got := p.epsilonAt(0); got != 1 {
		t.Errorf("epsilonAt(0) after SetEpsilon(3) = %v, want 1", got)
	}
	p.SetEpsilon(math.NaN())
	if got := p.epsilonAt(0); got != 1 {
		t.Errorf("epsilonAt(0) after SetEpsilon(NaN) = %v, want 1 (unchanged)", got)
	}
}

func TestEpsilonGreedyAlwaysExploresAtEpsilonOne(t *testing.T) {
	p, err := New(TypeEpsilonGreedy, Config{Epsilon: 1, Seed: 7})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	snap := testSnapshot(t)
	ctx := testContext(t, "req-explore")

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		sel, err := p.Select(ctx, snap)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if !sel.Explored {
			t.Fatalf("Select() Explored = false with epsilon 1")
		}
		seen[sel.ArmID] = true
	}
	if len(seen) != len(snap.Active()) {
		t.Errorf("explored %d distinct arms in 100 draws, want %d", len(seen), len(snap.Active()))
	}
}

func TestEpsilonGreedyExploitsAfterDecay(t *testing.T) {
	// A steep decay drives epsilon to ~0 after training, so selection is
	// almost pure exploitation of the best mean.
	p, err := New(TypeEpsilonGreedy, Config{Epsilon: 0.2, EpsilonDecay: 1, Seed: 11})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	snap := testSnapshot(t)
	ctx := testContext(t, "req-exploit")

	for i := 0; i < 200; i++ {
		armID, reward := "beta", 0.9
		if i%2 == 1 {
			armID, reward = "alpha", 0.1
		}
		if err := p.Update(Decision{ArmID: armID, Context: ctx}, reward); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if err := p.Update(Decision{ArmID: "gamma", Context: ctx}, 0.3); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	betaPicks := 0
	for i := 0; i < 100; i++ {
		sel, err := p.Select(ctx, snap)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if sel.ArmID == "beta" {
			betaPicks++
		}
	}
	if betaPicks < 95 {
		t.Errorf("best arm picked %d/100 times after decay, want >= 95", betaPicks)
	}
}

func TestEpsilonGreedyOptimisticForUntried(t *testing.T) {
	p := newTestPolicy(t, TypeEpsilonGreedy)
	snap := testSnapshot(t)
	ctx := testContext(t, "req-optimism")

	if err := p.Update(Decision{ArmID: "alpha", Context: ctx}, 0.4); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	sel, err := p.Select(ctx, snap)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := sel.Estimates["beta"]; got != optimisticEstimate {
		t.Errorf("estimate for untried beta = %v, want %v", got, optimisticEstimate)
	}
	if got := sel.Estimates["alpha"]; got != 0.4 {
		t.Errorf("estimate for alpha = %v, want 0.4", got)
	}
}
