package bandit

import (
	"math"
	"math/rand"
	"testing"

	"bearing-hq/sextant/pkg/arms"
)

func TestThompsonPosteriorTracksBernoulliRate(t *testing.T) {
	p, err := New(TypeThompson, Config{Seed: 42})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := testContext(t, "req-bern")

	// 10k Bernoulli(0.8) outcomes on one arm; the posterior mean must land
	// within 0.02 of the true rate.
	outcomes := rand.New(rand.NewSource(1234))
	for i := 0; i < 10_000; i++ {
		reward := 0.0
		if outcomes.Float64() < 0.8 {
			reward = 1.0
		}
		if err := p.Update(Decision{ArmID: "alpha", Context: ctx}, reward); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	cat, err := arms.NewCatalog([]arms.Arm{{ID: "alpha"}})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	sel, err := p.Select(ctx, cat.Current())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := sel.Estimates["alpha"]; math.Abs(got-0.8) > 0.02 {
		t.Errorf("posterior mean = %v, want 0.8 +- 0.02", got)
	}
}

func TestThompsonFractionalUpdates(t *testing.T) {
	p, err := New(TypeThompson, Config{Seed: 42})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := testContext(t, "req-frac")

	for i := 0; i < 10; i++ {
		if err := p.Update(Decision{ArmID: "alpha", Context: ctx}, 0.5); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	st := p.(*thompson).states.load("alpha")
	if math.Abs(st.Alpha-6) > 1e-9 || math.Abs(st.Beta-6) > 1e-9 {
		t.Errorf("posterior = Beta(%v, %v), want Beta(6, 6)", st.Alpha, st.Beta)
	}
	if st.Pulls != 10 {
		t.Errorf("pulls = %d, want 10", st.Pulls)
	}
	if got := st.mean(); got != 0.5 {
		t.Errorf("posterior mean = %v, want 0.5", got)
	}
}

func TestThompsonSamplingSeparatesArms(t *testing.T) {
	p, err := New(TypeThompson, Config{Seed: 42})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	snap := testSnapshot(t)
	ctx := testContext(t, "req-sep")

	for i := 0; i < 200; i++ {
		if err := p.Update(Decision{ArmID: "alpha", Context: ctx}, 0.9); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if err := p.Update(Decision{ArmID: "beta", Context: ctx}, 0.1); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if err := p.Update(Decision{ArmID: "gamma", Context: ctx}, 0.1); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	alphaPicks := 0
	for i := 0; i < 100; i++ {
		sel, err := p.Select(ctx, snap)
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if sel.ArmID == "alpha" {
			alphaPicks++
		}
	}
	if alphaPicks < 95 {
		t.Errorf("dominant arm picked %d/100 times, want >= 95", alphaPicks)
	}
}

func TestSampleBetaStaysInUnitInterval(t *testing.T) {
	rng := newLockedRand(99)
	params := []struct{ a, b float64 }{
		{1, 1}, {0.5, 0.5}, {10, 2}, {2, 10}, {100, 100}, {0.1, 5},
	}
	for _, pr := range params {
		for i := 0; i < 500; i++ {
			v := sampleBeta(rng, pr.a, pr.b)
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("sampleBeta(%v, %v) = %v, want in [0,1]", pr.a, pr.b, v)
			}
		}
	}
}

func TestSampleBetaMeanMatchesAnalytic(t *testing.T) {
	rng := newLockedRand(7)
	const (
		a, b = 8.0, 2.0
		n    = 20_000
	)
	var sum float64
	for i := 0; i < n; i++ {
		sum += sampleBeta(rng, a, b)
	}
	got := sum / n
	want := a / (a + b)
	if math.Abs(got-want) > 0.01 {
		t.Errorf("empirical mean = %v, want %v +- 0.01", got, want)
	}
}
