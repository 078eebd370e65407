package bandit

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"bearing-hq/sextant/pkg/features"
)

func linucbTestContext(vec []float64) *features.Context {
	return &features.Context{
		TenantID:  "tenant-1",
		RequestID: "req-linucb",
		Vector:    vec,
		Version:   features.Version,
	}
}

func TestLinUCBRecoversLinearRewards(t *testing.T) {
	p, err := New(TypeLinUCB, Config{FeatureDim: 3, Seed: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Rewards follow a fixed linear model; after enough ridge updates the
	// mean estimate must approach it.
	weights := []float64{0.5, 0.3, 0.2}
	contexts := [][]float64{
		{1, 0.2, 0.9},
		{1, 0.8, 0.1},
		{1, 0.5, 0.5},
		{1, 0.1, 0.3},
		{1, 0.9, 0.7},
	}
	reward := func(x []float64) float64 {
		var r float64
		for i, w := range weights {
			r += w * x[i]
		}
		return r
	}

	for i := 0; i < 300; i++ {
		x := contexts[i%len(contexts)]
		dec := Decision{ArmID: "alpha", Context: linucbTestContext(x)}
		if err := p.Update(dec, reward(x)); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	lp := p.(*linucb)
	st := lp.states.load("alpha")
	var chol mat.Cholesky
	if !chol.Factorize(st.A) {
		t.Fatalf("design matrix is not positive definite after updates")
	}
	var theta mat.VecDense
	if err := chol.SolveVecTo(&theta, st.B); err != nil {
		t.Fatalf("SolveVecTo() error = %v", err)
	}

	probe := []float64{1, 0.4, 0.6}
	got := mat.Dot(mat.NewVecDense(3, probe), &theta)
	want := reward(probe)
	if math.Abs(got-want) > 0.05 {
		t.Errorf("predicted reward = %v, want %v +- 0.05", got, want)
	}
}

func TestLinUCBConfidenceWidthShrinks(t *testing.T) {
	p, err := New(TypeLinUCB, Config{FeatureDim: 3, Seed: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	lp := p.(*linucb)

	x := []float64{1, 0.5, 0.25}
	width := func() float64 {
		st := lp.states.load("alpha")
		var chol mat.Cholesky
		if !chol.Factorize(st.A) {
			t.Fatalf("design matrix is not positive definite")
		}
		var z mat.VecDense
		if err := chol.SolveVecTo(&z, mat.NewVecDense(3, x)); err != nil {
			t.Fatalf("SolveVecTo() error = %v", err)
		}
		return mat.Dot(mat.NewVecDense(3, x), &z)
	}

	prev := width()
	for i := 0; i < 5; i++ {
		dec := Decision{ArmID: "alpha", Context: linucbTestContext(x)}
		if err := p.Update(dec, 0.7); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got := width()
		if got >= prev {
			t.Errorf("width after update %d = %v, want < %v", i+1, got, prev)
		}
		prev = got
	}
}

func TestLinUCBDimensionMismatch(t *testing.T) {
	p, err := New(TypeLinUCB, Config{FeatureDim: 3, Seed: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	snap := testSnapshot(t)
	short := linucbTestContext([]float64{1, 0.5})

	if _, err := p.Select(short, snap); err == nil {
		t.Errorf("Select() with short vector = nil, want dimension error")
	}
	if err := p.Update(Decision{ArmID: "alpha", Context: short}, 0.5); err == nil {
		t.Errorf("Update() with short vector = nil, want dimension error")
	}
}

func TestLinUCBRestoreRejectsWrongGeometry(t *testing.T) {
	p, err := New(TypeLinUCB, Config{FeatureDim: 3, Seed: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dec := Decision{ArmID: "alpha", Context: linucbTestContext([]float64{1, 0.5, 0.2})}
	if err := p.Update(dec, 0.6); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	data, err := p.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	q, err := New(TypeLinUCB, Config{FeatureDim: 4, Seed: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := q.Restore(data); !errors.Is(err, ErrCheckpointMismatch) {
		t.Errorf("Restore() error = %v, want ErrCheckpointMismatch", err)
	}
}

func TestLinUCBSelectSurvivesExtremeContexts(t *testing.T) {
	p := newTestPolicy(t, TypeLinUCB)
	snap := testSnapshot(t)
	ctx := testContext(t, "req-extreme")

	// Hammer one arm with large-magnitude contexts; A stays symmetric
	// positive definite, so scoring must never take the fallback path.
	big := ctx.Clone()
	for i := range big.Vector {
		big.Vector[i] = 100
	}
	for i := 0; i < 50; i++ {
		if err := p.Update(Decision{ArmID: "alpha", Context: big}, 1); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	sel, err := p.Select(big, snap)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.Fallback {
		t.Errorf("Select() took the instability fallback on finite input")
	}
	if !snap.Contains(sel.ArmID) {
		t.Errorf("Select() picked %q, not in snapshot", sel.ArmID)
	}
}
