package bandit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

// linucbArmState is the per-arm ridge regression: A accumulates x*xT on top
// of the lambda*I regularizer, b accumulates reward-weighted contexts.
// A stays symmetric positive-definite by construction, which is what keeps
// the Cholesky solve valid.
type linucbArmState struct {
	A     *mat.SymDense
	B     *mat.VecDense
	Pulls int64
}

// linucb is the contextual policy: theta = A^-1 b per arm, scored as
// xT*theta + alpha*sqrt(xT*A^-1*x). Solves go through a Cholesky
// factorization rather than an explicit inverse.
type linucb struct {
	cfg    Config
	states *arena[linucbArmState]
	logger *slog.Logger
}

func newLinUCB(cfg Config) *linucb {
	d := cfg.FeatureDim
	seed := func() linucbArmState {
		a := mat.NewSymDense(d, nil)
		for i := 0; i < d; i++ {
			a.SetSym(i, i, cfg.Lambda)
		}
		return linucbArmState{A: a, B: mat.NewVecDense(d, nil)}
	}
	return &linucb{
		cfg:    cfg,
		states: newArena(seed, cloneLinUCBState),
		logger: slog.Default().With("component", "bandit.linucb"),
	}
}

func cloneLinUCBState(st *linucbArmState) linucbArmState {
	d := st.B.Len()
	a := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			a.SetSym(i, j, st.A.At(i, j))
		}
	}
	b := mat.NewVecDense(d, nil)
	for i := 0; i < d; i++ {
		b.SetVec(i, st.B.AtVec(i))
	}
	return linucbArmState{A: a, B: b, Pulls: st.Pulls}
}

func (p *linucb) checkDim(ctx *features.Context) error {
	if len(ctx.Vector) != p.cfg.FeatureDim {
		return fmt.Errorf("context dimension %d does not match policy dimension %d",
			len(ctx.Vector), p.cfg.FeatureDim)
	}
	return nil
}

func (p *linucb) Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error) {
	active := snap.Active()
	if len(active) == 0 {
		return Selection{}, ErrNoEligibleArms
	}
	if err := p.checkDim(ctx); err != nil {
		return Selection{}, err
	}

	x := mat.NewVecDense(p.cfg.FeatureDim, ctx.Vector)
	scores := make(map[string]float64, len(active))
	estimates := make(map[string]float64, len(active))

	for _, a := range active {
		st := p.states.load(a.ID)

		var chol mat.Cholesky
		if !chol.Factorize(st.A) {
			return p.fallback(ctx, snap, a.ID, scores, estimates), nil
		}

		var theta, z mat.VecDense
		if err := chol.SolveVecTo(&theta, st.B); err != nil {
			return p.fallback(ctx, snap, a.ID, scores, estimates), nil
		}
		if err := chol.SolveVecTo(&z, x); err != nil {
			return p.fallback(ctx, snap, a.ID, scores, estimates), nil
		}

		meanEst := mat.Dot(x, &theta)
		width := mat.Dot(x, &z) // xT A^-1 x, >= 0 for SPD A
		if width < 0 {
			width = 0
		}
		score := meanEst + p.cfg.ExplorationAlpha*math.Sqrt(width)
		if !isFinite(score) || !isFinite(meanEst) {
			return p.fallback(ctx, snap, a.ID, scores, estimates), nil
		}

		var est float64
		if st.Pulls == 0 {
			est = optimisticEstimate
		} else {
			est = clamp(meanEst, 0, 1)
		}
		scores[a.ID] = score
		estimates[a.ID] = est
	}

	chosen := argmaxStable(active, scores)
	return Selection{
		ArmID:      chosen,
		Scores:     scores,
		Estimates:  estimates,
		Confidence: confidenceFrom(scores, chosen),
	}, nil
}

// fallback returns the deterministic least-cost selection used when scoring
// an arm produced a non-finite value or a non-SPD matrix.
func (p *linucb) fallback(ctx *features.Context, snap *arms.Snapshot, armID string, scores, estimates map[string]float64) Selection {
	p.logger.Warn("policy math unstable, falling back to least-cost arm",
		"arm_id", armID,
		"request_id", ctx.RequestID,
	)
	least, _ := snap.LeastCost(ctx)
	return Selection{
		ArmID:     least.ID,
		Scores:    scores,
		Estimates: estimates,
		Fallback:  true,
	}
}

func (p *linucb) Update(dec Decision, reward float64) error {
	if !isFinite(reward) {
		return &NumericInstabilityError{Policy: TypeLinUCB, ArmID: dec.ArmID, Op: "update"}
	}
	if dec.Context == nil {
		return fmt.Errorf("linucb update requires the decision context")
	}
	if err := p.checkDim(dec.Context); err != nil {
		return err
	}
	reward = clamp(reward, 0, 1)

	x := dec.Context.Vector
	d := p.cfg.FeatureDim
	p.states.update(dec.ArmID, func(st *linucbArmState) {
		// A += x*xT; the upper triangle is enough for a SymDense.
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				st.A.SetSym(i, j, st.A.At(i, j)+x[i]*x[j])
			}
		}
		for i := 0; i < d; i++ {
			st.B.SetVec(i, st.B.AtVec(i)+reward*x[i])
		}
		st.Pulls++
	})
	return nil
}

type linucbArmCheckpoint struct {
	A     []float64 `json:"a"` // row-major d*d
	B     []float64 `json:"b"`
	Pulls int64     `json:"pulls"`
}

type linucbCheckpoint struct {
	Policy     string                         `json:"policy"`
	Version    int                            `json:"version"`
	FeatureDim int                            `json:"feature_dim"`
	Lambda     float64                        `json:"lambda"`
	Arms       map[string]linucbArmCheckpoint `json:"arms"`
}

func (p *linucb) Snapshot() ([]byte, error) {
	d := p.cfg.FeatureDim
	cp := linucbCheckpoint{
		Policy:     TypeLinUCB,
		Version:    checkpointVersion,
		FeatureDim: d,
		Lambda:     p.cfg.Lambda,
		Arms:       make(map[string]linucbArmCheckpoint, p.states.size()),
	}

	p.states.each(func(armID string, st *linucbArmState) {
		a := make([]float64, d*d)
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				a[i*d+j] = st.A.At(i, j)
			}
		}
		b := make([]float64, d)
		for i := 0; i < d; i++ {
			b[i] = st.B.AtVec(i)
		}
		cp.Arms[armID] = linucbArmCheckpoint{A: a, B: b, Pulls: st.Pulls}
	})

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s state: %w", TypeLinUCB, err)
	}
	return data, nil
}

func (p *linucb) Restore(data []byte) error {
	var cp linucbCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", TypeLinUCB, err)
	}
	if cp.Policy != TypeLinUCB {
		return &CheckpointMismatchError{Want: TypeLinUCB, Got: cp.Policy}
	}
	d := p.cfg.FeatureDim
	if cp.FeatureDim != d {
		return &CheckpointMismatchError{
			Want:   TypeLinUCB,
			Got:    cp.Policy,
			Detail: fmt.Sprintf("feature dimension %d, policy expects %d", cp.FeatureDim, d),
		}
	}

	states := make(map[string]linucbArmState, len(cp.Arms))
	for armID, ac := range cp.Arms {
		if len(ac.A) != d*d || len(ac.B) != d {
			return &CheckpointMismatchError{
				Want:   TypeLinUCB,
				Got:    cp.Policy,
				Detail: fmt.Sprintf("arm %q has malformed matrix data", armID),
			}
		}
		a := mat.NewSymDense(d, nil)
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				a.SetSym(i, j, ac.A[i*d+j])
			}
		}
		states[armID] = linucbArmState{
			A:     a,
			B:     mat.NewVecDense(d, append([]float64(nil), ac.B...)),
			Pulls: ac.Pulls,
		}
	}
	p.states.replace(states)
	return nil
}
