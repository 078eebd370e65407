package bandit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

const (
	// sigmaFloor keeps the predicted uncertainty strictly positive so the
	// Gaussian NLL stays finite.
	sigmaFloor = 1e-3

	// surpriseDecay smooths the running squared-residual average used for
	// spike detection.
	surpriseDecay = 0.95

	// minSpikeHistory is the number of applied updates before spike
	// detection is trusted.
	minSpikeHistory = 10
)

// neuralArmState is one arm's regressor: a single tanh hidden layer feeding
// a mean head and an uncertainty head (sigma via softplus). Surprise is the
// EMA of the squared normalized residual ((r-mu)/sigma)^2; together with
// Skipped it backs the divergence guard.
type neuralArmState struct {
	W1       []float64 `json:"w1"` // hidden x dim, row-major
	B1       []float64 `json:"b1"`
	WMean    []float64 `json:"w_mean"`
	BMean    float64   `json:"b_mean"`
	WStd     []float64 `json:"w_std"`
	BStd     float64   `json:"b_std"`
	Pulls    int64     `json:"pulls"`
	Surprise float64   `json:"surprise"`
	Skipped  int64     `json:"skipped"`
}

// neural scores arms with a learned mean plus a multiple of the learned
// uncertainty. Each outcome triggers exactly one clipped gradient step on
// the Gaussian negative log-likelihood; divergent steps are skipped and
// counted instead of applied.
type neural struct {
	cfg    Config
	rng    *lockedRand
	states *arena[neuralArmState]
	logger *slog.Logger
}

func newNeural(cfg Config) *neural {
	p := &neural{
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
		logger: slog.Default().With("component", "bandit.neural"),
	}
	seed := func() neuralArmState { return p.initState() }
	clone := func(st *neuralArmState) neuralArmState {
		next := *st
		next.W1 = append([]float64(nil), st.W1...)
		next.B1 = append([]float64(nil), st.B1...)
		next.WMean = append([]float64(nil), st.WMean...)
		next.WStd = append([]float64(nil), st.WStd...)
		return next
	}
	p.states = newArena(seed, clone)
	return p
}

// initState draws small uniform weights so fresh arms predict near the
// prior mean reward with wide uncertainty.
func (p *neural) initState() neuralArmState {
	d, h := p.cfg.FeatureDim, p.cfg.HiddenSize
	scaleIn := 1 / math.Sqrt(float64(d))
	scaleHid := 1 / math.Sqrt(float64(h))

	st := neuralArmState{
		W1:    make([]float64, h*d),
		B1:    make([]float64, h),
		WMean: make([]float64, h),
		WStd:  make([]float64, h),
		BMean: 0.5,
	}
	for i := range st.W1 {
		st.W1[i] = (p.rng.Float64()*2 - 1) * scaleIn
	}
	for i := 0; i < h; i++ {
		st.WMean[i] = (p.rng.Float64()*2 - 1) * scaleHid
		st.WStd[i] = (p.rng.Float64()*2 - 1) * scaleHid
	}
	return st
}

func softplus(v float64) float64 {
	switch {
	case v > 30:
		return v
	case v < -30:
		return math.Exp(v)
	default:
		return math.Log1p(math.Exp(v))
	}
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// forward runs the net, returning the hidden activations alongside the
// heads so Update can reuse them for backprop.
func (p *neural) forward(st *neuralArmState, x []float64) (mu, sigma, sRaw float64, hidden []float64) {
	d, h := p.cfg.FeatureDim, p.cfg.HiddenSize
	hidden = make([]float64, h)
	for i := 0; i < h; i++ {
		z := st.B1[i]
		row := st.W1[i*d : (i+1)*d]
		for j := 0; j < d; j++ {
			z += row[j] * x[j]
		}
		hidden[i] = math.Tanh(z)
	}
	mu, sRaw = st.BMean, st.BStd
	for i := 0; i < h; i++ {
		mu += st.WMean[i] * hidden[i]
		sRaw += st.WStd[i] * hidden[i]
	}
	sigma = softplus(sRaw) + sigmaFloor
	return mu, sigma, sRaw, hidden
}

func (p *neural) checkDim(ctx *features.Context) error {
	if len(ctx.Vector) != p.cfg.FeatureDim {
		return fmt.Errorf("context dimension %d does not match policy dimension %d",
			len(ctx.Vector), p.cfg.FeatureDim)
	}
	return nil
}

func (p *neural) Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error) {
	active := snap.Active()
	if len(active) == 0 {
		return Selection{}, ErrNoEligibleArms
	}
	if err := p.checkDim(ctx); err != nil {
		return Selection{}, err
	}

	scores := make(map[string]float64, len(active))
	estimates := make(map[string]float64, len(active))
	for _, a := range active {
		st := p.states.load(a.ID)
		mu, sigma, _, _ := p.forward(st, ctx.Vector)
		score := mu + p.cfg.ExplorationAlpha*sigma
		if !isFinite(score) {
			p.logger.Warn("policy math unstable, falling back to least-cost arm",
				"arm_id", a.ID,
				"request_id", ctx.RequestID,
			)
			least, _ := snap.LeastCost(ctx)
			return Selection{
				ArmID:     least.ID,
				Scores:    scores,
				Estimates: estimates,
				Fallback:  true,
			}, nil
		}
		scores[a.ID] = score
		if st.Pulls == 0 {
			estimates[a.ID] = optimisticEstimate
		} else {
			estimates[a.ID] = clamp(mu, 0, 1)
		}
	}

	chosen := argmaxStable(active, scores)
	return Selection{
		ArmID:      chosen,
		Scores:     scores,
		Estimates:  estimates,
		Confidence: confidenceFrom(scores, chosen),
	}, nil
}

func (p *neural) Update(dec Decision, reward float64) error {
	if !isFinite(reward) {
		return &NumericInstabilityError{Policy: TypeNeural, ArmID: dec.ArmID, Op: "update"}
	}
	if dec.Context == nil {
		return fmt.Errorf("neural update requires the decision context")
	}
	if err := p.checkDim(dec.Context); err != nil {
		return err
	}
	reward = clamp(reward, 0, 1)

	skipped := false
	p.states.update(dec.ArmID, func(st *neuralArmState) {
		if !p.step(st, dec.Context.Vector, reward) {
			st.Skipped++
			skipped = true
		}
	})
	if skipped {
		return &NumericInstabilityError{Policy: TypeNeural, ArmID: dec.ArmID, Op: "update"}
	}
	return nil
}

// step performs one clipped SGD step on the Gaussian NLL. It returns false
// without touching the weights when the math goes non-finite or the squared
// normalized residual spikes past its running average. The surprise EMA
// absorbs skipped observations too, so a sustained shift in outcomes
// re-enables learning after a bounded number of skips.
func (p *neural) step(st *neuralArmState, x []float64, reward float64) bool {
	d, h := p.cfg.FeatureDim, p.cfg.HiddenSize

	mu, sigma, sRaw, hidden := p.forward(st, x)
	diff := reward - mu
	zsq := (diff / sigma) * (diff / sigma)

	if !isFinite(zsq) || !isFinite(mu) {
		return false
	}
	spike := st.Pulls >= minSpikeHistory && zsq > p.cfg.LossSpikeFactor*math.Max(st.Surprise, 1)
	if st.Surprise == 0 {
		st.Surprise = zsq
	} else {
		st.Surprise = surpriseDecay*st.Surprise + (1-surpriseDecay)*zsq
	}
	if spike {
		return false
	}

	// Backprop through both heads.
	dMu := -diff / (sigma * sigma)
	dSigma := -(diff*diff)/(sigma*sigma*sigma) + 1/sigma
	dS := dSigma * sigmoid(sRaw)

	gWMean := make([]float64, h)
	gWStd := make([]float64, h)
	gW1 := make([]float64, h*d)
	gB1 := make([]float64, h)
	for i := 0; i < h; i++ {
		gWMean[i] = dMu * hidden[i]
		gWStd[i] = dS * hidden[i]
		dHidden := dMu*st.WMean[i] + dS*st.WStd[i]
		dZ := dHidden * (1 - hidden[i]*hidden[i])
		gB1[i] = dZ
		for j := 0; j < d; j++ {
			gW1[i*d+j] = dZ * x[j]
		}
	}

	// Global norm clip.
	norm := dMu*dMu + dS*dS
	for i := range gWMean {
		norm += gWMean[i]*gWMean[i] + gWStd[i]*gWStd[i] + gB1[i]*gB1[i]
	}
	for i := range gW1 {
		norm += gW1[i] * gW1[i]
	}
	norm = math.Sqrt(norm)
	if !isFinite(norm) {
		return false
	}
	scale := 1.0
	if norm > p.cfg.GradientClip {
		scale = p.cfg.GradientClip / norm
	}

	lr := p.cfg.LearningRate * scale
	st.BMean -= lr * dMu
	st.BStd -= lr * dS
	for i := 0; i < h; i++ {
		st.WMean[i] -= lr * gWMean[i]
		st.WStd[i] -= lr * gWStd[i]
		st.B1[i] -= lr * gB1[i]
		for j := 0; j < d; j++ {
			st.W1[i*d+j] -= lr * gW1[i*d+j]
		}
	}

	st.Pulls++
	return true
}

type neuralCheckpoint struct {
	Policy     string                    `json:"policy"`
	Version    int                       `json:"version"`
	FeatureDim int                       `json:"feature_dim"`
	HiddenSize int                       `json:"hidden_size"`
	Arms       map[string]neuralArmState `json:"arms"`
}

func (p *neural) Snapshot() ([]byte, error) {
	cp := neuralCheckpoint{
		Policy:     TypeNeural,
		Version:    checkpointVersion,
		FeatureDim: p.cfg.FeatureDim,
		HiddenSize: p.cfg.HiddenSize,
		Arms:       make(map[string]neuralArmState, p.states.size()),
	}
	p.states.each(func(armID string, st *neuralArmState) {
		dup := *st
		dup.W1 = append([]float64(nil), st.W1...)
		dup.B1 = append([]float64(nil), st.B1...)
		dup.WMean = append([]float64(nil), st.WMean...)
		dup.WStd = append([]float64(nil), st.WStd...)
		cp.Arms[armID] = dup
	})

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s state: %w", TypeNeural, err)
	}
	return data, nil
}

func (p *neural) Restore(data []byte) error {
	var cp neuralCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", TypeNeural, err)
	}
	if cp.Policy != TypeNeural {
		return &CheckpointMismatchError{Want: TypeNeural, Got: cp.Policy}
	}
	if cp.FeatureDim != p.cfg.FeatureDim || cp.HiddenSize != p.cfg.HiddenSize {
		return &CheckpointMismatchError{
			Want: TypeNeural,
			Got:  cp.Policy,
			Detail: fmt.Sprintf("geometry %dx%d, policy expects %dx%d",
				cp.FeatureDim, cp.HiddenSize, p.cfg.FeatureDim, p.cfg.HiddenSize),
		}
	}

	d, h := p.cfg.FeatureDim, p.cfg.HiddenSize
	for armID, st := range cp.Arms {
		if len(st.W1) != h*d || len(st.B1) != h || len(st.WMean) != h || len(st.WStd) != h {
			return &CheckpointMismatchError{
				Want:   TypeNeural,
				Got:    cp.Policy,
				Detail: fmt.Sprintf("arm %q has malformed weight data", armID),
			}
		}
	}
	if cp.Arms == nil {
		cp.Arms = make(map[string]neuralArmState)
	}
	p.states.replace(cp.Arms)
	return nil
}
