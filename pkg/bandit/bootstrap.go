package bandit

import (
	"encoding/json"
	"fmt"
	"math"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

// Ensemble collapse guard: once every replica has data and their spread
// drops below collapseStd, one replica is re-seeded with jitter so the
// exploration bonus cannot silently vanish.
const (
	collapseStd    = 1e-4
	reseedJitter   = 0.05
	minReplicaData = 2 // per replica, before collapse detection kicks in
)

type replicaStat struct {
	Pulls int64   `json:"pulls"`
	Mean  float64 `json:"mean"`
}

// bootstrapArmState is one arm's replica ensemble. TotalPulls counts real
// observations for the arm (every update), independent of which replicas
// absorbed them.
type bootstrapArmState struct {
	Replicas   []replicaStat `json:"replicas"`
	TotalPulls int64         `json:"total_pulls"`
	Reseeds    int64         `json:"reseeds"`
	RotateIdx  int           `json:"rotate_idx"`
}

// bootstrapped keeps K running-statistics replicas per arm; each outcome
// updates each replica with the configured Bernoulli probability, and the
// spread across replicas supplies the exploration bonus.
type bootstrapped struct {
	cfg    Config
	rng    *lockedRand
	states *arena[bootstrapArmState]
}

func newBootstrapped(cfg Config) *bootstrapped {
	seed := func() bootstrapArmState {
		return bootstrapArmState{Replicas: make([]replicaStat, cfg.Replicas)}
	}
	clone := func(st *bootstrapArmState) bootstrapArmState {
		next := *st
		next.Replicas = append([]replicaStat(nil), st.Replicas...)
		return next
	}
	return &bootstrapped{
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
		states: newArena(seed, clone),
	}
}

// ensembleStats returns the mean and population standard deviation across
// replicas that have absorbed at least one observation.
func ensembleStats(replicas []replicaStat) (mean, std float64, fed int) {
	for _, r := range replicas {
		if r.Pulls > 0 {
			mean += r.Mean
			fed++
		}
	}
	if fed == 0 {
		return 0, 0, 0
	}
	mean /= float64(fed)
	for _, r := range replicas {
		if r.Pulls > 0 {
			d := r.Mean - mean
			std += d * d
		}
	}
	std = math.Sqrt(std / float64(fed))
	return mean, std, fed
}

func (p *bootstrapped) Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error) {
	active := snap.Active()
	if len(active) == 0 {
		return Selection{}, ErrNoEligibleArms
	}

	scores := make(map[string]float64, len(active))
	estimates := make(map[string]float64, len(active))
	var untried string
	for _, a := range active {
		st := p.states.load(a.ID)
		if st.TotalPulls == 0 {
			if untried == "" {
				untried = a.ID
			}
			estimates[a.ID] = optimisticEstimate
			scores[a.ID] = optimisticEstimate + p.cfg.StdMultiplier
			continue
		}
		mean, std, _ := ensembleStats(st.Replicas)
		estimates[a.ID] = clamp(mean, 0, 1)
		scores[a.ID] = mean + p.cfg.StdMultiplier*std
	}

	if untried != "" {
		return Selection{
			ArmID:      untried,
			Scores:     scores,
			Estimates:  estimates,
			Confidence: 1 / float64(len(active)),
			Explored:   true,
		}, nil
	}

	chosen := argmaxStable(active, scores)
	return Selection{
		ArmID:      chosen,
		Scores:     scores,
		Estimates:  estimates,
		Confidence: confidenceFrom(scores, chosen),
	}, nil
}

func (p *bootstrapped) Update(dec Decision, reward float64) error {
	if !isFinite(reward) {
		return &NumericInstabilityError{Policy: TypeBootstrapped, ArmID: dec.ArmID, Op: "update"}
	}
	reward = clamp(reward, 0, 1)

	p.states.update(dec.ArmID, func(st *bootstrapArmState) {
		touched := false
		for i := range st.Replicas {
			if p.rng.Float64() >= p.cfg.ResampleProbability {
				continue
			}
			r := &st.Replicas[i]
			r.Pulls++
			r.Mean += (reward - r.Mean) / float64(r.Pulls)
			touched = true
		}
		// Guarantee the observation lands somewhere; a fully skipped
		// outcome would be a silent data loss.
		if !touched {
			i := st.RotateIdx % len(st.Replicas)
			r := &st.Replicas[i]
			r.Pulls++
			r.Mean += (reward - r.Mean) / float64(r.Pulls)
		}
		st.TotalPulls++

		p.reseedOnCollapse(st)
	})
	return nil
}

// reseedOnCollapse jitters one replica when the ensemble variance has
// collapsed. Runs under the arm's cell update, so it is race-free.
func (p *bootstrapped) reseedOnCollapse(st *bootstrapArmState) {
	if st.TotalPulls < int64(len(st.Replicas))*minReplicaData {
		return
	}
	mean, std, fed := ensembleStats(st.Replicas)
	if fed < len(st.Replicas) || std >= collapseStd {
		return
	}

	i := st.RotateIdx % len(st.Replicas)
	jitter := (p.rng.Float64()*2 - 1) * reseedJitter
	st.Replicas[i] = replicaStat{
		Pulls: 1,
		Mean:  clamp(mean+jitter, 0, 1),
	}
	st.RotateIdx = (i + 1) % len(st.Replicas)
	st.Reseeds++
}

type bootstrapCheckpoint struct {
	Policy   string                       `json:"policy"`
	Version  int                          `json:"version"`
	Replicas int                          `json:"replicas"`
	Arms     map[string]bootstrapArmState `json:"arms"`
}

func (p *bootstrapped) Snapshot() ([]byte, error) {
	cp := bootstrapCheckpoint{
		Policy:   TypeBootstrapped,
		Version:  checkpointVersion,
		Replicas: p.cfg.Replicas,
		Arms:     make(map[string]bootstrapArmState, p.states.size()),
	}
	p.states.each(func(armID string, st *bootstrapArmState) {
		dup := *st
		dup.Replicas = append([]replicaStat(nil), st.Replicas...)
		cp.Arms[armID] = dup
	})

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s state: %w", TypeBootstrapped, err)
	}
	return data, nil
}

func (p *bootstrapped) Restore(data []byte) error {
	var cp bootstrapCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", TypeBootstrapped, err)
	}
	if cp.Policy != TypeBootstrapped {
		return &CheckpointMismatchError{Want: TypeBootstrapped, Got: cp.Policy}
	}
	if cp.Replicas != p.cfg.Replicas {
		return &CheckpointMismatchError{
			Want:   TypeBootstrapped,
			Got:    cp.Policy,
			Detail: fmt.Sprintf("ensemble size %d, policy expects %d", cp.Replicas, p.cfg.Replicas),
		}
	}

	if cp.Arms == nil {
		cp.Arms = make(map[string]bootstrapArmState)
	}
	p.states.replace(cp.Arms)
	return nil
}
