package bandit

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

// meanArmState is the running-statistics state shared by epsilon_greedy and
// ucb1: a pull counter and an incrementally updated mean reward.
type meanArmState struct {
	// Pulls is the number of rewards folded into the mean. Monotonically
	// non-decreasing.
	Pulls int64 `json:"pulls"`

	// Mean is the running mean reward.
	Mean float64 `json:"mean"`
}

// epsilonGreedy explores a uniformly random arm with a decaying probability
// and otherwise exploits the best running mean.
type epsilonGreedy struct {
	cfg     Config
	rng     *lockedRand
	states  *arena[meanArmState]
	updates atomic.Int64  // t in the decay schedule
	eps     atomic.Uint64 // float bits; eps0 in the decay schedule
}

func newEpsilonGreedy(cfg Config) *epsilonGreedy {
	p := &epsilonGreedy{
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
		states: newArena(func() meanArmState { return meanArmState{} }, valueClone[meanArmState]),
	}
	p.eps.Store(math.Float64bits(cfg.Epsilon))
	return p
}

// SetEpsilon replaces the base exploration probability without resetting
// the decay counter. Non-finite values are ignored.
func (p *epsilonGreedy) SetEpsilon(eps float64) {
	if !isFinite(eps) {
		return
	}
	p.eps.Store(math.Float64bits(clamp(eps, 0, 1)))
}

// epsilonAt evaluates the decay schedule eps_t = eps0 / (1 + t*decay).
func (p *epsilonGreedy) epsilonAt(t int64) float64 {
	eps0 := math.Float64frombits(p.eps.Load())
	return eps0 / (1 + float64(t)*p.cfg.EpsilonDecay)
}

func (p *epsilonGreedy) Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error) {
	active := snap.Active()
	if len(active) == 0 {
		return Selection{}, ErrNoEligibleArms
	}

	scores := make(map[string]float64, len(active))
	estimates := make(map[string]float64, len(active))
	for _, a := range active {
		st := p.states.load(a.ID)
		est := optimisticEstimate
		if st.Pulls > 0 {
			est = st.Mean
		}
		estimates[a.ID] = est
		scores[a.ID] = est
	}

	if p.rng.Float64() < p.epsilonAt(p.updates.Load()) {
		pick := active[p.rng.Intn(len(active))]
		return Selection{
			ArmID:      pick.ID,
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

func (p *epsilonGreedy) Update(dec Decision, reward float64) error {
	if !isFinite(reward) {
		return &NumericInstabilityError{Policy: TypeEpsilonGreedy, ArmID: dec.ArmID, Op: "update"}
	}
	reward = clamp(reward, 0, 1)

	p.states.update(dec.ArmID, func(st *meanArmState) {
		st.Pulls++
		st.Mean += (reward - st.Mean) / float64(st.Pulls)
	})
	p.updates.Add(1)
	return nil
}

type epsilonCheckpoint struct {
	Policy  string                  `json:"policy"`
	Version int                     `json:"version"`
	Updates int64                   `json:"updates"`
	Arms    map[string]meanArmState `json:"arms"`
}

func (p *epsilonGreedy) Snapshot() ([]byte, error) {
	cp := epsilonCheckpoint{
		Policy:  TypeEpsilonGreedy,
		Version: checkpointVersion,
		Updates: p.updates.Load(),
		Arms:    make(map[string]meanArmState, p.states.size()),
	}
	p.states.each(func(armID string, st *meanArmState) {
		cp.Arms[armID] = *st
	})

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s state: %w", TypeEpsilonGreedy, err)
	}
	return data, nil
}

func (p *epsilonGreedy) Restore(data []byte) error {
	var cp epsilonCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", TypeEpsilonGreedy, err)
	}
	if cp.Policy != TypeEpsilonGreedy {
		return &CheckpointMismatchError{Want: TypeEpsilonGreedy, Got: cp.Policy}
	}

	if cp.Arms == nil {
		cp.Arms = make(map[string]meanArmState)
	}
	p.states.replace(cp.Arms)
	p.updates.Store(cp.Updates)
	return nil
}
