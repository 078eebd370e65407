package bandit

import (
	"encoding/json"
	"fmt"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

// thompsonArmState is the Beta posterior over one arm's bounded reward.
// Bounded rewards use the fractional update Alpha += r, Beta += 1-r, which
// keeps the posterior mean at the running reward mean.
type thompsonArmState struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Pulls int64   `json:"pulls"`
}

func (st thompsonArmState) mean() float64 {
	return st.Alpha / (st.Alpha + st.Beta)
}

// thompson samples one value per arm from its posterior and picks the
// maximum; exploration is implicit in the posterior width.
type thompson struct {
	cfg    Config
	rng    *lockedRand
	states *arena[thompsonArmState]
}

func newThompson(cfg Config) *thompson {
	seed := func() thompsonArmState {
		return thompsonArmState{Alpha: cfg.PriorAlpha, Beta: cfg.PriorBeta}
	}
	return &thompson{
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
		states: newArena(seed, valueClone[thompsonArmState]),
	}
}

func (p *thompson) Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error) {
	active := snap.Active()
	if len(active) == 0 {
		return Selection{}, ErrNoEligibleArms
	}

	scores := make(map[string]float64, len(active))
	estimates := make(map[string]float64, len(active))
	for _, a := range active {
		st := p.states.load(a.ID)
		scores[a.ID] = sampleBeta(p.rng, st.Alpha, st.Beta)
		if st.Pulls == 0 {
			estimates[a.ID] = optimisticEstimate
		} else {
			estimates[a.ID] = st.mean()
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

func (p *thompson) Update(dec Decision, reward float64) error {
	if !isFinite(reward) {
		return &NumericInstabilityError{Policy: TypeThompson, ArmID: dec.ArmID, Op: "update"}
	}
	reward = clamp(reward, 0, 1)

	p.states.update(dec.ArmID, func(st *thompsonArmState) {
		st.Alpha += reward
		st.Beta += 1 - reward
		st.Pulls++
	})
	return nil
}

type thompsonCheckpoint struct {
	Policy  string                      `json:"policy"`
	Version int                         `json:"version"`
	Arms    map[string]thompsonArmState `json:"arms"`
}

func (p *thompson) Snapshot() ([]byte, error) {
	cp := thompsonCheckpoint{
		Policy:  TypeThompson,
		Version: checkpointVersion,
		Arms:    make(map[string]thompsonArmState, p.states.size()),
	}
	p.states.each(func(armID string, st *thompsonArmState) {
		cp.Arms[armID] = *st
	})

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s state: %w", TypeThompson, err)
	}
	return data, nil
}

func (p *thompson) Restore(data []byte) error {
	var cp thompsonCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", TypeThompson, err)
	}
	if cp.Policy != TypeThompson {
		return &CheckpointMismatchError{Want: TypeThompson, Got: cp.Policy}
	}

	if cp.Arms == nil {
		cp.Arms = make(map[string]thompsonArmState)
	}
	p.states.replace(cp.Arms)
	return nil
}
