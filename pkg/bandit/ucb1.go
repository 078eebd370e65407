package bandit

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

// ucb1 scores each arm with its mean reward plus the classic
// sqrt(2 ln t / n) exploration bonus. Untried arms are always selected
// first, in stable catalog order.
type ucb1 struct {
	states     *arena[meanArmState]
	totalPulls atomic.Int64
}

func newUCB1(cfg Config) *ucb1 {
	return &ucb1{
		states: newArena(func() meanArmState { return meanArmState{} }, valueClone[meanArmState]),
	}
}

// ucb1Score is the upper confidence bound for one arm. t is the total pull
// count across arms, n the arm's own pulls; both must be >= 1.
func ucb1Score(mean float64, t, n int64) float64 {
	return mean + math.Sqrt(2*math.Log(float64(t))/float64(n))
}

func (p *ucb1) Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error) {
	active := snap.Active()
	if len(active) == 0 {
		return Selection{}, ErrNoEligibleArms
	}

	t := p.totalPulls.Load()
	if t < 1 {
		t = 1
	}
	// Finite stand-in score for untried arms; the explicit exploration
	// branch below is what actually guarantees they go first.
	untriedScore := optimisticEstimate + math.Sqrt(2*math.Log(math.Max(float64(t), math.E)))

	scores := make(map[string]float64, len(active))
	estimates := make(map[string]float64, len(active))
	var untried string
	for _, a := range active {
		st := p.states.load(a.ID)
		if st.Pulls == 0 {
			if untried == "" {
				untried = a.ID
			}
			estimates[a.ID] = optimisticEstimate
			scores[a.ID] = untriedScore
			continue
		}
		estimates[a.ID] = st.Mean
		scores[a.ID] = ucb1Score(st.Mean, t, st.Pulls)
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

func (p *ucb1) Update(dec Decision, reward float64) error {
	if !isFinite(reward) {
		return &NumericInstabilityError{Policy: TypeUCB1, ArmID: dec.ArmID, Op: "update"}
	}
	reward = clamp(reward, 0, 1)

	p.states.update(dec.ArmID, func(st *meanArmState) {
		st.Pulls++
		st.Mean += (reward - st.Mean) / float64(st.Pulls)
	})
	p.totalPulls.Add(1)
	return nil
}

type ucb1Checkpoint struct {
	Policy     string                  `json:"policy"`
	Version    int                     `json:"version"`
	TotalPulls int64                   `json:"total_pulls"`
	Arms       map[string]meanArmState `json:"arms"`
}

func (p *ucb1) Snapshot() ([]byte, error) {
	cp := ucb1Checkpoint{
		Policy:     TypeUCB1,
		Version:    checkpointVersion,
		TotalPulls: p.totalPulls.Load(),
		Arms:       make(map[string]meanArmState, p.states.size()),
	}
	p.states.each(func(armID string, st *meanArmState) {
		cp.Arms[armID] = *st
	})

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s state: %w", TypeUCB1, err)
	}
	return data, nil
}

func (p *ucb1) Restore(data []byte) error {
	var cp ucb1Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint: %w", TypeUCB1, err)
	}
	if cp.Policy != TypeUCB1 {
		return &CheckpointMismatchError{Want: TypeUCB1, Got: cp.Policy}
	}

	if cp.Arms == nil {
		cp.Arms = make(map[string]meanArmState)
	}
	p.states.replace(cp.Arms)
	p.totalPulls.Store(cp.TotalPulls)
	return nil
}
