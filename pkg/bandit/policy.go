package bandit

import (
	"fmt"
	"math"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/features"
)

// Policy is the contract every bandit implements: exactly four operations.
// Implementations are safe for concurrent use; Select tolerates slightly
// stale per-arm state, Update is serialized per arm.
type Policy interface {
	// Select scores the snapshot's active arms for the given context and
	// returns the policy's pick plus per-arm scoring metadata. It never
	// returns an arm outside the snapshot.
	Select(ctx *features.Context, snap *arms.Snapshot) (Selection, error)

	// Update feeds the reward observed for a past decision back into the
	// per-arm state. Rewards are expected in [0,1].
	Update(dec Decision, reward float64) error

	// Snapshot serializes the full policy state for checkpointing.
	Snapshot() ([]byte, error)

	// Restore replaces the policy state from a checkpoint produced by
	// Snapshot on a policy of the same type.
	Restore(data []byte) error
}

// ExplorationTuner is implemented by policies whose base exploration rate
// can be retuned while serving, for hot config reload.
type ExplorationTuner interface {
	// SetEpsilon replaces the base exploration probability.
	SetEpsilon(eps float64)
}

// Decision carries the part of a routing decision a policy needs to learn
// from: which arm was dispatched and in which context.
type Decision struct {
	// ArmID is the arm that actually served the request.
	ArmID string

	// Context is the feature context the decision was made in.
	Context *features.Context
}

// Selection is the metadata a policy returns from one Select call. Scores
// and Estimates cover every active arm in the snapshot and are always
// finite.
type Selection struct {
	// ArmID is the policy's own pick (argmax of Scores, or the exploration
	// target). The scoring layer may override it on cost grounds unless
	// Explored is set.
	ArmID string

	// Scores maps arm ID to the exploration-adjusted score used for
	// ranking (mean plus exploration bonus, a posterior sample, ...).
	Scores map[string]float64

	// Estimates maps arm ID to the policy's current mean quality estimate
	// in [0,1]. The quality floor is applied against these.
	Estimates map[string]float64

	// Confidence is the policy's confidence in its pick, in [0,1], derived
	// from the gap between the best and second-best score.
	Confidence float64

	// Explored is true when the pick came from an exploration rule
	// (epsilon branch, untried arm) rather than score ranking. Exploration
	// picks are honored by the scoring layer as long as they pass the
	// quality floor.
	Explored bool

	// Fallback is true when policy math went non-finite and the pick is
	// the deterministic least-cost arm instead.
	Fallback bool
}

// Config carries the tunables for all policy types. Zero values are replaced
// by the documented defaults in ApplyDefaults; the factory does this for
// callers.
type Config struct {
	// Epsilon is the initial exploration probability for epsilon_greedy.
	// Default: 0.1
	Epsilon float64 `yaml:"epsilon"`

	// EpsilonDecay controls the decay schedule eps_t = eps0 / (1 + t*decay)
	// where t counts policy updates. Default: 0.001
	EpsilonDecay float64 `yaml:"epsilon_decay"`

	// FeatureDim is the context vector dimension for linucb and neural.
	// Default: features.Dim
	FeatureDim int `yaml:"feature_dim"`

	// ExplorationAlpha widens the linucb confidence bound. Default: 1.0
	ExplorationAlpha float64 `yaml:"exploration_alpha"`

	// Lambda is the linucb ridge regularizer added to the diagonal of A.
	// Must be > 0 to keep A invertible. Default: 1.0
	Lambda float64 `yaml:"lambda"`

	// PriorAlpha and PriorBeta parameterize the thompson Beta prior.
	// Default: 1.0 each (uniform).
	PriorAlpha float64 `yaml:"prior_alpha"`
	PriorBeta  float64 `yaml:"prior_beta"`

	// Replicas is the bootstrapped ensemble size K. Default: 10
	Replicas int `yaml:"replicas"`

	// ResampleProbability is the Bernoulli probability that one outcome
	// updates one replica. Default: 0.5
	ResampleProbability float64 `yaml:"resample_probability"`

	// StdMultiplier scales the bootstrapped ensemble's standard-deviation
	// exploration bonus. Default: 1.0
	StdMultiplier float64 `yaml:"std_multiplier"`

	// HiddenSize is the neural policy's hidden layer width. Default: 16
	HiddenSize int `yaml:"hidden_size"`

	// LearningRate is the neural policy's SGD step size. Default: 0.05
	LearningRate float64 `yaml:"learning_rate"`

	// GradientClip caps the global gradient norm of one neural update.
	// Default: 1.0
	GradientClip float64 `yaml:"gradient_clip"`

	// LossSpikeFactor skips a neural update whose loss exceeds this
	// multiple of the running average loss. Default: 10.0
	LossSpikeFactor float64 `yaml:"loss_spike_factor"`

	// Seed fixes the RNG for reproducible runs; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Epsilon == 0 {
		c.Epsilon = 0.1
	}
	if c.EpsilonDecay == 0 {
		c.EpsilonDecay = 0.001
	}
	if c.FeatureDim == 0 {
		c.FeatureDim = features.Dim
	}
	if c.ExplorationAlpha == 0 {
		c.ExplorationAlpha = 1.0
	}
	if c.Lambda == 0 {
		c.Lambda = 1.0
	}
	if c.PriorAlpha == 0 {
		c.PriorAlpha = 1.0
	}
	if c.PriorBeta == 0 {
		c.PriorBeta = 1.0
	}
	if c.Replicas == 0 {
		c.Replicas = 10
	}
	if c.ResampleProbability == 0 {
		c.ResampleProbability = 0.5
	}
	if c.StdMultiplier == 0 {
		c.StdMultiplier = 1.0
	}
	if c.HiddenSize == 0 {
		c.HiddenSize = 16
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.05
	}
	if c.GradientClip == 0 {
		c.GradientClip = 1.0
	}
	if c.LossSpikeFactor == 0 {
		c.LossSpikeFactor = 10.0
	}
}

// Validate rejects configs that would break policy math. It assumes
// ApplyDefaults already ran.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"epsilon", c.Epsilon},
		{"epsilon_decay", c.EpsilonDecay},
		{"exploration_alpha", c.ExplorationAlpha},
		{"lambda", c.Lambda},
		{"prior_alpha", c.PriorAlpha},
		{"prior_beta", c.PriorBeta},
		{"resample_probability", c.ResampleProbability},
		{"std_multiplier", c.StdMultiplier},
		{"learning_rate", c.LearningRate},
		{"gradient_clip", c.GradientClip},
		{"loss_spike_factor", c.LossSpikeFactor},
	}
	for _, chk := range checks {
		if !isFinite(chk.v) {
			return fmt.Errorf("%s must be finite, got %v", chk.name, chk.v)
		}
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0,1], got %v", c.Epsilon)
	}
	if c.EpsilonDecay < 0 {
		return fmt.Errorf("epsilon_decay must be >= 0, got %v", c.EpsilonDecay)
	}
	if c.FeatureDim <= 0 {
		return fmt.Errorf("feature_dim must be > 0, got %d", c.FeatureDim)
	}
	if c.Lambda <= 0 {
		return fmt.Errorf("lambda must be > 0, got %v", c.Lambda)
	}
	if c.PriorAlpha <= 0 || c.PriorBeta <= 0 {
		return fmt.Errorf("beta prior parameters must be > 0, got alpha=%v beta=%v",
			c.PriorAlpha, c.PriorBeta)
	}
	if c.Replicas < 1 {
		return fmt.Errorf("replicas must be >= 1, got %d", c.Replicas)
	}
	if c.ResampleProbability <= 0 || c.ResampleProbability > 1 {
		return fmt.Errorf("resample_probability must be in (0,1], got %v", c.ResampleProbability)
	}
	if c.HiddenSize < 1 {
		return fmt.Errorf("hidden_size must be >= 1, got %d", c.HiddenSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0, got %v", c.LearningRate)
	}
	if c.GradientClip <= 0 {
		return fmt.Errorf("gradient_clip must be > 0, got %v", c.GradientClip)
	}
	if c.LossSpikeFactor <= 1 {
		return fmt.Errorf("loss_spike_factor must be > 1, got %v", c.LossSpikeFactor)
	}
	return nil
}

// optimisticEstimate is the quality estimate reported for an arm with no
// observations yet. Untried arms must clear any sane quality floor so they
// can be explored at least once.
const optimisticEstimate = 1.0

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// isFinite reports whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// confidenceFrom derives a [0,1] confidence from the gap between the best
// and second-best score. A single candidate scores full confidence.
func confidenceFrom(scores map[string]float64, chosen string) float64 {
	best, ok := scores[chosen]
	if !ok {
		return 0
	}
	second := math.Inf(-1)
	for id, s := range scores {
		if id == chosen {
			continue
		}
		if s > second {
			second = s
		}
	}
	if math.IsInf(second, -1) {
		return 1.0
	}
	gap := best - second
	if gap <= 0 {
		return 0
	}
	scale := math.Max(math.Abs(best), 1e-9)
	return clamp(gap/scale, 0, 1)
}

// argmaxStable returns the arm with the highest score, breaking ties by the
// stable order of the active arm list.
func argmaxStable(active []arms.Arm, scores map[string]float64) string {
	bestID := ""
	best := math.Inf(-1)
	for _, a := range active {
		if s, ok := scores[a.ID]; ok && s > best {
			best = s
			bestID = a.ID
		}
	}
	return bestID
}
