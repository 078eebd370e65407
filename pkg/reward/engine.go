package reward

import (
	"fmt"
	"math"
	"time"
)

// Outcome is one completed request as reported by the caller.
type Outcome struct {
	// RequestID ties the outcome back to its decision.
	RequestID string

	// QualityScore is the caller's quality judgment in [0,1].
	QualityScore float64

	// Latency is the observed end-to-end serving latency.
	Latency time.Duration

	// ActualCost is the realized cost of serving the request.
	ActualCost float64

	// Success is false when the arm failed to serve the request. Failed
	// outcomes earn the minimum reward regardless of the other fields.
	Success bool

	// ReceivedAt is when the outcome report arrived.
	ReceivedAt time.Time
}

// Config tunes the outcome-to-reward blend.
type Config struct {
	// QualityWeight scales the quality contribution.
	// Default: 1.0
	QualityWeight float64 `yaml:"quality_weight"`

	// LatencyWeight scales the latency penalty.
	// Default: 0.3
	LatencyWeight float64 `yaml:"latency_weight"`

	// TargetLatencyMS is the latency above which the penalty starts to
	// accumulate; at the target the penalty is zero, and it saturates
	// toward LatencyWeight as latency grows far past it.
	// Default: 1000
	TargetLatencyMS float64 `yaml:"target_latency_ms"`

	// CostWeight scales the cost penalty.
	// Default: 0.2
	CostWeight float64 `yaml:"cost_weight"`

	// CostScale is the cost at which the penalty reaches half of
	// CostWeight.
	// Default: 0.1
	CostScale float64 `yaml:"cost_scale"`

	// MinReward is the floor reward assigned to failures and timeouts.
	// Default: 0.0
	MinReward float64 `yaml:"min_reward"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		QualityWeight:   1.0,
		LatencyWeight:   0.3,
		TargetLatencyMS: 1000,
		CostWeight:      0.2,
		CostScale:       0.1,
	}
}

// Validate rejects weight combinations that cannot produce a usable signal.
func (c *Config) Validate() error {
	for _, chk := range []struct {
		name string
		v    float64
	}{
		{"quality_weight", c.QualityWeight},
		{"latency_weight", c.LatencyWeight},
		{"target_latency_ms", c.TargetLatencyMS},
		{"cost_weight", c.CostWeight},
		{"cost_scale", c.CostScale},
		{"min_reward", c.MinReward},
	} {
		if math.IsNaN(chk.v) || math.IsInf(chk.v, 0) {
			return fmt.Errorf("%s must be finite, got %v", chk.name, chk.v)
		}
		if chk.v < 0 {
			return fmt.Errorf("%s must be >= 0, got %v", chk.name, chk.v)
		}
	}
	if c.QualityWeight == 0 {
		return fmt.Errorf("quality_weight must be > 0")
	}
	if c.TargetLatencyMS == 0 {
		return fmt.Errorf("target_latency_ms must be > 0")
	}
	if c.CostScale == 0 {
		return fmt.Errorf("cost_scale must be > 0")
	}
	if c.MinReward > 1 {
		return fmt.Errorf("min_reward must be <= 1, got %v", c.MinReward)
	}
	return nil
}

// Engine scores outcomes. It is stateless and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine from a validated config.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reward config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Score converts one outcome into a reward in [MinReward, 1].
//
// Non-finite or out-of-range outcome fields are treated conservatively:
// quality is clamped into [0,1] and non-finite latency or cost earns the
// full respective penalty, so a malformed report can never inflate an
// arm's estimate.
func (e *Engine) Score(out Outcome) float64 {
	if !out.Success {
		return e.cfg.MinReward
	}

	quality := out.QualityScore
	if math.IsNaN(quality) {
		quality = 0
	}
	quality = clamp01(quality)

	r := e.cfg.QualityWeight * quality
	r -= e.cfg.LatencyWeight * e.latencyPenalty(out.Latency)
	r -= e.cfg.CostWeight * e.costPenalty(out.ActualCost)

	if r < e.cfg.MinReward {
		return e.cfg.MinReward
	}
	return clamp01(r)
}

// TimeoutReward is the synthesized reward for a decision whose outcome
// never arrived. It is identical to a failure: the minimum.
func (e *Engine) TimeoutReward() float64 {
	return e.cfg.MinReward
}

// latencyPenalty is 0 at or below the target and saturates toward 1 as
// latency grows past it: excess/(excess+target).
func (e *Engine) latencyPenalty(latency time.Duration) float64 {
	ms := float64(latency.Milliseconds())
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 1
	}
	excess := ms - e.cfg.TargetLatencyMS
	if excess <= 0 {
		return 0
	}
	return excess / (excess + e.cfg.TargetLatencyMS)
}

// costPenalty saturates toward 1, crossing 1/2 at CostScale.
func (e *Engine) costPenalty(cost float64) float64 {
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 1
	}
	if cost <= 0 {
		return 0
	}
	return cost / (cost + e.cfg.CostScale)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
