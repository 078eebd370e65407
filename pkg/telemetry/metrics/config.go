package metrics

// Config controls Prometheus metrics collection.
type Config struct {
	// Enabled turns metric recording on or off. When disabled, all Record
	// calls are no-ops.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus metric namespace.
	// Default: "bearing"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: "sextant"
	Subsystem string `yaml:"subsystem"`

	// DecisionLatencyBuckets are histogram buckets for routing decision
	// latency in seconds. Decisions are in-memory and should land in the
	// microsecond-to-millisecond range.
	// Default: 1µs .. 16ms exponential
	DecisionLatencyBuckets []float64 `yaml:"decision_latency_buckets"`

	// RewardBuckets are histogram buckets for the reward distribution.
	// Default: 0.0 .. 1.0 in steps of 0.1
	RewardBuckets []float64 `yaml:"reward_buckets"`

	// CostBuckets are histogram buckets for per-decision cost in USD.
	// Default: $0.001 .. $10
	CostBuckets []float64 `yaml:"cost_buckets"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "bearing",
		Subsystem: "sextant",
	}
}
