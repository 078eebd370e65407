package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LearningMetrics tracks the online-learning feedback loop.
//
// Metrics:
//   - bearing_sextant_reward_distribution: Reward histogram by policy and variant
//   - bearing_sextant_outcomes_total: Outcome count by status
//   - bearing_sextant_policy_updates_total: Applied policy updates by policy
//   - bearing_sextant_instability_total: Numeric instability events by policy
//   - bearing_sextant_checkpoints_total: Checkpoint attempts by status
//   - bearing_sextant_checkpoint_failure_streak: Consecutive failed checkpoint cycles
type LearningMetrics struct {
	// Reward distribution by policy and variant
	rewardDistribution *prometheus.HistogramVec

	// Outcome count by status (success, failure, timeout, late, voided)
	outcomesTotal *prometheus.CounterVec

	// Applied policy updates
	updatesTotal *prometheus.CounterVec

	// Numeric instability events (NaN/Inf or skipped gradient steps)
	instabilityTotal *prometheus.CounterVec

	// Checkpoint attempts by status (ok, error)
	checkpointsTotal *prometheus.CounterVec

	// Consecutive checkpoint cycles that failed to persist
	checkpointFailureStreak prometheus.Gauge
}

// NewLearningMetrics creates and registers learning metrics with the provided registry.
func NewLearningMetrics(cfg *Config, registry *prometheus.Registry) *LearningMetrics {
	lm := &LearningMetrics{
		rewardDistribution: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reward_distribution",
				Help:      "Distribution of computed rewards",
				Buckets:   cfg.RewardBuckets,
			},
			[]string{"policy", "variant"},
		),

		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "outcomes_total",
				Help:      "Total number of reported outcomes by status",
			},
			[]string{"status"},
		),

		updatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_updates_total",
				Help:      "Total number of applied policy updates",
			},
			[]string{"policy"},
		),

		instabilityTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "instability_total",
				Help:      "Numeric instability events recovered by fallback",
			},
			[]string{"policy"},
		),

		checkpointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "checkpoints_total",
				Help:      "Policy state checkpoint attempts by status",
			},
			[]string{"status"},
		),

		checkpointFailureStreak: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "checkpoint_failure_streak",
				Help:      "Consecutive checkpoint cycles that failed to persist policy state",
			},
		),
	}

	registry.MustRegister(
		lm.rewardDistribution,
		lm.outcomesTotal,
		lm.updatesTotal,
		lm.instabilityTotal,
		lm.checkpointsTotal,
		lm.checkpointFailureStreak,
	)

	return lm
}

// RecordReward records one computed reward.
func (lm *LearningMetrics) RecordReward(policyID, variantID string, reward float64) {
	lm.rewardDistribution.WithLabelValues(policyID, variantID).Observe(reward)
}

// RecordOutcome counts one outcome resolution.
//
// Status values: "success", "failure", "timeout", "late", "voided".
func (lm *LearningMetrics) RecordOutcome(status string) {
	lm.outcomesTotal.WithLabelValues(status).Inc()
}

// RecordUpdate counts one applied policy update.
func (lm *LearningMetrics) RecordUpdate(policyID string) {
	lm.updatesTotal.WithLabelValues(policyID).Inc()
}

// RecordInstability counts one recovered numeric instability event.
func (lm *LearningMetrics) RecordInstability(policyID string) {
	lm.instabilityTotal.WithLabelValues(policyID).Inc()
}

// RecordCheckpoint counts one checkpoint attempt.
func (lm *LearningMetrics) RecordCheckpoint(status string) {
	lm.checkpointsTotal.WithLabelValues(status).Inc()
}

// SetCheckpointFailureStreak updates the consecutive-failure gauge.
func (lm *LearningMetrics) SetCheckpointFailureStreak(n int64) {
	lm.checkpointFailureStreak.Set(float64(n))
}
