package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics tracks metrics for routing decisions.
//
// Metrics:
//   - bearing_sextant_decisions_total: Decision count by policy, arm, variant, status
//   - bearing_sextant_decision_duration_seconds: Selection latency histogram
//   - bearing_sextant_pending_decisions: Decisions awaiting an outcome
//   - bearing_sextant_validation_rejected_total: Requests rejected before selection
type DecisionMetrics struct {
	// Decision count by policy, arm, variant, and status
	decisionsTotal *prometheus.CounterVec

	// Selection latency histogram by policy
	decisionDuration *prometheus.HistogramVec

	// Decisions currently awaiting an outcome
	pendingDecisions prometheus.Gauge

	// Requests rejected by feature validation
	validationRejectedTotal prometheus.Counter
}

// NewDecisionMetrics creates and registers decision metrics with the provided registry.
func NewDecisionMetrics(cfg *Config, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of routing decisions",
			},
			[]string{"policy", "arm", "variant", "status"},
		),

		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Time spent selecting an arm, in seconds",
				Buckets:   cfg.DecisionLatencyBuckets,
			},
			[]string{"policy"},
		),

		pendingDecisions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pending_decisions",
				Help:      "Number of decisions awaiting an outcome",
			},
		),

		validationRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "validation_rejected_total",
				Help:      "Requests rejected by feature validation before selection",
			},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.decisionDuration,
		dm.pendingDecisions,
		dm.validationRejectedTotal,
	)

	return dm
}

// RecordDecision records one completed routing decision.
//
// Status values: "routed" (policy pick dispatched), "fallback" (deterministic
// fallback arm used), "shadow" (scored but not dispatched).
func (dm *DecisionMetrics) RecordDecision(policyID, armID, variantID, status string, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(policyID, armID, variantID, status).Inc()
	dm.decisionDuration.WithLabelValues(policyID).Observe(duration.Seconds())
}

// SetPending updates the pending-decision gauge.
func (dm *DecisionMetrics) SetPending(n int) {
	dm.pendingDecisions.Set(float64(n))
}

// RecordValidationReject counts a request rejected before selection.
func (dm *DecisionMetrics) RecordValidationReject() {
	dm.validationRejectedTotal.Inc()
}
