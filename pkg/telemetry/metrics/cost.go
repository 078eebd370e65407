package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CostMetrics tracks realized spend per arm.
//
// Metrics:
//   - bearing_sextant_cost_total: Total realized cost in USD by arm
//   - bearing_sextant_cost_per_decision: Per-decision cost distribution by arm
type CostMetrics struct {
	// Total realized cost counter (in USD)
	costTotal *prometheus.CounterVec

	// Cost per decision histogram (in USD)
	costPerDecision *prometheus.HistogramVec
}

// NewCostMetrics creates and registers cost metrics with the provided registry.
func NewCostMetrics(cfg *Config, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_total",
				Help:      "Total realized cost in USD by arm",
			},
			[]string{"arm"},
		),

		costPerDecision: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_per_decision",
				Help:      "Realized cost per decision in USD",
				Buckets:   cfg.CostBuckets,
			},
			[]string{"arm"},
		),
	}

	registry.MustRegister(
		cm.costTotal,
		cm.costPerDecision,
	)

	return cm
}

// RecordDecisionCost records the realized cost of one served decision.
func (cm *CostMetrics) RecordDecisionCost(armID string, costUSD float64) {
	if costUSD <= 0 {
		return
	}

	cm.costTotal.WithLabelValues(armID).Add(costUSD)
	cm.costPerDecision.WithLabelValues(armID).Observe(costUSD)
}
