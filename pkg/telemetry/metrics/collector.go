package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the single entry point for all Prometheus metrics in Sextant.
// It owns metric registration and provides a unified recording interface for
// the router, the learning loop, and the experiment harness.
//
// Recording is cheap (<50µs per update) and guarded by the Enabled flag, so
// callers never need their own conditionals.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	// Decision metrics
	decisionMetrics *DecisionMetrics

	// Learning-loop metrics
	learningMetrics *LearningMetrics

	// Experiment and rollback metrics
	experimentMetrics *ExperimentMetrics

	// Cost metrics
	costMetrics *CostMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
//
// Example:
//
//	cfg := metrics.DefaultConfig()
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "bearing"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "sextant"
	}
	if len(cfg.DecisionLatencyBuckets) == 0 {
		// Selection is pure in-memory math; 1µs to 16ms covers it.
		cfg.DecisionLatencyBuckets = prometheus.ExponentialBuckets(0.000001, 2, 15)
	}
	if len(cfg.RewardBuckets) == 0 {
		cfg.RewardBuckets = prometheus.LinearBuckets(0, 0.1, 11)
	}
	if len(cfg.CostBuckets) == 0 {
		cfg.CostBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}

	c.decisionMetrics = NewDecisionMetrics(cfg, registry)
	c.learningMetrics = NewLearningMetrics(cfg, registry)
	c.experimentMetrics = NewExperimentMetrics(cfg, registry)
	c.costMetrics = NewCostMetrics(cfg, registry)

	return c
}

// RecordDecision records one completed routing decision.
//
// Parameters:
//   - policyID: policy instance that made the selection
//   - armID: arm the request was routed to
//   - variantID: experiment variant serving the request
//   - status: "routed", "fallback", or "shadow"
//   - duration: selection latency
func (c *Collector) RecordDecision(policyID, armID, variantID, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	// Arms come and go over an experiment's lifetime; cap the label space.
	labelSet := fmt.Sprintf("decision:%s:%s:%s:%s", policyID, armID, variantID, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		armID = "other"
	}

	c.decisionMetrics.RecordDecision(policyID, armID, variantID, status, duration)
}

// SetPendingDecisions updates the gauge of decisions awaiting an outcome.
func (c *Collector) SetPendingDecisions(n int) {
	if !c.config.Enabled {
		return
	}

	c.decisionMetrics.SetPending(n)
}

// RecordValidationReject counts a request rejected before selection.
func (c *Collector) RecordValidationReject() {
	if !c.config.Enabled {
		return
	}

	c.decisionMetrics.RecordValidationReject()
}

// RecordReward records one computed reward for the distribution histogram.
func (c *Collector) RecordReward(policyID, variantID string, reward float64) {
	if !c.config.Enabled {
		return
	}

	c.learningMetrics.RecordReward(policyID, variantID, reward)
}

// RecordOutcome counts one outcome resolution.
//
// Status values: "success", "failure", "timeout", "late", "voided".
func (c *Collector) RecordOutcome(status string) {
	if !c.config.Enabled {
		return
	}

	c.learningMetrics.RecordOutcome(status)
}

// RecordPolicyUpdate counts one applied policy update.
func (c *Collector) RecordPolicyUpdate(policyID string) {
	if !c.config.Enabled {
		return
	}

	c.learningMetrics.RecordUpdate(policyID)
}

// RecordInstability counts one numeric instability event recovered by
// falling back to the least-cost arm or skipping an update.
func (c *Collector) RecordInstability(policyID string) {
	if !c.config.Enabled {
		return
	}

	c.learningMetrics.RecordInstability(policyID)
}

// RecordCheckpoint counts one checkpoint attempt ("ok" or "error").
func (c *Collector) RecordCheckpoint(status string) {
	if !c.config.Enabled {
		return
	}

	c.learningMetrics.RecordCheckpoint(status)
}

// SetCheckpointFailureStreak updates the gauge of consecutive checkpoint
// cycles that failed. A persistently non-zero value means policy state is
// not surviving restarts.
func (c *Collector) SetCheckpointFailureStreak(n int64) {
	if !c.config.Enabled {
		return
	}

	c.learningMetrics.SetCheckpointFailureStreak(n)
}

// RecordRollback counts one automatic rollback.
func (c *Collector) RecordRollback(variantID, metric string) {
	if !c.config.Enabled {
		return
	}

	c.experimentMetrics.RecordRollback(variantID, metric)
}

// RecordIncident counts one variant disable incident.
func (c *Collector) RecordIncident(metric string) {
	if !c.config.Enabled {
		return
	}

	c.experimentMetrics.RecordIncident(metric)
}

// UpdateVariantEnabled updates a variant's enable-flag gauge.
func (c *Collector) UpdateVariantEnabled(variantID string, enabled bool) {
	if !c.config.Enabled {
		return
	}

	c.experimentMetrics.UpdateVariantEnabled(variantID, enabled)
}

// UpdateShadowAgreement updates the shadow agreement-rate gauge.
func (c *Collector) UpdateShadowAgreement(rate float64) {
	if !c.config.Enabled {
		return
	}

	c.experimentMetrics.UpdateShadowAgreement(rate)
}

// RecordDecisionCost records the realized cost of one served decision.
func (c *Collector) RecordDecisionCost(armID string, costUSD float64) {
	if !c.config.Enabled {
		return
	}

	c.costMetrics.RecordDecisionCost(armID, costUSD)
}

// Registry returns the Prometheus registry used by this collector. It can
// be used to serve the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
