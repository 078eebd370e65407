// Package metrics provides Prometheus metrics collection for Sextant.
//
// # Overview
//
// The metrics package implements Prometheus metrics for monitoring the
// adaptive routing loop: decision latency and counts, the reward
// distribution, policy update and instability counters, experiment
// rollbacks, and realized cost per arm.
//
// # Metric Categories
//
//   - Decision Metrics: decision counts by policy/arm/variant/status,
//     selection latency, pending decisions, validation rejects
//   - Learning Metrics: reward distribution, outcome statuses, applied
//     updates, numeric instability events, checkpoint attempts
//   - Experiment Metrics: automatic rollbacks, disable incidents,
//     per-variant enable flags, shadow agreement rate
//   - Cost Metrics: realized spend per arm
//
// # Usage
//
//	collector := metrics.NewCollector(metrics.DefaultConfig(), nil)
//
//	collector.RecordDecision("ucb1-main", "gpt-4o-mini", "control", "routed", 80*time.Microsecond)
//	collector.RecordReward("ucb1-main", "control", 0.82)
//	collector.RecordOutcome("success")
//	collector.RecordRollback("candidate", "quality")
//
// All recording calls are no-ops when Config.Enabled is false, so callers
// never branch on the flag themselves.
//
// # Cardinality
//
// Arms and variants are dynamic, so decision labels pass through a
// cardinality limiter (10,000 unique label sets); past the limit, new arm
// labels aggregate into "other".
//
// # Endpoint
//
// All metrics are exposed through Collector.Handler in standard Prometheus
// format:
//
//	# HELP bearing_sextant_decisions_total Total number of routing decisions
//	# TYPE bearing_sextant_decisions_total counter
//	bearing_sextant_decisions_total{policy="ucb1-main",arm="gpt-4o-mini",variant="control",status="routed"} 1234
package metrics
