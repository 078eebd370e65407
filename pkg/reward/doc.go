// Package reward converts completed request outcomes into the scalar
// reward signal consumed by policy updates.
//
// A reward blends three observations, each with a configurable weight:
//
//   - quality: the caller-reported quality score in [0,1]
//   - latency: a saturating penalty for time spent above the target latency
//   - cost: a saturating penalty proportional to actual spend
//
// The result is clamped to [0,1]. Failed outcomes and outcome timeouts
// yield the configured minimum reward: a real, informative data point for
// the policy, not a discarded one.
package reward
