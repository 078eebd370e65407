// Package experiment is the variant experimentation harness: deterministic
// bucketing of requests into variants, shadow-mode policy evaluation, and
// automatic rollback of misbehaving variants.
//
// # Bucketing
//
// Bucket hashes (salt, request key) with FNV-1a modulo the bucket count, so
// a given key lands in the same variant for the lifetime of an experiment.
// Variants own contiguous bucket ranges proportional to their configured
// traffic share.
//
// # Shadow mode
//
// A shadow policy scores every request alongside the live one but is never
// dispatched. The scoreboard tracks how often it agrees with the live
// selection and what reward its own estimates promised, giving a risk-free
// preview of a candidate policy.
//
// # Rollback
//
// Per-variant metrics accumulate into tumbling windows. When a window
// closes, each variant is compared to the baseline on quality, latency p95,
// and cost; a threshold breached for a configured number of consecutive
// windows flips the variant's enable flag off and emits an incident. This
// is the only path that disables a variant automatically; operators can
// also force-disable one manually.
package experiment
