// Sextant is a self-tuning request router: it decides, per request, which
// candidate backend ("arm") should serve it, learns from reported outcomes
// online, and guards production with shadow evaluation and automatic
// rollback.
//
// It provides:
//   - Six interchangeable bandit policies (epsilon-greedy, UCB1, LinUCB,
//     Thompson sampling, bootstrapped UCB, neural UCB)
//   - Cost-aware utility ranking with a hard quality floor
//   - Deterministic experiment bucketing, shadow policies, and
//     threshold-based automatic rollback
//   - Best-effort policy checkpointing (memory, SQLite, Redis)
//   - A persisted decision audit trail with retention pruning
//
// Usage:
//
//	# Start the router with default configuration
//	sextant run
//
//	# Start with a custom configuration file
//	sextant run --config /path/to/config.yaml
//
//	# Validate the configuration without serving
//	sextant validate
//
//	# Show version information
//	sextant version
//
//	# Inspect the decision audit trail offline
//	sextant audit query --tenant "tenant-1" --limit 50
package main

func main() {
	Execute()
}
