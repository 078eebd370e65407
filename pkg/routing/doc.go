// Package routing implements the router orchestrator: the top-level state
// machine that turns a request into a dispatched arm and, later, turns the
// reported outcome into a policy update.
//
// # Two-phase protocol
//
// Routing is an explicit two-phase protocol keyed by request ID:
//
//  1. RouteRequest extracts features, assigns an experiment variant, asks
//     the variant's bandit policy for a selection, applies the quality
//     floor and cost-adjusted utility ranking, and returns a Decision. The
//     decision is held as pending with an outcome timer.
//  2. ReportOutcome resolves the pending decision: the reward engine turns
//     the outcome into a scalar reward, the policy learns, the experiment
//     harness observes the variant metrics, and the decision completes.
//
// A decision whose outcome never arrives is resolved by the orchestrator's
// timer with the configured minimum reward. Every decision completes
// exactly once, through a real outcome, the timeout, or shutdown.
//
// # Decision lifecycle
//
//	init -> selecting -> dispatched -> awaiting_outcome -> rewarded -> complete
//
// with two side branches: selection_failed (the policy could not choose, a
// deterministic fallback arm is dispatched instead) and outcome_timeout
// (a penalty reward is synthesized). Requests cancelled before dispatch are
// voided and excluded from both learning and audit.
//
// # Shadow scoring
//
// Enabled shadow variants score every routed request with their own policy.
// Shadow picks are never dispatched; they are compared against the realized
// reward of the live pick, and a shadow policy learns from an outcome only
// when its pick agreed with the live pick.
package routing
