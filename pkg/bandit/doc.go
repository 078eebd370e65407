// Package bandit implements the online-learning policies that drive arm
// selection.
//
// # Policies
//
// Six interchangeable policies implement the Policy interface:
//
//   - epsilon_greedy: random exploration with a decaying epsilon, otherwise
//     the arm with the highest running mean reward.
//   - ucb1: mean reward plus sqrt(2 ln t / n) exploration bonus; every arm
//     is tried once before any arm is tried twice.
//   - linucb: contextual ridge regression per arm (A = lambda*I + sum x*xT,
//     b = sum r*x) scored as xT*theta + alpha*sqrt(xT*A^-1*x) with a
//     Cholesky solve.
//   - thompson: Beta posterior per arm, one sample per arm per decision.
//   - bootstrapped: K running-statistics replicas per arm updated by
//     Bernoulli bootstrap; score is ensemble mean plus a multiple of the
//     ensemble standard deviation.
//   - neural: a small per-arm regressor with mean and uncertainty heads,
//     trained by one clipped gradient step per outcome.
//
// # Contract
//
// A policy exposes exactly four operations: Select, Update, Snapshot and
// Restore. The orchestrator needs nothing else, so adding a policy never
// changes it. Select never dispatches, never blocks on I/O, and never
// returns an arm outside the snapshot it was given.
//
// # Numerical safety
//
// Non-finite values produced by policy math never reach a routing decision.
// The affected Select falls back to the least-cost eligible arm and flags
// the Selection as a fallback; a poisoned Update is rejected with
// ErrNumericInstability and the state is left untouched.
//
// # Concurrency
//
// Per-arm state lives in independently updated cells: reads are atomic
// pointer loads of an immutable state value (selection tolerates slightly
// stale state), writes clone the value, mutate the clone, and publish it
// under that arm's lock. There is no policy-wide lock on the request path,
// and updates for different arms never contend.
package bandit
