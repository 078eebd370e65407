// Package statestore defines the durable checkpoint contract for policy
// state, plus reference backends.
//
// The routing core only consumes the Store interface. Persistence is
// best-effort by design: a failed save is logged and retried on the next
// checkpoint tick, and a failed load at startup produces a cold start with
// default priors and a visible warning. Serving never blocks on the store.
//
// Three backends ship with the router:
//
//   - Memory: process-local, for tests and single-shot runs
//   - SQLite: durable single-instance storage (WAL journal)
//   - Redis: shared storage for fleets that restart often
package statestore
