// Package audit persists the router's decision trail: one record per
// conclusively completed decision, joining what was selected with the
// outcome that followed.
//
// # Pipeline
//
// The Recorder implements the routing engine's audit sink. A dispatched
// decision opens a pending record; the matching completion joins the
// outcome onto it. Conclusive records flow through a buffered channel to a
// background worker that writes them to storage and drains the channel on
// shutdown. When the channel is full the record is dropped and counted;
// recording never blocks the request path.
//
// # What is not recorded
//
// Timeouts, failed outcomes, and voided decisions update policies but are
// excluded from persisted storage. They remain visible in the bounded
// recent-decision cache, which serves admin lookups without touching the
// backend.
//
// # Backends
//
// Two Storage implementations ship with the router:
//
//   - Memory: a fixed-capacity ring, for tests and single-shot runs
//   - SQLite: durable single-instance storage (WAL journal, one writer)
//
// # Retention
//
// The Pruner enforces an age cutoff and an optional count cap on a cron
// schedule, deleting through the same Storage interface the recorder
// writes through.
package audit
