// Package arms maintains the catalog of candidate processing backends
// ("arms") the router can choose from.
//
// The catalog is read on every selection, so reads never take a lock: the
// current state is an immutable Snapshot behind an atomic pointer. Changes
// (add, retire, repricing) build a complete new snapshot and swap the
// pointer, so an in-flight selection always sees one consistent view for the
// duration of its decision.
//
// Retired arms stay in the snapshot for audit purposes but are excluded from
// the active set used for selection.
package arms
