package routing

import (
	"errors"
	"fmt"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrRouterClosed is returned once the engine has been closed.
	ErrRouterClosed = errors.New("router is closed")

	// ErrDuplicateRequest is returned when a request ID already has a
	// pending decision.
	ErrDuplicateRequest = errors.New("request id already in flight")

	// ErrUnknownRequest is returned for outcomes whose request ID has no
	// pending decision (never routed, already resolved, or timed out).
	ErrUnknownRequest = errors.New("no pending decision for request id")

	// ErrTooManyPending is returned when the pending-decision table is at
	// capacity. Callers should shed load rather than queue.
	ErrTooManyPending = errors.New("too many pending decisions")

	// ErrNoDispatchableArm is returned when not even the fallback path can
	// produce an arm, i.e. the catalog has no active arms.
	ErrNoDispatchableArm = errors.New("no dispatchable arm")
)

// UnknownRequestError reports an outcome that arrived for a request ID the
// router is not tracking.
type UnknownRequestError struct {
	// RequestID is the unmatched request ID.
	RequestID string
}

// Error implements the error interface.
func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("no pending decision for request id %q (already resolved, timed out, or never routed)", e.RequestID)
}

// Is implements error matching for errors.Is().
func (e *UnknownRequestError) Is(target error) bool {
	return target == ErrUnknownRequest
}

// UnknownPolicyError reports an experiment variant that references a policy
// instance the engine was not configured with.
type UnknownPolicyError struct {
	// VariantID is the variant carrying the reference.
	VariantID string

	// PolicyID is the missing policy instance.
	PolicyID string
}

// Error implements the error interface.
func (e *UnknownPolicyError) Error() string {
	return fmt.Sprintf("variant %q references unknown policy %q", e.VariantID, e.PolicyID)
}
