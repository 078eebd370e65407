package bandit

import (
	"errors"
	"fmt"
)

// Common policy errors that can be checked with errors.Is().
var (
	// ErrUnknownPolicy is returned by the factory for an unrecognized
	// policy type.
	ErrUnknownPolicy = errors.New("unknown policy type")

	// ErrNoEligibleArms is returned when a snapshot has no active arms to
	// select from.
	ErrNoEligibleArms = errors.New("no eligible arms")

	// ErrNumericInstability is returned when policy math produced a
	// non-finite value. The update or score that produced it is discarded.
	ErrNumericInstability = errors.New("numeric instability in policy math")

	// ErrCheckpointMismatch is returned by Restore when the checkpoint was
	// produced by a different policy type or feature dimension.
	ErrCheckpointMismatch = errors.New("checkpoint does not match policy")
)

// NumericInstabilityError reports a non-finite intermediate value in policy
// math. It is recovered locally: selection falls back to the least-cost arm
// and updates are skipped, so it is never fatal to the router.
type NumericInstabilityError struct {
	// Policy is the policy type that produced the value.
	Policy string

	// ArmID is the arm whose state was involved, if known.
	ArmID string

	// Op is the operation that detected the problem ("select", "update").
	Op string
}

// Error implements the error interface.
func (e *NumericInstabilityError) Error() string {
	if e.ArmID == "" {
		return fmt.Sprintf("numeric instability in %s %s", e.Policy, e.Op)
	}
	return fmt.Sprintf("numeric instability in %s %s for arm %q", e.Policy, e.Op, e.ArmID)
}

// Is implements error matching for errors.Is().
func (e *NumericInstabilityError) Is(target error) bool {
	return target == ErrNumericInstability
}

// CheckpointMismatchError reports a checkpoint that cannot be restored into
// the receiving policy.
type CheckpointMismatchError struct {
	// Want is the policy type doing the restore.
	Want string

	// Got is the policy type recorded in the checkpoint.
	Got string

	// Detail carries extra context, e.g. a feature dimension mismatch.
	Detail string
}

// Error implements the error interface.
func (e *CheckpointMismatchError) Error() string {
	msg := fmt.Sprintf("checkpoint mismatch: policy %q cannot restore checkpoint from %q", e.Want, e.Got)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is implements error matching for errors.Is().
func (e *CheckpointMismatchError) Is(target error) bool {
	return target == ErrCheckpointMismatch
}
