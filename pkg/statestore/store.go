package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPersistence is the sentinel for storage failures, matchable with
// errors.Is() across backends.
var ErrPersistence = errors.New("state persistence failure")

// errNilCheckpoint rejects Save calls without a usable checkpoint.
var errNilCheckpoint = errors.New("checkpoint is nil or has no policy id")

// PersistenceError wraps a backend failure with enough context to log it
// usefully. Persistence failures degrade the router to in-memory operation;
// they are never fatal.
type PersistenceError struct {
	// Backend names the store implementation ("sqlite", "redis", ...).
	Backend string

	// Op is the failed operation ("load", "save").
	Op string

	// PolicyID is the checkpoint key involved.
	PolicyID string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s for policy %q: %v", e.Backend, e.Op, e.PolicyID, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is().
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// PolicyCheckpoint is one serialized policy state together with the
// metadata needed to validate it on restore.
type PolicyCheckpoint struct {
	// PolicyID is the durable key, unique per policy instance.
	PolicyID string `json:"policy_id"`

	// PolicyType is the policy type name the data was produced by.
	PolicyType string `json:"policy_type"`

	// Data is the policy's own serialized state.
	Data []byte `json:"data"`

	// SavedAt is when the checkpoint was written.
	SavedAt time.Time `json:"saved_at"`
}

// Store is the durable checkpoint contract consumed by the routing core.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the checkpoint for a policy, or (nil, nil) when none
	// has been saved yet.
	Load(ctx context.Context, policyID string) (*PolicyCheckpoint, error)

	// Save persists a checkpoint, replacing any previous one for the same
	// policy ID.
	Save(ctx context.Context, cp *PolicyCheckpoint) error

	// Close releases backend resources.
	Close() error
}
