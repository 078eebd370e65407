package audit

import (
	"context"
	"time"
)

// Record is one persisted decision/outcome pair: the routing decision joined
// with the outcome that completed it. Only conclusive completions are
// persisted; timeouts, failures, and voided decisions update policies but
// never reach the audit trail.
type Record struct {
	// ID is the record's own identity (UUID v4), distinct from the
	// request it documents.
	ID string `json:"id"`

	// RequestID ties the record to the routed request.
	RequestID string `json:"request_id"`

	// TenantID is the tenant the request belonged to.
	TenantID string `json:"tenant_id"`

	// ArmID, PolicyID, and VariantID identify who made the selection and
	// what was selected.
	ArmID     string `json:"arm_id"`
	PolicyID  string `json:"policy_id"`
	VariantID string `json:"variant_id"`

	// Decision-time fields.
	Utility        float64 `json:"utility_score"`
	Confidence     float64 `json:"selection_confidence"`
	Explored       bool    `json:"explored"`
	Fallback       bool    `json:"fallback"`
	CatalogVersion int64   `json:"catalog_version"`

	// Outcome fields, zero until the completion joins the record.
	Reward    float64 `json:"reward"`
	Quality   float64 `json:"quality_score"`
	LatencyMS float64 `json:"latency_ms"`
	Cost      float64 `json:"actual_cost"`
	Success   bool    `json:"success"`

	// State is the terminal lifecycle state the decision reached.
	State string `json:"state"`

	// DecidedAt is when the routing decision was made, CompletedAt when
	// its outcome arrived, RecordedAt when the record was enqueued for
	// persistence.
	DecidedAt   time.Time `json:"decided_at"`
	CompletedAt time.Time `json:"completed_at"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// DefaultQueryLimit caps Query results when no explicit limit is set.
const DefaultQueryLimit = 100

// Query defines filter parameters for reading the audit trail.
type Query struct {
	// Time range on DecidedAt, both bounds inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Dimension filters; empty means any.
	RequestID string `json:"request_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	ArmID     string `json:"arm_id,omitempty"`
	PolicyID  string `json:"policy_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`

	// Reward thresholds.
	MinReward *float64 `json:"min_reward,omitempty"`
	MaxReward *float64 `json:"max_reward,omitempty"`

	// Fallback filters on the fallback flag when non-nil.
	Fallback *bool `json:"fallback,omitempty"`

	// Explored filters on the exploration flag when non-nil.
	Explored *bool `json:"explored,omitempty"`

	// Pagination. A Limit of zero or less falls back to
	// DefaultQueryLimit; Count and Delete ignore both fields.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting: SortBy is one of "decided_at", "reward", "cost",
	// "latency_ms" (default "decided_at"); SortOrder is "asc" or "desc"
	// (default "desc").
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage is the audit persistence contract. Implementations must be safe
// for concurrent use.
type Storage interface {
	// Store persists one record.
	Store(ctx context.Context, record *Record) error

	// Query retrieves records matching the filters, newest first unless
	// the query says otherwise. Returns an empty slice when nothing
	// matches.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the filters and returns how many
	// went. Retention pruning runs through this.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases backend resources.
	Close() error
}
