package routing

import (
	"time"
)

// DecisionState is one step of the per-decision lifecycle. States appear in
// logs and audit records.
type DecisionState string

// Decision lifecycle states.
const (
	StateInit            DecisionState = "init"
	StateSelecting       DecisionState = "selecting"
	StateDispatched      DecisionState = "dispatched"
	StateAwaitingOutcome DecisionState = "awaiting_outcome"
	StateRewarded        DecisionState = "rewarded"
	StateComplete        DecisionState = "complete"

	// StateSelectionFailed marks decisions served by the deterministic
	// fallback arm because the policy could not produce a selection.
	StateSelectionFailed DecisionState = "selection_failed"

	// StateOutcomeTimeout marks decisions resolved by the outcome timer
	// with a synthesized penalty reward.
	StateOutcomeTimeout DecisionState = "outcome_timeout"

	// StateVoided marks decisions cancelled before dispatch. Voided
	// decisions are excluded from reward accounting and audit.
	StateVoided DecisionState = "voided"
)

// Decision is the caller-facing result of one routing request.
type Decision struct {
	// RequestID identifies the request this decision answers.
	RequestID string `json:"request_id"`

	// TenantID is the tenant the request belongs to.
	TenantID string `json:"tenant_id"`

	// ArmID is the arm the request should be dispatched to.
	ArmID string `json:"arm_id"`

	// VariantID is the experiment variant that served the request.
	VariantID string `json:"variant_id"`

	// PolicyID is the policy instance that made the selection.
	PolicyID string `json:"policy_id"`

	// Confidence is the policy's selection confidence in [0,1]; 0 for
	// fallback decisions.
	Confidence float64 `json:"selection_confidence"`

	// Utility is the cost-adjusted score the arm was ranked by.
	Utility float64 `json:"utility_score"`

	// Explored is true when the pick came from the policy's exploration
	// branch rather than pure exploitation.
	Explored bool `json:"explored"`

	// Fallback is true when the deterministic fallback arm was dispatched
	// (selection failure, numeric instability, or an empty floor).
	Fallback bool `json:"fallback"`

	// CatalogVersion pins the arm-catalog snapshot the selection saw.
	CatalogVersion int64 `json:"catalog_version"`

	// CreatedAt is when the decision was made.
	CreatedAt time.Time `json:"created_at"`
}

// RewardRecord is the derived learning artifact of one completed decision.
type RewardRecord struct {
	// RequestID ties the record back to its decision.
	RequestID string `json:"request_id"`

	// ArmID, PolicyID, and VariantID echo the decision for audit queries.
	ArmID     string `json:"arm_id"`
	PolicyID  string `json:"policy_id"`
	VariantID string `json:"variant_id"`

	// Reward is the scalar the policy learned from.
	Reward float64 `json:"reward"`

	// Utility is the score the arm was ranked by at selection time.
	Utility float64 `json:"utility_score"`

	// Quality, LatencyMS, and Cost echo the reported outcome.
	Quality   float64 `json:"quality_score"`
	LatencyMS float64 `json:"latency_ms"`
	Cost      float64 `json:"actual_cost"`

	// Success is false for failed outcomes.
	Success bool `json:"success"`

	// State is the terminal lifecycle branch ("complete" via a real
	// outcome, "outcome_timeout" via the timer).
	State DecisionState `json:"state"`

	// Inconclusive marks failures and timeouts: they update the policy
	// but are excluded from the persisted audit trail.
	Inconclusive bool `json:"inconclusive"`

	// CompletedAt is when the decision reached its terminal state.
	CompletedAt time.Time `json:"completed_at"`
}

// AuditSink receives decisions and their completions. Implementations must
// be safe for concurrent use and must not block the request path.
type AuditSink interface {
	// RecordDecision is called once per dispatched decision.
	RecordDecision(dec Decision)

	// RecordCompletion is called once per completed decision, conclusive
	// or not; sinks decide what to persist.
	RecordCompletion(rec RewardRecord)
}
