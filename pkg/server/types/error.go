package types

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the envelope every error condition returns.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// RequestID echoes the routing request ID when the error concerns a
	// specific request.
	RequestID string `json:"request_id,omitempty"`
}

// Error code constants for the router API.
const (
	// CodeInvalidJSON indicates the request body is not valid JSON.
	CodeInvalidJSON = "invalid_json"

	// CodeInvalidRequest indicates a missing or out-of-range field (400).
	CodeInvalidRequest = "invalid_request"

	// CodeDuplicateRequest indicates the request ID already has a pending
	// decision (409).
	CodeDuplicateRequest = "duplicate_request"

	// CodeTooManyPending indicates the pending-decision table is at
	// capacity and the caller should back off (429).
	CodeTooManyPending = "too_many_pending"

	// CodeRateLimited indicates the tenant exceeded its request rate (429).
	CodeRateLimited = "rate_limited"

	// CodeUnknownRequest indicates an outcome for a request the router is
	// not tracking (404).
	CodeUnknownRequest = "unknown_request"

	// CodeUnknownVariant indicates an admin operation on an undeclared
	// experiment variant (404).
	CodeUnknownVariant = "unknown_variant"

	// CodeNoDispatchableArm indicates the catalog has no active arms (503).
	CodeNoDispatchableArm = "no_dispatchable_arm"

	// CodeRouterClosed indicates the engine is shutting down (503).
	CodeRouterClosed = "router_closed"

	// CodeAuditDisabled indicates the audit trail is not configured (404).
	CodeAuditDisabled = "audit_disabled"

	// CodeRequestTimeout indicates the handler exceeded its deadline (504).
	CodeRequestTimeout = "request_timeout"

	// CodeServerError indicates an unexpected internal failure (500).
	CodeServerError = "server_error"
)

// NewError builds an error envelope.
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewError(code, message))
}

// WriteJSON writes any payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
