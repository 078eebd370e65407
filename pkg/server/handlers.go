package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"bearing-hq/sextant/pkg/features"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/server/types"
	"bearing-hq/sextant/pkg/telemetry/logging"
	"bearing-hq/sextant/pkg/telemetry/tracing"
)

// routeRequest is the wire form of a routing request.
type routeRequest struct {
	RequestID    string  `json:"request_id"`
	TenantID     string  `json:"tenant_id"`
	ContentType  string  `json:"content_type"`
	PayloadBytes int64   `json:"payload_bytes"`
	PriorTurns   int     `json:"prior_turns"`
	Complexity   float64 `json:"complexity"`
	Priority     float64 `json:"priority"`
}

func (req *routeRequest) metadata() features.RequestMetadata {
	return features.RequestMetadata{
		TenantID:     req.TenantID,
		RequestID:    req.RequestID,
		ContentType:  req.ContentType,
		PayloadBytes: req.PayloadBytes,
		PriorTurns:   req.PriorTurns,
		Complexity:   req.Complexity,
		Priority:     req.Priority,
	}
}

// outcomeRequest is the wire form of an outcome report.
type outcomeRequest struct {
	RequestID    string  `json:"request_id"`
	QualityScore float64 `json:"quality_score"`
	LatencyMS    float64 `json:"latency_ms"`
	ActualCost   float64 `json:"actual_cost"`
	Success      bool    `json:"success"`
}

// outcomeResponse acknowledges an accepted outcome report.
type outcomeResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// RouteHandler serves POST /v1/route: extract features from the request
// metadata, run the live policy, and return the decision.
type RouteHandler struct {
	Engine *routing.Engine
}

// NewRouteHandler creates a new route handler.
func NewRouteHandler(engine *routing.Engine) *RouteHandler {
	return &RouteHandler{Engine: engine}
}

// ServeHTTP implements http.Handler.
func (h *RouteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidJSON,
			"request body is not valid JSON")
		return
	}

	ctx := logging.WithTenantID(r.Context(), req.TenantID)
	tracing.AnnotateRequest(ctx, req.TenantID, req.RequestID)

	decision, err := h.Engine.RouteRequest(ctx, req.metadata())
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	tracing.AnnotateDecision(ctx, decision.ArmID, decision.PolicyID, decision.VariantID,
		decision.Utility, decision.Confidence, decision.Explored, decision.Fallback)

	types.WriteJSON(w, http.StatusOK, decision)
}

// OutcomeHandler serves POST /v1/outcome: report the observed outcome of a
// previously routed request so the owning policy can learn from it.
type OutcomeHandler struct {
	Engine *routing.Engine
}

// NewOutcomeHandler creates a new outcome handler.
func NewOutcomeHandler(engine *routing.Engine) *OutcomeHandler {
	return &OutcomeHandler{Engine: engine}
}

// ServeHTTP implements http.Handler.
func (h *OutcomeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidJSON,
			"request body is not valid JSON")
		return
	}

	if req.RequestID == "" {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest,
			"request_id is required")
		return
	}

	out := reward.Outcome{
		RequestID:    req.RequestID,
		QualityScore: req.QualityScore,
		Latency:      time.Duration(req.LatencyMS * float64(time.Millisecond)),
		ActualCost:   req.ActualCost,
		Success:      req.Success,
		ReceivedAt:   time.Now().UTC(),
	}

	ctx := r.Context()
	tracing.AnnotateOutcome(ctx, req.RequestID, req.QualityScore, req.LatencyMS,
		req.ActualCost, req.Success)

	if err := h.Engine.ReportOutcome(ctx, out); err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	types.WriteJSON(w, http.StatusAccepted, outcomeResponse{
		Status:    "accepted",
		RequestID: req.RequestID,
	})
}

// writeEngineError maps engine errors onto HTTP statuses and error codes.
// Unknown errors become opaque 500s; the detail stays in the log.
func writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	tracing.RecordError(ctx, err)

	var validationErr *features.ValidationError

	switch {
	case errors.As(err, &validationErr):
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest, err.Error())
	case errors.Is(err, routing.ErrDuplicateRequest):
		types.WriteError(w, http.StatusConflict, types.CodeDuplicateRequest, err.Error())
	case errors.Is(err, routing.ErrTooManyPending):
		types.WriteError(w, http.StatusTooManyRequests, types.CodeTooManyPending, err.Error())
	case errors.Is(err, routing.ErrUnknownRequest):
		types.WriteError(w, http.StatusNotFound, types.CodeUnknownRequest, err.Error())
	case errors.Is(err, routing.ErrNoDispatchableArm):
		types.WriteError(w, http.StatusServiceUnavailable, types.CodeNoDispatchableArm, err.Error())
	case errors.Is(err, routing.ErrRouterClosed):
		types.WriteError(w, http.StatusServiceUnavailable, types.CodeRouterClosed, err.Error())
	default:
		slog.ErrorContext(ctx, "unhandled engine error", "error", err)
		types.WriteError(w, http.StatusInternalServerError, types.CodeServerError,
			"an internal error occurred")
	}
}
