package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/audit"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/features"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/server/types"
)

// defaultDecisionLimit caps GET /v1/admin/decisions when no limit is given.
const defaultDecisionLimit = 20

// AdminHandler serves the /v1/admin surface: read-only introspection into
// policies, arms, estimates, variants, incidents, and recent decisions,
// plus the manual variant kill switch.
type AdminHandler struct {
	engine  *routing.Engine
	catalog *arms.Catalog
	harness *experiment.Harness

	// audit is nil when audit recording is disabled.
	audit *audit.Recorder
}

// NewAdminHandler creates the admin surface over the running components.
func NewAdminHandler(engine *routing.Engine, catalog *arms.Catalog, harness *experiment.Harness, auditRec *audit.Recorder) *AdminHandler {
	return &AdminHandler{
		engine:  engine,
		catalog: catalog,
		harness: harness,
		audit:   auditRec,
	}
}

type policyView struct {
	ID         string `json:"id"`
	PolicyType string `json:"policy_type"`
}

type policiesResponse struct {
	Policies []policyView `json:"policies"`
}

// Policies serves GET /v1/admin/policies.
func (h *AdminHandler) Policies(w http.ResponseWriter, r *http.Request) {
	ids := h.engine.PolicyIDs()

	views := make([]policyView, 0, len(ids))
	for _, id := range ids {
		views = append(views, policyView{ID: id, PolicyType: h.engine.PolicyType(id)})
	}

	types.WriteJSON(w, http.StatusOK, policiesResponse{Policies: views})
}

type armView struct {
	ID             string     `json:"id"`
	CapabilityTags []string   `json:"capability_tags"`
	BaseCost       float64    `json:"base_cost"`
	PerUnitCost    float64    `json:"per_unit_cost"`
	Active         bool       `json:"active"`
	RetiredAt      *time.Time `json:"retired_at,omitempty"`
}

type armsResponse struct {
	CatalogVersion int64     `json:"catalog_version"`
	Arms           []armView `json:"arms"`
}

// Arms serves GET /v1/admin/arms. Retired arms are included; selection
// status is visible through the active flag.
func (h *AdminHandler) Arms(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Current()

	all := snap.All()
	views := make([]armView, 0, len(all))
	for _, arm := range all {
		view := armView{
			ID:             arm.ID,
			CapabilityTags: arm.CapabilityTags,
			BaseCost:       arm.Pricing.Base,
			PerUnitCost:    arm.Pricing.PerUnit,
			Active:         arm.Active,
		}
		if !arm.RetiredAt.IsZero() {
			retiredAt := arm.RetiredAt
			view.RetiredAt = &retiredAt
		}
		views = append(views, view)
	}

	types.WriteJSON(w, http.StatusOK, armsResponse{
		CatalogVersion: snap.Version,
		Arms:           views,
	})
}

type estimatesResponse struct {
	TenantID  string                          `json:"tenant_id"`
	Estimates map[string][]routing.ArmUtility `json:"estimates"`
}

// Estimates serves GET /v1/admin/estimates. Query parameters describe a
// hypothetical request; the response holds every policy's per-arm utility
// view for it. tenant_id is required, the rest default to a plain text
// request.
func (h *AdminHandler) Estimates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	meta := features.RequestMetadata{
		TenantID:    q.Get("tenant_id"),
		RequestID:   "admin-estimate",
		ContentType: q.Get("content_type"),
	}
	if meta.ContentType == "" {
		meta.ContentType = "text"
	}

	var err error
	if meta.PayloadBytes, err = queryInt64(q.Get("payload_bytes")); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest,
			"payload_bytes must be an integer")
		return
	}
	if meta.PriorTurns, err = queryInt(q.Get("prior_turns")); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest,
			"prior_turns must be an integer")
		return
	}
	if meta.Complexity, err = queryFloat(q.Get("complexity")); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest,
			"complexity must be a number")
		return
	}
	if meta.Priority, err = queryFloat(q.Get("priority")); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest,
			"priority must be a number")
		return
	}

	estimates, err := h.engine.Estimates(meta)
	if err != nil {
		writeEngineError(r.Context(), w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, estimatesResponse{
		TenantID:  meta.TenantID,
		Estimates: estimates,
	})
}

type variantsResponse struct {
	Variants []experiment.VariantStatus `json:"variants"`
	Shadow   experiment.ShadowStats     `json:"shadow"`
}

// Variants serves GET /v1/admin/variants: per-variant status and the
// shadow scoreboard.
func (h *AdminHandler) Variants(w http.ResponseWriter, r *http.Request) {
	types.WriteJSON(w, http.StatusOK, variantsResponse{
		Variants: h.harness.Variants(),
		Shadow:   h.harness.ShadowStats(),
	})
}

type disableVariantRequest struct {
	Reason string `json:"reason"`
}

type disableVariantResponse struct {
	Status   string              `json:"status"`
	Incident experiment.Incident `json:"incident"`
}

// DisableVariant serves POST /v1/admin/variants/{id}/disable, the manual
// kill switch. The variant stays disabled until the process restarts with
// it re-enabled in configuration.
func (h *AdminHandler) DisableVariant(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("id")

	// An empty body is fine; the reason is optional.
	var req disableVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		types.WriteError(w, http.StatusBadRequest, types.CodeInvalidJSON,
			"request body is not valid JSON")
		return
	}
	if req.Reason == "" {
		req.Reason = "disabled via admin api"
	}

	incident, err := h.harness.ForceDisable(variantID, req.Reason)
	if err != nil {
		if errors.Is(err, experiment.ErrUnknownVariant) {
			types.WriteError(w, http.StatusNotFound, types.CodeUnknownVariant, err.Error())
			return
		}
		types.WriteError(w, http.StatusConflict, types.CodeInvalidRequest, err.Error())
		return
	}

	types.WriteJSON(w, http.StatusOK, disableVariantResponse{
		Status:   "disabled",
		Incident: incident,
	})
}

type incidentsResponse struct {
	Incidents     []experiment.Incident `json:"incidents"`
	RollbackCount int64                 `json:"rollback_count"`
}

// Incidents serves GET /v1/admin/incidents: the rollback and manual-disable
// log, newest last.
func (h *AdminHandler) Incidents(w http.ResponseWriter, r *http.Request) {
	types.WriteJSON(w, http.StatusOK, incidentsResponse{
		Incidents:     h.harness.Incidents(),
		RollbackCount: h.harness.RollbackCount(),
	})
}

type decisionsResponse struct {
	Decisions []*audit.Record `json:"decisions"`
}

// Decisions serves GET /v1/admin/decisions from the recent-decision cache.
// ?request_id= fetches one decision, ?limit= bounds the listing. Historical
// records live in audit storage and are reachable through the audit CLI.
func (h *AdminHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		types.WriteError(w, http.StatusNotFound, types.CodeAuditDisabled,
			"audit recording is disabled")
		return
	}

	q := r.URL.Query()

	if requestID := q.Get("request_id"); requestID != "" {
		rec, ok := h.audit.Lookup(requestID)
		if !ok {
			types.WriteError(w, http.StatusNotFound, types.CodeUnknownRequest,
				fmt.Sprintf("no recent decision for request %q", requestID))
			return
		}
		types.WriteJSON(w, http.StatusOK, decisionsResponse{Decisions: []*audit.Record{rec}})
		return
	}

	limit := defaultDecisionLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			types.WriteError(w, http.StatusBadRequest, types.CodeInvalidRequest,
				"limit must be a positive integer")
			return
		}
		limit = parsed
	}

	types.WriteJSON(w, http.StatusOK, decisionsResponse{Decisions: h.audit.Recent(limit)})
}

type statsResponse struct {
	Router           routing.Stats        `json:"router"`
	PendingDecisions int                  `json:"pending_decisions"`
	Audit            *audit.RecorderStats `json:"audit,omitempty"`
}

// Stats serves GET /v1/admin/stats: router counters plus audit pipeline
// health when recording is enabled.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Router:           h.engine.Stats(),
		PendingDecisions: h.engine.PendingCount(),
	}
	if h.audit != nil {
		stats := h.audit.Stats()
		resp.Audit = &stats
	}

	types.WriteJSON(w, http.StatusOK, resp)
}

func queryInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
