package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/audit"
	"bearing-hq/sextant/pkg/bandit"
	"bearing-hq/sextant/pkg/config"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/server/types"
)

// testComponents is a full engine stack over a two-arm catalog, wired the
// way cmd/sextant wires production.
type testComponents struct {
	engine   *routing.Engine
	catalog  *arms.Catalog
	harness  *experiment.Harness
	recorder *audit.Recorder
}

func newTestComponents(t *testing.T, expCfg experiment.Config) testComponents {
	t.Helper()

	catalog, err := arms.NewCatalog([]arms.Arm{
		{ID: "econ-small", CapabilityTags: []string{"text"}, Pricing: arms.Pricing{Base: 0.01}},
		{ID: "flagship", CapabilityTags: []string{"text"}, Pricing: arms.Pricing{Base: 0.05}},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	harness, err := experiment.NewHarness(expCfg)
	if err != nil {
		t.Fatalf("NewHarness() error = %v", err)
	}

	rewardEngine, err := reward.NewEngine(reward.DefaultConfig())
	if err != nil {
		t.Fatalf("reward.NewEngine() error = %v", err)
	}

	specs := map[string]routing.PolicySpec{
		"default": {Type: bandit.TypeUCB1, Config: bandit.Config{Seed: 42}},
	}
	engine, err := routing.NewEngine(routing.DefaultConfig(), catalog, specs, harness, rewardEngine)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	recorder, err := audit.NewRecorder(audit.NewMemoryStorage(128), audit.RecorderConfig{
		AsyncBuffer: 16,
	})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	t.Cleanup(func() { _ = recorder.Close() })
	engine.SetAuditSink(recorder)

	return testComponents{
		engine:   engine,
		catalog:  catalog,
		harness:  harness,
		recorder: recorder,
	}
}

// newTestHandler returns the full middleware-wrapped handler over a default
// single-variant stack.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	c := newTestComponents(t, experiment.Config{})
	return newServerFor(t, c).Handler()
}

func newServerFor(t *testing.T, c testComponents) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	return NewServer(&cfg, Dependencies{
		Engine:  c.engine,
		Catalog: c.catalog,
		Harness: c.harness,
		Audit:   c.recorder,
		Version: "test",
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error envelope from %q: %v", w.Body.String(), err)
	}
	return resp
}

func validRouteBody(requestID string) routeRequest {
	return routeRequest{
		RequestID:    requestID,
		TenantID:     "tenant-1",
		ContentType:  "text",
		PayloadBytes: 1024,
		PriorTurns:   1,
	}
}

func TestRouteEndpoint(t *testing.T) {
	t.Run("returns a decision for a valid request", func(t *testing.T) {
		handler := newTestHandler(t)

		w := postJSON(t, handler, "/v1/route", validRouteBody("req-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
		}

		var dec routing.Decision
		if err := json.Unmarshal(w.Body.Bytes(), &dec); err != nil {
			t.Fatalf("decoding decision: %v", err)
		}
		if dec.RequestID != "req-1" {
			t.Errorf("request_id = %q, want req-1", dec.RequestID)
		}
		if dec.ArmID != "econ-small" && dec.ArmID != "flagship" {
			t.Errorf("arm_id = %q, want a catalog arm", dec.ArmID)
		}
		if dec.VariantID == "" {
			t.Error("variant_id should be set")
		}
		if dec.CatalogVersion == 0 {
			t.Error("catalog_version should be set")
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		handler := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/route", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeErrorResponse(t, w); resp.Error.Code != types.CodeInvalidJSON {
			t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeInvalidJSON)
		}
	})

	t.Run("rejects invalid metadata", func(t *testing.T) {
		handler := newTestHandler(t)

		body := validRouteBody("req-2")
		body.TenantID = ""
		w := postJSON(t, handler, "/v1/route", body)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeErrorResponse(t, w); resp.Error.Code != types.CodeInvalidRequest {
			t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeInvalidRequest)
		}
	})

	t.Run("rejects duplicate request ids with 409", func(t *testing.T) {
		handler := newTestHandler(t)

		if w := postJSON(t, handler, "/v1/route", validRouteBody("req-dup")); w.Code != http.StatusOK {
			t.Fatalf("first route status = %d, want %d", w.Code, http.StatusOK)
		}

		w := postJSON(t, handler, "/v1/route", validRouteBody("req-dup"))
		if w.Code != http.StatusConflict {
			t.Fatalf("second route status = %d, want %d", w.Code, http.StatusConflict)
		}
		if resp := decodeErrorResponse(t, w); resp.Error.Code != types.CodeDuplicateRequest {
			t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeDuplicateRequest)
		}
	})

	t.Run("rejects non-POST methods", func(t *testing.T) {
		handler := newTestHandler(t)

		w := get(t, handler, "/v1/route")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
		}
	})
}

func TestOutcomeEndpoint(t *testing.T) {
	outcomeBody := func(requestID string) outcomeRequest {
		return outcomeRequest{
			RequestID:    requestID,
			QualityScore: 0.8,
			LatencyMS:    120,
			ActualCost:   0.012,
			Success:      true,
		}
	}

	t.Run("accepts an outcome for a routed request", func(t *testing.T) {
		handler := newTestHandler(t)

		if w := postJSON(t, handler, "/v1/route", validRouteBody("req-out")); w.Code != http.StatusOK {
			t.Fatalf("route status = %d, want %d", w.Code, http.StatusOK)
		}

		w := postJSON(t, handler, "/v1/outcome", outcomeBody("req-out"))
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusAccepted, w.Body.String())
		}

		var resp outcomeResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Status != "accepted" {
			t.Errorf("status field = %q, want accepted", resp.Status)
		}
		if resp.RequestID != "req-out" {
			t.Errorf("request_id = %q, want req-out", resp.RequestID)
		}
	})

	t.Run("returns 404 for an unknown request id", func(t *testing.T) {
		handler := newTestHandler(t)

		w := postJSON(t, handler, "/v1/outcome", outcomeBody("ghost"))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if resp := decodeErrorResponse(t, w); resp.Error.Code != types.CodeUnknownRequest {
			t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeUnknownRequest)
		}
	})

	t.Run("returns 404 for an already completed request", func(t *testing.T) {
		handler := newTestHandler(t)

		if w := postJSON(t, handler, "/v1/route", validRouteBody("req-twice")); w.Code != http.StatusOK {
			t.Fatalf("route status = %d", w.Code)
		}
		if w := postJSON(t, handler, "/v1/outcome", outcomeBody("req-twice")); w.Code != http.StatusAccepted {
			t.Fatalf("first outcome status = %d", w.Code)
		}

		w := postJSON(t, handler, "/v1/outcome", outcomeBody("req-twice"))
		if w.Code != http.StatusNotFound {
			t.Errorf("second outcome status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("requires a request id", func(t *testing.T) {
		handler := newTestHandler(t)

		w := postJSON(t, handler, "/v1/outcome", outcomeBody(""))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if resp := decodeErrorResponse(t, w); resp.Error.Code != types.CodeInvalidRequest {
			t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeInvalidRequest)
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		handler := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/outcome", bytes.NewReader([]byte("[")))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestRouteResponseCarriesRequestIDHeader(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler, "/v1/route", validRouteBody("req-hdr"))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a correlation request ID header")
	}
}
