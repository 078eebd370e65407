package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"bearing-hq/sextant/pkg/config"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/server/types"
	"bearing-hq/sextant/pkg/telemetry/health"
	"bearing-hq/sextant/pkg/telemetry/metrics"
)

func TestServerLifecycle(t *testing.T) {
	t.Run("start then requested shutdown", func(t *testing.T) {
		c := newTestComponents(t, experiment.Config{})
		cfg := config.DefaultConfig()
		cfg.Server.ListenAddress = "127.0.0.1:0"
		cfg.Server.ShutdownTimeout = 2 * time.Second

		srv := NewServer(&cfg, Dependencies{
			Engine:  c.engine,
			Catalog: c.catalog,
			Harness: c.harness,
		})

		startErr := make(chan error, 1)
		go func() {
			startErr <- srv.Start(context.Background())
		}()

		deadline := time.Now().Add(2 * time.Second)
		for !srv.IsRunning() {
			if time.Now().After(deadline) {
				t.Fatal("server never reported running")
			}
			time.Sleep(10 * time.Millisecond)
		}

		srv.RequestShutdown()

		select {
		case err := <-startErr:
			if err != nil {
				t.Errorf("Start() error = %v, want nil", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Start did not return after shutdown request")
		}
		if srv.IsRunning() {
			t.Error("IsRunning() = true after shutdown")
		}
	})

	t.Run("shutdown before start is a no-op", func(t *testing.T) {
		c := newTestComponents(t, experiment.Config{})
		cfg := config.DefaultConfig()
		srv := NewServer(&cfg, Dependencies{
			Engine:  c.engine,
			Catalog: c.catalog,
			Harness: c.harness,
		})

		if err := srv.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v, want nil", err)
		}
	})
}

func TestProbeEndpoints(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		handler := newTestHandler(t)

		w := get(t, handler, "/health")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var status health.HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if status.Status != health.StatusOK {
			t.Errorf("status = %q, want %q", status.Status, health.StatusOK)
		}
	})

	t.Run("readiness with no checks", func(t *testing.T) {
		handler := newTestHandler(t)

		w := get(t, handler, "/ready")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("readiness degrades on a failing check", func(t *testing.T) {
		c := newTestComponents(t, experiment.Config{})
		checker := health.New(time.Second)
		checker.RegisterCheck("statestore", func(ctx context.Context) error {
			return errors.New("connection refused")
		})

		cfg := config.DefaultConfig()
		srv := NewServer(&cfg, Dependencies{
			Engine:  c.engine,
			Catalog: c.catalog,
			Harness: c.harness,
			Checker: checker,
		})
		handler := srv.Handler()

		w := get(t, handler, "/ready")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		var status health.HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if status.Status != health.StatusDegraded {
			t.Errorf("status = %q, want %q", status.Status, health.StatusDegraded)
		}
		if _, ok := status.Checks["statestore"]; !ok {
			t.Error("degraded response should name the failing check")
		}
	})

	t.Run("version", func(t *testing.T) {
		handler := newTestHandler(t)

		w := get(t, handler, "/version")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var info health.VersionInfo
		if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if info.Version != "test" {
			t.Errorf("version = %q, want test", info.Version)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("exposed when enabled", func(t *testing.T) {
		c := newTestComponents(t, experiment.Config{})
		cfg := config.DefaultConfig()
		srv := NewServer(&cfg, Dependencies{
			Engine:  c.engine,
			Catalog: c.catalog,
			Harness: c.harness,
			Metrics: metrics.NewCollector(&metrics.Config{}, nil),
		})
		handler := srv.Handler()

		w := get(t, handler, "/metrics")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("absent when disabled", func(t *testing.T) {
		c := newTestComponents(t, experiment.Config{})
		cfg := config.DefaultConfig()
		cfg.Telemetry.Metrics.Enabled = false
		srv := NewServer(&cfg, Dependencies{
			Engine:  c.engine,
			Catalog: c.catalog,
			Harness: c.harness,
			Metrics: metrics.NewCollector(&metrics.Config{}, nil),
		})
		handler := srv.Handler()

		w := get(t, handler, "/metrics")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestRateLimitIntegration(t *testing.T) {
	c := newTestComponents(t, experiment.Config{})
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		Burst:             1,
	}
	srv := NewServer(&cfg, Dependencies{
		Engine:  c.engine,
		Catalog: c.catalog,
		Harness: c.harness,
	})
	handler := srv.Handler()

	// httptest requests share a remote address, so they land in one bucket.
	if w := get(t, handler, "/v1/admin/policies"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", w.Code, http.StatusOK)
	}

	w := get(t, handler, "/v1/admin/policies")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if resp := decodeErrorResponse(t, w); resp.Error.Code != types.CodeRateLimited {
		t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeRateLimited)
	}
}
