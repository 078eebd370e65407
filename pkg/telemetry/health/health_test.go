package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "default timeout",
			timeout:         0,
			expectedTimeout: 5 * time.Second,
		},
		{
			name:            "custom timeout",
			timeout:         10 * time.Second,
			expectedTimeout: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout)

			if checker.checkTimeout != tt.expectedTimeout {
				t.Errorf("timeout = %v, want %v", checker.checkTimeout, tt.expectedTimeout)
			}
			if checker.CheckCount() != 0 {
				t.Errorf("new checker has %d checks, want 0", checker.CheckCount())
			}
		})
	}
}

func TestCheckLiveness(t *testing.T) {
	checker := New(0)

	status := checker.CheckLiveness(context.Background())

	if status.Status != StatusOK {
		t.Errorf("liveness status = %q, want %q", status.Status, StatusOK)
	}
	if status.Timestamp.IsZero() {
		t.Error("liveness timestamp should be set")
	}
}

func TestCheckReadiness(t *testing.T) {
	t.Run("ready with no checks registered", func(t *testing.T) {
		checker := New(time.Second)

		status := checker.CheckReadiness(context.Background())

		if status.Status != StatusReady {
			t.Errorf("status = %q, want %q", status.Status, StatusReady)
		}
		if len(status.Checks) != 0 {
			t.Errorf("checks = %v, want none", status.Checks)
		}
	})

	t.Run("ready when all checks pass", func(t *testing.T) {
		checker := New(time.Second)
		checker.RegisterCheck("statestore", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("catalog", func(ctx context.Context) error { return nil })

		status := checker.CheckReadiness(context.Background())

		if status.Status != StatusReady {
			t.Errorf("status = %q, want %q", status.Status, StatusReady)
		}
		for _, name := range []string{"statestore", "catalog"} {
			result, ok := status.Checks[name]
			if !ok {
				t.Fatalf("missing result for %q", name)
			}
			if result.Status != StatusOK {
				t.Errorf("%s status = %q, want %q", name, result.Status, StatusOK)
			}
		}
	})

	t.Run("degraded when a check fails", func(t *testing.T) {
		checker := New(time.Second)
		checker.RegisterCheck("catalog", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("statestore", func(ctx context.Context) error {
			return errors.New("redis: connection refused")
		})

		status := checker.CheckReadiness(context.Background())

		if status.Status != StatusDegraded {
			t.Errorf("status = %q, want %q", status.Status, StatusDegraded)
		}
		result := status.Checks["statestore"]
		if result.Status != StatusUnhealthy {
			t.Errorf("statestore status = %q, want %q", result.Status, StatusUnhealthy)
		}
		if result.Message != "redis: connection refused" {
			t.Errorf("statestore message = %q, want the check error", result.Message)
		}
		if status.Checks["catalog"].Status != StatusOK {
			t.Error("a failing peer should not mark healthy components unhealthy")
		}
	})

	t.Run("times out a stuck check", func(t *testing.T) {
		checker := New(50 * time.Millisecond)
		checker.RegisterCheck("statestore", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		status := checker.CheckReadiness(context.Background())

		if status.Status != StatusDegraded {
			t.Errorf("status = %q, want %q", status.Status, StatusDegraded)
		}
		result := status.Checks["statestore"]
		if result.Status != StatusUnhealthy {
			t.Errorf("stuck check status = %q, want %q", result.Status, StatusUnhealthy)
		}
		if result.Message != ErrCheckTimeout.Error() {
			t.Errorf("stuck check message = %q, want %q", result.Message, ErrCheckTimeout.Error())
		}
	})
}

func TestRegisterCheck(t *testing.T) {
	checker := New(time.Second)

	checker.RegisterCheck("statestore", func(ctx context.Context) error {
		return errors.New("down")
	})
	if got := checker.CheckReadiness(context.Background()).Status; got != StatusDegraded {
		t.Fatalf("status before replacement = %q, want %q", got, StatusDegraded)
	}

	// Re-registering under the same name replaces the check.
	checker.RegisterCheck("statestore", func(ctx context.Context) error { return nil })
	if got := checker.CheckReadiness(context.Background()).Status; got != StatusReady {
		t.Errorf("status after replacement = %q, want %q", got, StatusReady)
	}

	if checker.CheckCount() != 1 {
		t.Errorf("check count = %d, want 1", checker.CheckCount())
	}

	checker.UnregisterCheck("statestore")
	if checker.CheckCount() != 0 {
		t.Errorf("check count after unregister = %d, want 0", checker.CheckCount())
	}
	if names := checker.ListChecks(); len(names) != 0 {
		t.Errorf("ListChecks after unregister = %v, want empty", names)
	}
}

func TestLivenessHandler(t *testing.T) {
	checker := New(time.Second)
	handler := checker.LivenessHandler()

	t.Run("GET returns ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}

		var status HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if status.Status != StatusOK {
			t.Errorf("body status = %q, want %q", status.Status, StatusOK)
		}
	})

	t.Run("HEAD returns no body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodHead, "/health", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if w.Body.Len() != 0 {
			t.Errorf("HEAD body length = %d, want 0", w.Body.Len())
		}
	})

	t.Run("rejects other methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
		}
	})
}

func TestReadinessHandler(t *testing.T) {
	t.Run("returns 200 when ready", func(t *testing.T) {
		checker := New(time.Second)
		checker.RegisterCheck("catalog", func(ctx context.Context) error { return nil })

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		checker.ReadinessHandler()(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("returns 503 when degraded", func(t *testing.T) {
		checker := New(time.Second)
		checker.RegisterCheck("statestore", func(ctx context.Context) error {
			return errors.New("down")
		})

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		checker.ReadinessHandler()(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}

		var status HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if status.Status != StatusDegraded {
			t.Errorf("body status = %q, want %q", status.Status, StatusDegraded)
		}
		if _, ok := status.Checks["statestore"]; !ok {
			t.Error("body should carry per-component results")
		}
	})
}

func TestVersionHandler(t *testing.T) {
	handler := VersionHandler("1.2.3", "abc123", "2026-08-25T00:00:00Z")

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var info VersionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if info.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", info.Version)
	}
	if info.Commit != "abc123" {
		t.Errorf("commit = %q, want abc123", info.Commit)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("go_version = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestRateLimitedHandler(t *testing.T) {
	t.Run("limits request rate", func(t *testing.T) {
		inner := func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
		handler := RateLimitedHandler(inner, 1)

		first := httptest.NewRecorder()
		handler(first, httptest.NewRequest(http.MethodGet, "/health", nil))
		if first.Code != http.StatusOK {
			t.Fatalf("first request status = %d, want %d", first.Code, http.StatusOK)
		}

		second := httptest.NewRecorder()
		handler(second, httptest.NewRequest(http.MethodGet, "/health", nil))
		if second.Code != http.StatusTooManyRequests {
			t.Errorf("second request status = %d, want %d", second.Code, http.StatusTooManyRequests)
		}
	})

	t.Run("non-positive rate disables limiting", func(t *testing.T) {
		inner := func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
		handler := RateLimitedHandler(inner, 0)

		for i := 0; i < 10; i++ {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("request %d status = %d, want %d", i, w.Code, http.StatusOK)
			}
		}
	})
}

func BenchmarkCheckReadiness(b *testing.B) {
	checker := New(time.Second)
	checker.RegisterCheck("statestore", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("catalog", func(ctx context.Context) error { return nil })

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.CheckReadiness(ctx)
	}
}
