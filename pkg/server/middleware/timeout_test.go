package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bearing-hq/sextant/pkg/server/types"
)

func TestTimeout(t *testing.T) {
	t.Run("flushes handler response when it finishes in time", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Custom", "value")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("done"))
		})

		wrapped := Timeout(time.Second)(handler)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Errorf("status = %v, want %v", w.Code, http.StatusCreated)
		}
		if w.Body.String() != "done" {
			t.Errorf("body = %q, want done", w.Body.String())
		}
		if got := w.Header().Get("X-Custom"); got != "value" {
			t.Errorf("X-Custom = %q, want value", got)
		}
	})

	t.Run("returns 504 when handler exceeds deadline", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			// Late write lands in the buffer and is discarded.
			_, _ = w.Write([]byte("too late"))
		})

		wrapped := Timeout(20 * time.Millisecond)(handler)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)

		if w.Code != http.StatusGatewayTimeout {
			t.Fatalf("status = %v, want %v", w.Code, http.StatusGatewayTimeout)
		}

		var resp types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response should be a JSON error envelope: %v", err)
		}
		if resp.Error.Code != types.CodeRequestTimeout {
			t.Errorf("error code = %q, want %q", resp.Error.Code, types.CodeRequestTimeout)
		}
	})

	t.Run("handler observes the deadline through its context", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); !ok {
				t.Error("handler context should carry a deadline")
			}
			w.WriteHeader(http.StatusOK)
		})

		wrapped := Timeout(time.Second)(handler)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
		}
	})

	t.Run("propagates handler panics to the caller", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})

		wrapped := Timeout(time.Second)(handler)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		defer func() {
			if recover() == nil {
				t.Error("panic should escape the timeout middleware")
			}
		}()
		wrapped.ServeHTTP(w, req)
	})
}
