package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := GetRequestID(ctx); got != "req-42" {
		t.Errorf("GetRequestID() = %q, want req-42", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on bare context = %q, want empty", got)
	}
}

func TestTenantIDRoundTrip(t *testing.T) {
	ctx := WithTenantID(context.Background(), "tenant-1")
	if got := GetTenantID(ctx); got != "tenant-1" {
		t.Errorf("GetTenantID() = %q, want tenant-1", got)
	}
	if got := GetTenantID(context.Background()); got != "" {
		t.Errorf("GetTenantID() on bare context = %q, want empty", got)
	}
}

func TestContextHandlerEnrichment(t *testing.T) {
	t.Run("injects request and tenant ids", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Writer: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx := WithRequestID(context.Background(), "req-9")
		ctx = WithTenantID(ctx, "tenant-a")
		logger.InfoContext(ctx, "routing")

		out := buf.String()
		if !strings.Contains(out, `"request_id":"req-9"`) {
			t.Errorf("output missing request_id: %s", out)
		}
		if !strings.Contains(out, `"tenant_id":"tenant-a"`) {
			t.Errorf("output missing tenant_id: %s", out)
		}
	})

	t.Run("explicit attrs win over context", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Writer: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx := WithRequestID(context.Background(), "from-context")
		logger.InfoContext(ctx, "routing", "request_id", "explicit")

		out := buf.String()
		if strings.Contains(out, "from-context") {
			t.Errorf("context value overrode the explicit attr: %s", out)
		}
		if got := strings.Count(out, `"request_id"`); got != 1 {
			t.Errorf("request_id appears %d times, want 1: %s", got, out)
		}
	})

	t.Run("bare context adds nothing", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Writer: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		logger.Info("plain")

		out := buf.String()
		for _, key := range []string{"request_id", "tenant_id", "trace_id", "span_id"} {
			if strings.Contains(out, key) {
				t.Errorf("output contains %s without context: %s", key, out)
			}
		}
	})

	t.Run("injects trace identifiers from an active span", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Writer: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		logger.InfoContext(ctx, "inside span")

		out := buf.String()
		if !strings.Contains(out, span.SpanContext().TraceID().String()) {
			t.Errorf("output missing trace_id: %s", out)
		}
		if !strings.Contains(out, span.SpanContext().SpanID().String()) {
			t.Errorf("output missing span_id: %s", out)
		}
	})

	t.Run("noop span adds nothing", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Writer: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "op")
		defer span.End()
		logger.InfoContext(ctx, "outside sampling")

		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("noop span produced a trace_id: %s", buf.String())
		}
	})

	t.Run("preserved through With and groups", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Writer: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx := WithRequestID(context.Background(), "req-w")
		logger.With("component", "engine").WithGroup("detail").InfoContext(ctx, "scored", "utility", 0.4)

		if !strings.Contains(buf.String(), "req-w") {
			t.Errorf("derived logger lost context enrichment: %s", buf.String())
		}
	})
}

func BenchmarkContextHandler(b *testing.B) {
	logger, err := New(Config{Writer: &bytes.Buffer{}})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	ctx := WithTenantID(WithRequestID(context.Background(), "req-bench"), "tenant-bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.InfoContext(ctx, "request completed", "status", 200)
	}
}
