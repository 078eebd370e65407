package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is a private type so context values cannot collide with keys
// from other packages.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
)

// WithRequestID stores the correlation request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the correlation request ID from the context.
// Returns empty string if not set.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithTenantID stores the tenant identity in the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantID retrieves the tenant identity from the context. Returns
// empty string if not set.
func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(tenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// contextHandler enriches records with request-scoped identity: the
// request ID and tenant ID stored in the context, and the trace and span
// IDs of a sampled span when one is active. Attributes already present on
// the record win over injected ones.
type contextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps a handler with context enrichment.
func NewContextHandler(inner slog.Handler) slog.Handler {
	return &contextHandler{inner: inner}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := h.contextAttrs(ctx, rec)
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, rec)
	}

	// Records share their attr backing array; clone before adding.
	rec = rec.Clone()
	rec.AddAttrs(attrs...)
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}

func (h *contextHandler) contextAttrs(ctx context.Context, rec slog.Record) []slog.Attr {
	var attrs []slog.Attr

	present := make(map[string]bool, rec.NumAttrs())
	rec.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})

	if requestID := GetRequestID(ctx); requestID != "" && !present["request_id"] {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if tenantID := GetTenantID(ctx); tenantID != "" && !present["tenant_id"] {
		attrs = append(attrs, slog.String("tenant_id", tenantID))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if !present["trace_id"] {
			attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
		}
		if !present["span_id"] {
			attrs = append(attrs, slog.String("span_id", sc.SpanID().String()))
		}
	}

	return attrs
}
