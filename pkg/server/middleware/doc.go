// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware that handles functionality common to
// all API requests: request ID generation, structured logging, CORS,
// per-tenant rate limiting, panic recovery, and timeout enforcement.
//
// # Middleware Chain
//
// Middleware is chained in a specific order:
//
//	handler = Recovery(RequestID(Tracing(Logging(CORS(RateLimit(Timeout(handler)))))))
//
// Order (innermost to outermost):
//  1. Timeout: enforce per-request deadline with a buffered writer
//  2. RateLimit: reject tenants that exhaust their token bucket
//  3. CORS: add Cross-Origin Resource Sharing headers, answer preflight
//  4. Logging: log request/response details
//  5. Tracing: open a server span (telemetry/tracing, when enabled)
//  6. RequestID: generate and propagate the correlation ID
//  7. Recovery: recover from panics, return a 500 envelope
//
// RequestID sits outside Logging so every log line carries the correlation
// ID, and the tracing middleware sits between them so those lines carry the
// trace ID as well. CORS sits outside RateLimit so preflight requests are
// never counted against a tenant's budget.
//
// # Request ID
//
// RequestID assigns each request a correlation ID, honoring a
// client-provided X-Request-ID header. The ID is added to the request
// context and the response headers and appears in all request logs. It is
// unrelated to the routing request_id carried in request bodies.
//
// # Logging
//
// Logging records completions with log/slog:
//
//	{
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/v1/route",
//	  "status": 200,
//	  "latency_ms": 2,
//	  "request_id": "a1b2c3d4..."
//	}
//
// Responses with status >= 500 log at error level, >= 400 at warn.
//
// # Timeout
//
// Timeout runs the handler against a buffered response writer and races it
// with the deadline. On timeout the client receives a 504 envelope and the
// handler's late writes are discarded; the handler itself observes
// cancellation through its context.
//
// # Rate Limiting
//
// RateLimit keys token buckets by the X-Tenant-ID header, falling back to
// the client IP, and rejects over-budget requests with 429.
package middleware
