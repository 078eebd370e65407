// Package server provides the HTTP API over the routing engine.
//
// This package ties the running components together (engine, catalog,
// experiment harness, audit recorder, health checker, metrics collector)
// and manages server lifecycle: route setup, middleware chaining, graceful
// shutdown, and OS signal handling.
//
// # Endpoints
//
// Routing:
//   - POST /v1/route: make a routing decision for one request
//   - POST /v1/outcome: report the observed outcome of a routed request
//
// Admin (read-mostly introspection):
//   - GET  /v1/admin/policies: configured policy instances
//   - GET  /v1/admin/arms: arm catalog with pricing and retirement status
//   - GET  /v1/admin/estimates: per-policy arm utilities for a hypothetical request
//   - GET  /v1/admin/variants: variant status and the shadow scoreboard
//   - POST /v1/admin/variants/{id}/disable: manual variant kill switch
//   - GET  /v1/admin/incidents: rollback and manual-disable log
//   - GET  /v1/admin/decisions: recent decisions from the audit cache
//   - GET  /v1/admin/stats: router counters and audit pipeline health
//
// Operational:
//   - GET /health, GET /ready, GET /version, GET /metrics
//
// # Basic Usage
//
//	srv := server.NewServer(cfg, server.Dependencies{
//	    Engine:  engine,
//	    Catalog: catalog,
//	    Harness: harness,
//	    Audit:   recorder,
//	    Checker: checker,
//	    Metrics: collector,
//	    Version: "1.0.0",
//	})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, a SIGINT/SIGTERM arrives,
// RequestShutdown is called, or the listener fails. Shutdown drains
// in-flight requests up to the configured shutdown timeout.
//
// # Error Envelope
//
// Every error response uses the same JSON envelope:
//
//	{
//	  "error": {
//	    "code": "duplicate_request",
//	    "message": "failed to register decision: duplicate request id: \"req-1\""
//	  }
//	}
//
// Engine errors map onto statuses: validation failures 400, duplicate
// request IDs 409, pending-table pressure and rate limits 429, unknown
// request IDs 404, no dispatchable arm or closed router 503.
package server
