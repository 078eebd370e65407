// Package health provides liveness and readiness probes for the routing
// service.
//
// # Overview
//
// The health package implements the probe endpoints Kubernetes and other
// orchestrators poll, plus a version information endpoint. The readiness
// answer aggregates per-component checks registered by the process at
// startup.
//
// # Endpoints
//
//   - /health: liveness probe, is the process serving
//   - /ready: readiness probe, can the engine route traffic
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//
//	checker.RegisterCheck("statestore", func(ctx context.Context) error {
//	    return store.Ping(ctx)
//	})
//	checker.RegisterCheck("catalog", func(ctx context.Context) error {
//	    if len(catalog.Current().Active()) == 0 {
//	        return errors.New("no active arms")
//	    }
//	    return nil
//	})
//
//	mux.HandleFunc("/health", checker.LivenessHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
//	mux.HandleFunc("/version", health.VersionHandler("1.0.0", "abc123", buildTime))
//
// # Liveness vs Readiness
//
// Liveness only attests that the process can answer HTTP; orchestrators
// restart the pod when it fails. Readiness runs every registered check
// concurrently, each under the checker's per-check timeout, and returns 503
// while any component is unhealthy; orchestrators hold traffic until it
// recovers.
//
// Common component checks for this service:
//   - statestore: per-arm state backend reachable
//   - catalog: at least one active arm to route to
//   - audit: audit storage accepting writes (when enabled)
//
// # Example Responses
//
// Readiness while the statestore is down:
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "catalog": {"status": "ok", "duration_ms": 0.1},
//	        "statestore": {"status": "unhealthy", "message": "redis: connection refused"}
//	    },
//	    "timestamp": "2026-08-25T10:30:00Z"
//	}
package health
