// Package telemetry groups the observability subpackages for the routing
// engine.
//
// # Components
//
//   - logging: structured logging on log/slog with context enrichment
//   - metrics: Prometheus metrics collection
//   - tracing: OpenTelemetry distributed tracing over OTLP
//   - health: liveness/readiness checks and probe endpoints
//
// The subpackages are wired independently: cmd installs the logger and
// tracer at startup, pkg/server mounts the probe and metrics endpoints and
// the tracing middleware, and the routing engine records metrics through
// the collector it is handed. Nothing here imports the rest of the engine,
// so every subpackage stays usable on its own.
package telemetry
