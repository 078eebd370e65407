// Package logging configures the process-wide structured logger.
//
// The rest of the tree logs through log/slog; this package owns how those
// records are encoded and what request-scoped identity they carry. Setup
// builds a JSON or text handler from configuration and installs it as the
// slog default:
//
//	logger, err := logging.Setup(logging.Config{
//	    Level:  cfg.Telemetry.Logging.Level,
//	    Format: cfg.Telemetry.Logging.Format,
//	})
//	if err != nil {
//	    return err
//	}
//
// # Context enrichment
//
// Every handler built here is wrapped in a context handler. Records logged
// with a context (slog.InfoContext and friends) are enriched with:
//
//   - request_id, when the HTTP layer stored one via WithRequestID
//   - tenant_id, when a handler stored one via WithTenantID
//   - trace_id and span_id, when an OpenTelemetry span is active
//
// Attributes already present on the record are never overwritten, so call
// sites that attach request_id explicitly stay authoritative.
package logging
