// Package tracing provides OpenTelemetry distributed tracing for the
// routing engine. Spans are exported over OTLP/gRPC to a collector.
//
// Usage:
//
//	tracer, err := tracing.New(tracing.Config{
//		Enabled:     true,
//		ServiceName: "sextant",
//		Endpoint:    "localhost:4317",
//		SampleRatio: 0.1,
//		Insecure:    true,
//	})
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// When tracing is disabled New returns a no-op tracer, so callers never
// branch on configuration. HTTPMiddleware opens one server span per
// request, continuing traces from the W3C traceparent header, and the
// Annotate helpers attach decision and outcome attributes to whatever
// span is on the context.
//
// The exporter connects lazily: New succeeds even when the collector is
// down, and spans buffer in the batch processor until it comes up.
package tracing
