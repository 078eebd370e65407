package middleware

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// StartTimeKey stores the request start time for latency calculation.
// Request and tenant identity live in the logging package's context keys,
// so the context handler installed by telemetry/logging sees them.
const StartTimeKey contextKey = "start_time"
