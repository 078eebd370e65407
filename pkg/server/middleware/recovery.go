package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"bearing-hq/sextant/pkg/server/types"
)

// Recovery recovers from panics in HTTP handlers and returns a 500 error
// envelope. The panic is logged with its stack trace; internals are never
// exposed to clients.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(r.Context())
				stack := debug.Stack()

				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stack),
				)

				types.WriteError(w, http.StatusInternalServerError,
					types.CodeServerError,
					"an internal error occurred")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
