package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"bearing-hq/sextant/pkg/server/types"
)

// Timeout enforces a per-request deadline. The handler runs against a
// buffered writer; on completion the buffer flushes to the client, on
// deadline a 504 envelope is written instead and the handler's late output
// is discarded. Handlers observe the deadline through the request context.
//
// Buffering trades streaming support for a single-writer guarantee: the
// real connection is only ever written by one goroutine.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			buf := newBufferedWriter()
			done := make(chan struct{})
			panicChan := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()
				next.ServeHTTP(buf, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicChan:
				// Surface handler panics on the serving goroutine so the
				// recovery middleware sees them.
				panic(p)

			case <-done:
				buf.flush(w)

			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					types.WriteError(w, http.StatusGatewayTimeout,
						types.CodeRequestTimeout,
						"request took too long to complete")
					return
				}
				// Client went away; nothing useful to write.
			}
		})
	}
}

// bufferedWriter holds the handler's response until the deadline race is
// decided. Only the handler goroutine writes it; flush runs strictly after
// the handler returns.
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	dst := w.Header()
	for key, values := range b.header {
		dst[key] = values
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}
