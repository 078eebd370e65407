package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"bearing-hq/sextant/pkg/server/types"
)

// TenantIDHeader carries the caller's tenant identity. Requests without it
// are limited per client IP instead.
const TenantIDHeader = "X-Tenant-ID"

// TenantRateLimiter hands out one token bucket per tenant, created lazily
// on first sight.
type TenantRateLimiter struct {
	mu      sync.Mutex
	tenants map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewTenantRateLimiter builds a limiter allowing rps sustained requests per
// second with the given burst per tenant.
func NewTenantRateLimiter(rps float64, burst int) *TenantRateLimiter {
	return &TenantRateLimiter{
		tenants: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether the tenant has budget for one more request.
func (l *TenantRateLimiter) Allow(tenant string) bool {
	l.mu.Lock()
	limiter, ok := l.tenants[tenant]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.tenants[tenant] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Len returns the number of tenants with an allocated bucket.
func (l *TenantRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tenants)
}

// RateLimit rejects requests with 429 once a tenant exhausts its token
// bucket. Identity comes from the X-Tenant-ID header when present, the
// client IP otherwise.
func RateLimit(limiter *TenantRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(TenantIDHeader)
			if key == "" {
				key = clientIP(r)
			}

			if !limiter.Allow(key) {
				types.WriteError(w, http.StatusTooManyRequests,
					types.CodeRateLimited, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
