package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/audit"
	"bearing-hq/sextant/pkg/config"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/server/middleware"
	"bearing-hq/sextant/pkg/telemetry/health"
	"bearing-hq/sextant/pkg/telemetry/metrics"
	"bearing-hq/sextant/pkg/telemetry/tracing"
)

// probeRateLimit caps each health probe endpoint, in requests per second.
// Orchestrators poll these aggressively; the cap keeps them from competing
// with routing traffic.
const probeRateLimit = 10

// Dependencies carries the running components the server fronts. Engine,
// Catalog, and Harness are required; the rest degrade gracefully when nil.
type Dependencies struct {
	// Engine makes and completes routing decisions.
	Engine *routing.Engine

	// Catalog is the live arm catalog backing the admin surface.
	Catalog *arms.Catalog

	// Harness owns experiment variants, shadow scoring, and rollback.
	Harness *experiment.Harness

	// Audit is the decision recorder. Nil disables the recent-decisions
	// endpoint and the audit section of admin stats.
	Audit *audit.Recorder

	// Checker answers the readiness probe. Nil creates an empty checker
	// that always reports ready.
	Checker *health.Checker

	// Metrics serves the Prometheus registry. Nil disables /metrics.
	Metrics *metrics.Collector

	// Version, Commit, and BuildTime feed the /version endpoint.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP API server over the routing engine.
type Server struct {
	config       *config.Config
	deps         Dependencies
	httpServer   *http.Server
	shutdownChan chan struct{}
	requestOnce  sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates the API server. It does not start listening.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Checker == nil {
		deps.Checker = health.New(0)
	}

	return &Server{
		config:       cfg,
		deps:         deps,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown, whether by
// context cancellation, SIGINT/SIGTERM, RequestShutdown, or a listener
// error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting api server", "address", s.config.Server.ListenAddress)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// RequestShutdown asks a blocked Start to begin graceful shutdown. Safe to
// call more than once and from any goroutine.
func (s *Server) RequestShutdown() {
	s.requestOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// Shutdown gracefully shuts down the server, draining in-flight requests
// up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("api server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	routeHandler := NewRouteHandler(s.deps.Engine)
	outcomeHandler := NewOutcomeHandler(s.deps.Engine)
	admin := NewAdminHandler(s.deps.Engine, s.deps.Catalog, s.deps.Harness, s.deps.Audit)

	mux.Handle("POST /v1/route", routeHandler)
	mux.Handle("POST /v1/outcome", outcomeHandler)

	mux.HandleFunc("GET /v1/admin/policies", admin.Policies)
	mux.HandleFunc("GET /v1/admin/arms", admin.Arms)
	mux.HandleFunc("GET /v1/admin/estimates", admin.Estimates)
	mux.HandleFunc("GET /v1/admin/variants", admin.Variants)
	mux.HandleFunc("POST /v1/admin/variants/{id}/disable", admin.DisableVariant)
	mux.HandleFunc("GET /v1/admin/incidents", admin.Incidents)
	mux.HandleFunc("GET /v1/admin/decisions", admin.Decisions)
	mux.HandleFunc("GET /v1/admin/stats", admin.Stats)

	checker := s.deps.Checker
	mux.HandleFunc("/health", health.RateLimitedHandler(checker.LivenessHandler(), probeRateLimit))
	mux.HandleFunc("/ready", health.RateLimitedHandler(checker.ReadinessHandler(), probeRateLimit))
	mux.HandleFunc("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))

	if s.deps.Metrics != nil && s.config.Telemetry.Metrics.Enabled {
		path := s.config.Telemetry.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.deps.Metrics.Handler())
	}

	var handler http.Handler = mux

	if s.config.Server.RequestTimeout > 0 {
		handler = middleware.Timeout(s.config.Server.RequestTimeout)(handler)
	}

	if s.config.Server.RateLimit.Enabled {
		limiter := middleware.NewTenantRateLimiter(
			s.config.Server.RateLimit.RequestsPerSecond,
			s.config.Server.RateLimit.Burst,
		)
		handler = middleware.RateLimit(limiter)(handler)
	}

	handler = middleware.CORS(s.corsConfig())(handler)

	// RequestID wraps Logging so log lines carry the correlation ID, and
	// Tracing sits between them so access logs carry the trace ID too.
	handler = middleware.Logging(handler)
	if s.config.Telemetry.Tracing.Enabled {
		handler = tracing.HTTPMiddleware(handler)
	}
	handler = middleware.RequestID(handler)

	// Recovery outermost: it also catches panics resurfaced by the
	// timeout middleware.
	handler = middleware.Recovery(handler)

	return handler
}

// corsConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) corsConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		Enabled:        s.config.Server.CORS.Enabled,
		AllowedOrigins: s.config.Server.CORS.AllowedOrigins,
		AllowedMethods: s.config.Server.CORS.AllowedMethods,
		AllowedHeaders: s.config.Server.CORS.AllowedHeaders,
		MaxAge:         s.config.Server.CORS.MaxAge,
	}
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
