package config

import (
	"time"

	"bearing-hq/sextant/pkg/bandit"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/statestore"
)

// Config is the root configuration for the sextant routing daemon.
//
// Domain tunables (router, experiment, reward, state store backends) reuse
// the yaml-tagged config structs owned by their packages, so the file schema
// and the runtime knobs cannot drift apart. Operational sections (server,
// catalog, audit, telemetry) are defined here and mapped onto their
// consumers at startup.
type Config struct {
	// Server configures the HTTP API server: listen address, timeouts,
	// CORS, and per-tenant rate limiting.
	Server ServerConfig `yaml:"server"`

	// Router tunes the decision orchestrator: outcome timeout, pending
	// decision capacity, and per-tenant utility knobs.
	Router routing.Config `yaml:"router"`

	// Policies declares the bandit policy instances available to
	// experiment variants, keyed by policy ID. Variants reference these
	// IDs; a variant naming an undeclared policy fails startup.
	Policies map[string]PolicyConfig `yaml:"policies"`

	// Catalog declares the arms available for dispatch and their pricing.
	// At least one arm is required.
	Catalog CatalogConfig `yaml:"catalog"`

	// Experiment configures traffic bucketing, shadow evaluation, and
	// automatic rollback windows.
	Experiment experiment.Config `yaml:"experiment"`

	// Reward configures how outcomes are folded into scalar rewards.
	Reward reward.Config `yaml:"reward"`

	// StateStore configures policy checkpoint persistence and the
	// background checkpointer.
	StateStore StateStoreConfig `yaml:"statestore"`

	// Audit configures the persisted decision audit trail.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port the server listens on.
	// Format: "host:port" (e.g., "127.0.0.1:8700", "0.0.0.0:8700").
	// Default: "127.0.0.1:8700"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are dropped.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout is the per-request handler deadline enforced by the
	// timeout middleware.
	// Default: 15s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server
	// reads parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// RateLimit contains per-tenant request rate limiting configuration.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig contains Cross-Origin Resource Sharing configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are applied.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists origins allowed to make requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists HTTP methods allowed in requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists request headers clients may send.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is how long, in seconds, preflight results may be cached.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// RateLimitConfig contains per-tenant request rate limiting configuration.
// Each tenant gets an independent token bucket.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is enforced.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained per-tenant request rate.
	// Default: 50
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the per-tenant burst allowance above the sustained rate.
	// Default: 100
	Burst int `yaml:"burst"`
}

// PolicyConfig declares one bandit policy instance.
type PolicyConfig struct {
	// PolicyType selects the algorithm. One of: epsilon_greedy, ucb1,
	// linucb, thompson, bootstrapped, neural.
	// Default: "ucb1"
	PolicyType string `yaml:"policy_type"`

	// Params tunes the selected algorithm. Omitted fields take the
	// algorithm's documented defaults.
	Params bandit.Config `yaml:"params"`
}

// CatalogConfig declares the arm catalog.
type CatalogConfig struct {
	// Arms lists the candidate backends the router chooses between.
	// At least one arm is required; IDs must be unique.
	Arms []ArmConfig `yaml:"arms"`

	// DefaultPricing prices arms added at runtime without a dedicated
	// pricing entry, so they are never accidentally free.
	// Default: zero cost
	DefaultPricing PricingConfig `yaml:"default_pricing"`
}

// ArmConfig declares one candidate backend.
type ArmConfig struct {
	// ID uniquely identifies the arm (e.g., "gpt-4o-mini").
	ID string `yaml:"id"`

	// CapabilityTags describe what the arm can serve ("text", "code").
	CapabilityTags []string `yaml:"capability_tags"`

	// Pricing is the arm's cost model.
	Pricing PricingConfig `yaml:"pricing"`
}

// PricingConfig is the cost model of one arm: a flat per-request base plus
// a component scaling with the request's context magnitude.
type PricingConfig struct {
	// Base is the flat cost charged per request.
	// Default: 0
	Base float64 `yaml:"base"`

	// PerUnit is the additional cost per unit of context magnitude.
	// Default: 0
	PerUnit float64 `yaml:"per_unit"`
}

// StateStoreConfig configures policy checkpoint persistence.
type StateStoreConfig struct {
	// Backend selects the checkpoint store. One of: memory, sqlite,
	// redis.
	// Default: "memory"
	Backend string `yaml:"backend"`

	// CheckpointInterval is how often the background checkpointer
	// serializes and saves live policy state.
	// Default: 60s
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// SQLite configures the sqlite backend.
	SQLite statestore.SQLiteConfig `yaml:"sqlite"`

	// Redis configures the redis backend.
	Redis statestore.RedisConfig `yaml:"redis"`
}

// AuditConfig configures the persisted decision audit trail.
type AuditConfig struct {
	// Enabled controls whether decisions are recorded at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the audit storage. One of: memory, sqlite.
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// AsyncBuffer is the size of the in-memory channel between the
	// recorder and the storage worker. Records beyond it are dropped
	// and counted rather than blocking the request path.
	// Default: 1024
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Memory configures the in-memory ring backend.
	Memory AuditMemoryConfig `yaml:"memory"`

	// SQLite configures the sqlite backend.
	SQLite AuditSQLiteConfig `yaml:"sqlite"`

	// Cache configures the recent-decision cache serving the admin
	// surface.
	Cache AuditCacheConfig `yaml:"cache"`

	// Retention configures periodic pruning of old audit records.
	Retention RetentionConfig `yaml:"retention"`
}

// AuditMemoryConfig configures the in-memory audit ring.
type AuditMemoryConfig struct {
	// MaxRecords caps the ring; the oldest records are evicted first.
	// Default: 10000
	MaxRecords int `yaml:"max_records"`
}

// AuditSQLiteConfig configures the sqlite audit backend.
type AuditSQLiteConfig struct {
	// Path is the sqlite database file path.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a locked database is retried before
	// failing the write.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditCacheConfig configures the bounded recent-decision cache.
type AuditCacheConfig struct {
	// Size is the maximum number of cached decisions.
	// Default: 1024
	Size int `yaml:"size"`

	// TTL is how long a cached decision stays servable.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`
}

// RetentionConfig configures periodic audit pruning.
type RetentionConfig struct {
	// Enabled controls whether the pruning job runs at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Days is the age-based cutoff; records older than this are pruned.
	// Default: 90
	Days int `yaml:"days"`

	// MaxRecords is the count-based cap; the oldest records beyond it
	// are pruned. Zero disables count-based pruning.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is a cron expression for when pruning runs.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum level emitted. One of: debug, info, warn,
	// error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the log encoding. One of: json, text.
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path the metrics handler is mounted on.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// SampleRatio is the fraction of traces sampled, in [0, 1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS on the exporter connection.
	// Default: true
	Insecure bool `yaml:"insecure"`
}
