package config

import (
	"time"

	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/statestore"
)

// Default values for configuration fields. Router, experiment, and reward
// defaults live with their packages; see routing.DefaultConfig,
// experiment.DefaultConfig, and reward.DefaultConfig.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8700"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Rate limit defaults
	DefaultRateLimitEnabled  = false
	DefaultRequestsPerSecond = 50.0
	DefaultRateLimitBurst    = 100

	// Policy defaults
	DefaultPolicyID   = "default"
	DefaultPolicyType = "ucb1"

	// State store defaults
	DefaultStateStoreBackend  = "memory"
	DefaultCheckpointInterval = 60 * time.Second
	DefaultSQLitePath         = "data/checkpoints.db"
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultRedisAddr          = "127.0.0.1:6379"

	// Audit defaults
	DefaultAuditEnabled          = true
	DefaultAuditBackend          = "sqlite"
	DefaultAuditAsyncBuffer      = 1024
	DefaultAuditWriteTimeout     = 5 * time.Second
	DefaultAuditMemoryMaxRecords = 10000
	DefaultAuditSQLitePath       = "data/audit.db"
	DefaultAuditCacheSize        = 1024
	DefaultAuditCacheTTL         = 5 * time.Minute
	DefaultRetentionEnabled      = true
	DefaultRetentionDays         = 90
	DefaultRetentionSchedule     = "0 3 * * *" // daily at 03:00

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultTracingEnabled     = false
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingInsecure    = true
)

// DefaultConfig returns the full default configuration tree. LoadFromFile
// unmarshals the file over this base, so booleans that default to true
// (audit.enabled, cors.enabled) keep their documented defaults when the
// file omits them.
//
// The policy map and the arm catalog start empty: ApplyDefaults seeds a
// single ucb1 policy when no policies are declared, while arms must always
// come from the operator.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			RequestTimeout:  DefaultRequestTimeout,
			MaxHeaderBytes:  DefaultMaxHeaderBytes,
			CORS: CORSConfig{
				Enabled:        DefaultCORSEnabled,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         DefaultCORSMaxAge,
			},
			RateLimit: RateLimitConfig{
				Enabled:           DefaultRateLimitEnabled,
				RequestsPerSecond: DefaultRequestsPerSecond,
				Burst:             DefaultRateLimitBurst,
			},
		},
		Router:     routing.DefaultConfig(),
		Experiment: experiment.DefaultConfig(),
		Reward:     reward.DefaultConfig(),
		StateStore: StateStoreConfig{
			Backend:            DefaultStateStoreBackend,
			CheckpointInterval: DefaultCheckpointInterval,
			SQLite: statestore.SQLiteConfig{
				DBPath:      DefaultSQLitePath,
				BusyTimeout: DefaultSQLiteBusyTimeout,
			},
			Redis: statestore.RedisConfig{Addr: DefaultRedisAddr},
		},
		Audit: AuditConfig{
			Enabled:      DefaultAuditEnabled,
			Backend:      DefaultAuditBackend,
			AsyncBuffer:  DefaultAuditAsyncBuffer,
			WriteTimeout: DefaultAuditWriteTimeout,
			Memory:       AuditMemoryConfig{MaxRecords: DefaultAuditMemoryMaxRecords},
			SQLite: AuditSQLiteConfig{
				Path:        DefaultAuditSQLitePath,
				BusyTimeout: DefaultSQLiteBusyTimeout,
			},
			Cache: AuditCacheConfig{
				Size: DefaultAuditCacheSize,
				TTL:  DefaultAuditCacheTTL,
			},
			Retention: RetentionConfig{
				Enabled:  DefaultRetentionEnabled,
				Days:     DefaultRetentionDays,
				Schedule: DefaultRetentionSchedule,
			},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  DefaultLoggingLevel,
				Format: DefaultLoggingFormat,
			},
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:     DefaultTracingEnabled,
				Endpoint:    DefaultTracingEndpoint,
				SampleRatio: DefaultTracingSampleRatio,
				Insecure:    DefaultTracingInsecure,
			},
		},
	}
}

// ApplyDefaults fills zero-valued fields with their defaults. It is
// idempotent and safe to call on a hand-built Config.
//
// Booleans keep whatever value they hold; start from DefaultConfig when the
// documented true defaults matter.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = DefaultRateLimitBurst
	}

	// Router defaults
	routerDef := routing.DefaultConfig()
	if cfg.Router.OutcomeTimeout == 0 {
		cfg.Router.OutcomeTimeout = routerDef.OutcomeTimeout
	}
	if cfg.Router.MaxPending == 0 {
		cfg.Router.MaxPending = routerDef.MaxPending
	}
	if cfg.Router.Tunables.Default == (routing.TenantTunables{}) {
		cfg.Router.Tunables.Default = routing.DefaultTunables()
	}

	// Policy defaults - a bare config still gets one working policy
	if len(cfg.Policies) == 0 {
		cfg.Policies = map[string]PolicyConfig{
			DefaultPolicyID: {PolicyType: DefaultPolicyType},
		}
	}
	for id, pc := range cfg.Policies {
		if pc.PolicyType == "" {
			pc.PolicyType = DefaultPolicyType
			cfg.Policies[id] = pc
		}
	}

	// Experiment defaults
	expDef := experiment.DefaultConfig()
	if cfg.Experiment.Salt == "" {
		cfg.Experiment.Salt = expDef.Salt
	}
	if cfg.Experiment.BucketCount == 0 {
		cfg.Experiment.BucketCount = expDef.BucketCount
	}
	if len(cfg.Experiment.Variants) == 0 {
		cfg.Experiment.Variants = expDef.Variants
	}
	if cfg.Experiment.WindowDuration == 0 {
		cfg.Experiment.WindowDuration = expDef.WindowDuration
	}
	if cfg.Experiment.ConsecutiveWindows == 0 {
		cfg.Experiment.ConsecutiveWindows = expDef.ConsecutiveWindows
	}
	if cfg.Experiment.MinWindowSamples == 0 {
		cfg.Experiment.MinWindowSamples = expDef.MinWindowSamples
	}
	if cfg.Experiment.Thresholds == (experiment.Thresholds{}) {
		cfg.Experiment.Thresholds = expDef.Thresholds
	}

	// Reward defaults apply as a block: a zero section means "unset",
	// while a partially filled one is taken literally so single weights
	// can be zeroed on purpose.
	if cfg.Reward == (reward.Config{}) {
		cfg.Reward = reward.DefaultConfig()
	}

	// State store defaults
	if cfg.StateStore.Backend == "" {
		cfg.StateStore.Backend = DefaultStateStoreBackend
	}
	if cfg.StateStore.CheckpointInterval == 0 {
		cfg.StateStore.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.StateStore.SQLite.DBPath == "" {
		cfg.StateStore.SQLite.DBPath = DefaultSQLitePath
	}
	if cfg.StateStore.SQLite.BusyTimeout == 0 {
		cfg.StateStore.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.StateStore.Redis.Addr == "" {
		cfg.StateStore.Redis.Addr = DefaultRedisAddr
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.Memory.MaxRecords == 0 {
		cfg.Audit.Memory.MaxRecords = DefaultAuditMemoryMaxRecords
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Audit.Cache.Size == 0 {
		cfg.Audit.Cache.Size = DefaultAuditCacheSize
	}
	if cfg.Audit.Cache.TTL == 0 {
		cfg.Audit.Cache.TTL = DefaultAuditCacheTTL
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultRetentionDays
	}
	if cfg.Audit.Retention.Schedule == "" {
		cfg.Audit.Retention.Schedule = DefaultRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
