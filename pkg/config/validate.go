package config

import (
	"fmt"
	"math"
	"strings"

	"bearing-hq/sextant/pkg/bandit"
	"bearing-hq/sextant/pkg/routing"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. All field errors are collected before returning.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError
// listing every violation, or nil when the configuration is valid.
// Cross-field rules owned by domain constructors (variant share sums,
// baseline uniqueness) are re-checked there; this pass catches bad enums,
// non-finite numbers, and out-of-range values before anything is built.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRouter(cfg)...)
	errs = append(errs, validatePolicies(cfg.Policies)...)
	errs = append(errs, validateCatalog(&cfg.Catalog)...)
	errs = append(errs, validateExperiment(cfg)...)
	errs = append(errs, validateReward(cfg)...)
	errs = append(errs, validateStateStore(&cfg.StateStore)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	for _, to := range []struct {
		field string
		value int64
	}{
		{"server.read_timeout", int64(cfg.ReadTimeout)},
		{"server.write_timeout", int64(cfg.WriteTimeout)},
		{"server.idle_timeout", int64(cfg.IdleTimeout)},
		{"server.shutdown_timeout", int64(cfg.ShutdownTimeout)},
		{"server.request_timeout", int64(cfg.RequestTimeout)},
	} {
		if to.value < 0 {
			errs = append(errs, FieldError{
				Field:   to.field,
				Message: "timeout must not be negative",
			})
		}
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must not be negative",
		})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "server.cors.max_age",
			Message: "max age must not be negative",
		})
	}
	if cfg.RateLimit.Enabled {
		if !finite(cfg.RateLimit.RequestsPerSecond) || cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.requests_per_second",
				Message: fmt.Sprintf("must be a finite value > 0, got %v", cfg.RateLimit.RequestsPerSecond),
			})
		}
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.burst",
				Message: fmt.Sprintf("must be >= 1, got %d", cfg.RateLimit.Burst),
			})
		}
	}

	return errs
}

func validateRouter(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.Router.OutcomeTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "router.outcome_timeout",
			Message: "outcome timeout must not be negative",
		})
	}
	if cfg.Router.MaxPending < 0 {
		errs = append(errs, FieldError{
			Field:   "router.max_pending",
			Message: "max pending must not be negative",
		})
	}

	errs = append(errs, validateTunables("router.tunables.default", cfg.Router.Tunables.Default)...)
	for tenant, tun := range cfg.Router.Tunables.Tenants {
		if tenant == "" {
			errs = append(errs, FieldError{
				Field:   "router.tunables.tenants",
				Message: "tenant id cannot be empty",
			})
			continue
		}
		errs = append(errs, validateTunables("router.tunables.tenants."+tenant, tun)...)
	}

	return errs
}

func validateTunables(path string, tun routing.TenantTunables) []FieldError {
	var errs []FieldError

	if !finite(tun.Alpha) || tun.Alpha < 0 {
		errs = append(errs, FieldError{
			Field:   path + ".alpha",
			Message: fmt.Sprintf("must be a finite value >= 0, got %v", tun.Alpha),
		})
	}
	if !finite(tun.CostWeight) || tun.CostWeight < 0 {
		errs = append(errs, FieldError{
			Field:   path + ".cost_weight",
			Message: fmt.Sprintf("must be a finite value >= 0, got %v", tun.CostWeight),
		})
	}
	if !finite(tun.QualityFloor) || tun.QualityFloor < 0 || tun.QualityFloor > 1 {
		errs = append(errs, FieldError{
			Field:   path + ".quality_floor",
			Message: fmt.Sprintf("must be a finite value in [0, 1], got %v", tun.QualityFloor),
		})
	}

	return errs
}

func validateCatalog(cfg *CatalogConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Arms) == 0 {
		errs = append(errs, FieldError{
			Field:   "catalog.arms",
			Message: "at least one arm is required",
		})
	}

	seen := make(map[string]bool, len(cfg.Arms))
	for i, arm := range cfg.Arms {
		path := fmt.Sprintf("catalog.arms[%d]", i)
		if arm.ID == "" {
			errs = append(errs, FieldError{
				Field:   path + ".id",
				Message: "arm id is required",
			})
			continue
		}
		if seen[arm.ID] {
			errs = append(errs, FieldError{
				Field:   path + ".id",
				Message: fmt.Sprintf("duplicate arm id %q", arm.ID),
			})
		}
		seen[arm.ID] = true
		errs = append(errs, validatePricing(path+".pricing", arm.Pricing)...)
	}
	errs = append(errs, validatePricing("catalog.default_pricing", cfg.DefaultPricing)...)

	return errs
}

func validatePricing(path string, p PricingConfig) []FieldError {
	var errs []FieldError

	if !finite(p.Base) || p.Base < 0 {
		errs = append(errs, FieldError{
			Field:   path + ".base",
			Message: fmt.Sprintf("must be a finite value >= 0, got %v", p.Base),
		})
	}
	if !finite(p.PerUnit) || p.PerUnit < 0 {
		errs = append(errs, FieldError{
			Field:   path + ".per_unit",
			Message: fmt.Sprintf("must be a finite value >= 0, got %v", p.PerUnit),
		})
	}

	return errs
}

func validatePolicies(policies map[string]PolicyConfig) []FieldError {
	var errs []FieldError

	if len(policies) == 0 {
		errs = append(errs, FieldError{
			Field:   "policies",
			Message: "at least one policy is required",
		})
		return errs
	}

	for id, pc := range policies {
		if id == "" {
			errs = append(errs, FieldError{
				Field:   "policies",
				Message: "policy id cannot be empty",
			})
			continue
		}
		path := "policies." + id
		switch pc.PolicyType {
		case bandit.TypeEpsilonGreedy, bandit.TypeUCB1, bandit.TypeLinUCB,
			bandit.TypeThompson, bandit.TypeBootstrapped, bandit.TypeNeural:
		default:
			errs = append(errs, FieldError{
				Field:   path + ".policy_type",
				Message: fmt.Sprintf("unknown policy type %q", pc.PolicyType),
			})
		}

		// Zero param fields take algorithm defaults at construction, so
		// validate the params the factory will actually see.
		params := pc.Params
		params.ApplyDefaults()
		if err := params.Validate(); err != nil {
			errs = append(errs, FieldError{
				Field:   path + ".params",
				Message: err.Error(),
			})
		}
	}

	return errs
}

func validateExperiment(cfg *Config) []FieldError {
	var errs []FieldError
	exp := &cfg.Experiment

	if exp.BucketCount < 1 {
		errs = append(errs, FieldError{
			Field:   "experiment.bucket_count",
			Message: fmt.Sprintf("must be >= 1, got %d", exp.BucketCount),
		})
	}
	if exp.WindowDuration <= 0 {
		errs = append(errs, FieldError{
			Field:   "experiment.window_duration",
			Message: "window duration must be positive",
		})
	}
	if exp.ConsecutiveWindows < 1 {
		errs = append(errs, FieldError{
			Field:   "experiment.consecutive_windows",
			Message: fmt.Sprintf("must be >= 1, got %d", exp.ConsecutiveWindows),
		})
	}
	if exp.MinWindowSamples < 1 {
		errs = append(errs, FieldError{
			Field:   "experiment.min_window_samples",
			Message: fmt.Sprintf("must be >= 1, got %d", exp.MinWindowSamples),
		})
	}

	for _, th := range []struct {
		field string
		value float64
	}{
		{"experiment.rollback_thresholds.quality_delta", exp.Thresholds.QualityDelta},
		{"experiment.rollback_thresholds.latency_p95_delta_ms", exp.Thresholds.LatencyP95DeltaMS},
		{"experiment.rollback_thresholds.cost_delta", exp.Thresholds.CostDelta},
	} {
		if !finite(th.value) || th.value < 0 {
			errs = append(errs, FieldError{
				Field:   th.field,
				Message: fmt.Sprintf("must be a finite value >= 0, got %v", th.value),
			})
		}
	}

	for i, v := range exp.Variants {
		path := fmt.Sprintf("experiment.variants[%d]", i)
		if v.ID == "" {
			errs = append(errs, FieldError{
				Field:   path + ".id",
				Message: "variant id is required",
			})
		}
		if v.PolicyID == "" {
			errs = append(errs, FieldError{
				Field:   path + ".policy_id",
				Message: "policy id is required",
			})
		} else if _, ok := cfg.Policies[v.PolicyID]; !ok {
			errs = append(errs, FieldError{
				Field:   path + ".policy_id",
				Message: fmt.Sprintf("references undeclared policy %q", v.PolicyID),
			})
		}
		if !finite(v.Share) || v.Share < 0 || v.Share > 1 {
			errs = append(errs, FieldError{
				Field:   path + ".share",
				Message: fmt.Sprintf("must be a finite value in [0, 1], got %v", v.Share),
			})
		}
	}

	return errs
}

func validateReward(cfg *Config) []FieldError {
	if err := cfg.Reward.Validate(); err != nil {
		return []FieldError{{Field: "reward", Message: err.Error()}}
	}
	return nil
}

func validateStateStore(cfg *StateStoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite", "redis":
	default:
		errs = append(errs, FieldError{
			Field:   "statestore.backend",
			Message: fmt.Sprintf("unknown backend %q (want memory, sqlite, or redis)", cfg.Backend),
		})
	}
	if cfg.CheckpointInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "statestore.checkpoint_interval",
			Message: "checkpoint interval must not be negative",
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.DBPath == "" {
		errs = append(errs, FieldError{
			Field:   "statestore.sqlite.db_path",
			Message: "db path is required for the sqlite backend",
		})
	}
	if cfg.SQLite.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "statestore.sqlite.busy_timeout",
			Message: "busy timeout must not be negative",
		})
	}
	if cfg.Backend == "redis" && cfg.Redis.Addr == "" {
		errs = append(errs, FieldError{
			Field:   "statestore.redis.addr",
			Message: "addr is required for the redis backend",
		})
	}
	if cfg.Redis.DB < 0 {
		errs = append(errs, FieldError{
			Field:   "statestore.redis.db",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Redis.DB),
		})
	}
	if cfg.Redis.TTL < 0 {
		errs = append(errs, FieldError{
			Field:   "statestore.redis.ttl",
			Message: "ttl must not be negative",
		})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("unknown backend %q (want memory or sqlite)", cfg.Backend),
		})
	}
	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{
			Field:   "audit.async_buffer",
			Message: fmt.Sprintf("must be >= 1, got %d", cfg.AsyncBuffer),
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.Memory.MaxRecords < 1 {
		errs = append(errs, FieldError{
			Field:   "audit.memory.max_records",
			Message: fmt.Sprintf("must be >= 1, got %d", cfg.Memory.MaxRecords),
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite.path",
			Message: "path is required for the sqlite backend",
		})
	}
	if cfg.SQLite.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite.busy_timeout",
			Message: "busy timeout must not be negative",
		})
	}
	if cfg.Cache.Size < 1 {
		errs = append(errs, FieldError{
			Field:   "audit.cache.size",
			Message: fmt.Sprintf("must be >= 1, got %d", cfg.Cache.Size),
		})
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.cache.ttl",
			Message: "ttl must not be negative",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Retention.Days),
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.max_records",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Retention.MaxRecords),
		})
	}
	if cfg.Retention.Enabled && cfg.Retention.Schedule == "" {
		errs = append(errs, FieldError{
			Field:   "audit.retention.schedule",
			Message: "schedule is required when retention is enabled",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q (want debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (want json or text)", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: fmt.Sprintf("path must start with /, got %q", cfg.Metrics.Path),
		})
	}
	if !finite(cfg.Tracing.SampleRatio) || cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("must be a finite value in [0, 1], got %v", cfg.Tracing.SampleRatio),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}

	return errs
}

// finite reports whether v is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
