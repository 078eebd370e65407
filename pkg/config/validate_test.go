package config

import (
	"math"
	"strings"
	"testing"
	"time"

	"bearing-hq/sextant/pkg/bandit"
	"bearing-hq/sextant/pkg/routing"
)

// validConfig returns a configuration that passes validation: defaults plus
// the one section that has no default, the arm catalog.
func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Catalog.Arms = []ArmConfig{
		{
			ID:             "econ-small",
			CapabilityTags: []string{"text"},
			Pricing:        PricingConfig{Base: 0.001, PerUnit: 0.0001},
		},
	}
	ApplyDefaults(&cfg)
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidateFieldViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "missing listen address",
			mutate: func(c *Config) { c.Server.ListenAddress = "" },
			field:  "server.listen_address",
		},
		{
			name:   "negative read timeout",
			mutate: func(c *Config) { c.Server.ReadTimeout = -time.Second },
			field:  "server.read_timeout",
		},
		{
			name:   "negative shutdown timeout",
			mutate: func(c *Config) { c.Server.ShutdownTimeout = -1 },
			field:  "server.shutdown_timeout",
		},
		{
			name:   "negative cors max age",
			mutate: func(c *Config) { c.Server.CORS.MaxAge = -1 },
			field:  "server.cors.max_age",
		},
		{
			name: "rate limit enabled with nan rps",
			mutate: func(c *Config) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.RequestsPerSecond = math.NaN()
			},
			field: "server.rate_limit.requests_per_second",
		},
		{
			name: "rate limit enabled with zero burst",
			mutate: func(c *Config) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.Burst = 0
			},
			field: "server.rate_limit.burst",
		},
		{
			name:   "negative outcome timeout",
			mutate: func(c *Config) { c.Router.OutcomeTimeout = -time.Second },
			field:  "router.outcome_timeout",
		},
		{
			name:   "negative max pending",
			mutate: func(c *Config) { c.Router.MaxPending = -1 },
			field:  "router.max_pending",
		},
		{
			name: "nan default quality floor",
			mutate: func(c *Config) {
				c.Router.Tunables.Default.QualityFloor = math.NaN()
			},
			field: "router.tunables.default.quality_floor",
		},
		{
			name: "negative tenant alpha",
			mutate: func(c *Config) {
				c.Router.Tunables.Tenants = map[string]routing.TenantTunables{
					"acme": {Alpha: -1, CostWeight: 0.1, QualityFloor: 0.2},
				}
			},
			field: "router.tunables.tenants.acme.alpha",
		},
		{
			name: "empty tenant id",
			mutate: func(c *Config) {
				c.Router.Tunables.Tenants = map[string]routing.TenantTunables{
					"": {Alpha: 1},
				}
			},
			field: "router.tunables.tenants",
		},
		{
			name:   "no policies",
			mutate: func(c *Config) { c.Policies = nil },
			field:  "policies",
		},
		{
			name: "unknown policy type",
			mutate: func(c *Config) {
				c.Policies["default"] = PolicyConfig{PolicyType: "greedy"}
			},
			field: "policies.default.policy_type",
		},
		{
			name: "out of range policy params",
			mutate: func(c *Config) {
				c.Policies["default"] = PolicyConfig{
					PolicyType: "epsilon_greedy",
					Params:     bandit.Config{Epsilon: 5},
				}
			},
			field: "policies.default.params",
		},
		{
			name:   "empty catalog",
			mutate: func(c *Config) { c.Catalog.Arms = nil },
			field:  "catalog.arms",
		},
		{
			name: "arm without id",
			mutate: func(c *Config) {
				c.Catalog.Arms[0].ID = ""
			},
			field: "catalog.arms[0].id",
		},
		{
			name: "duplicate arm ids",
			mutate: func(c *Config) {
				c.Catalog.Arms = append(c.Catalog.Arms, c.Catalog.Arms[0])
			},
			field: "catalog.arms[1].id",
		},
		{
			name: "negative arm base price",
			mutate: func(c *Config) {
				c.Catalog.Arms[0].Pricing.Base = -0.01
			},
			field: "catalog.arms[0].pricing.base",
		},
		{
			name: "nan default pricing",
			mutate: func(c *Config) {
				c.Catalog.DefaultPricing.PerUnit = math.Inf(1)
			},
			field: "catalog.default_pricing.per_unit",
		},
		{
			name:   "zero bucket count",
			mutate: func(c *Config) { c.Experiment.BucketCount = 0 },
			field:  "experiment.bucket_count",
		},
		{
			name:   "zero window duration",
			mutate: func(c *Config) { c.Experiment.WindowDuration = 0 },
			field:  "experiment.window_duration",
		},
		{
			name:   "zero consecutive windows",
			mutate: func(c *Config) { c.Experiment.ConsecutiveWindows = 0 },
			field:  "experiment.consecutive_windows",
		},
		{
			name: "nan rollback threshold",
			mutate: func(c *Config) {
				c.Experiment.Thresholds.QualityDelta = math.NaN()
			},
			field: "experiment.rollback_thresholds.quality_delta",
		},
		{
			name: "variant references undeclared policy",
			mutate: func(c *Config) {
				c.Experiment.Variants[0].PolicyID = "ghost"
			},
			field: "experiment.variants[0].policy_id",
		},
		{
			name: "variant share above one",
			mutate: func(c *Config) {
				c.Experiment.Variants[0].Share = 1.5
			},
			field: "experiment.variants[0].share",
		},
		{
			name:   "nan reward weight",
			mutate: func(c *Config) { c.Reward.QualityWeight = math.NaN() },
			field:  "reward",
		},
		{
			name:   "unknown state store backend",
			mutate: func(c *Config) { c.StateStore.Backend = "etcd" },
			field:  "statestore.backend",
		},
		{
			name: "sqlite state store without path",
			mutate: func(c *Config) {
				c.StateStore.Backend = "sqlite"
				c.StateStore.SQLite.DBPath = ""
			},
			field: "statestore.sqlite.db_path",
		},
		{
			name: "redis state store without addr",
			mutate: func(c *Config) {
				c.StateStore.Backend = "redis"
				c.StateStore.Redis.Addr = ""
			},
			field: "statestore.redis.addr",
		},
		{
			name:   "negative redis db",
			mutate: func(c *Config) { c.StateStore.Redis.DB = -1 },
			field:  "statestore.redis.db",
		},
		{
			name:   "unknown audit backend",
			mutate: func(c *Config) { c.Audit.Backend = "postgres" },
			field:  "audit.backend",
		},
		{
			name:   "zero audit buffer",
			mutate: func(c *Config) { c.Audit.AsyncBuffer = 0 },
			field:  "audit.async_buffer",
		},
		{
			name: "sqlite audit without path",
			mutate: func(c *Config) {
				c.Audit.Backend = "sqlite"
				c.Audit.SQLite.Path = ""
			},
			field: "audit.sqlite.path",
		},
		{
			name:   "zero audit cache size",
			mutate: func(c *Config) { c.Audit.Cache.Size = 0 },
			field:  "audit.cache.size",
		},
		{
			name: "retention enabled without schedule",
			mutate: func(c *Config) {
				c.Audit.Retention.Enabled = true
				c.Audit.Retention.Schedule = ""
			},
			field: "audit.retention.schedule",
		},
		{
			name:   "unknown logging level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "unknown logging format",
			mutate: func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			field:  "telemetry.logging.format",
		},
		{
			name: "metrics path without leading slash",
			mutate: func(c *Config) {
				c.Telemetry.Metrics.Path = "metrics"
			},
			field: "telemetry.metrics.path",
		},
		{
			name: "sample ratio above one",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.SampleRatio = 1.5
			},
			field: "telemetry.tracing.sample_ratio",
		},
		{
			name: "tracing enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Endpoint = ""
			},
			field: "telemetry.tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(&cfg)
			if err == nil {
				t.Fatalf("Validate() error = nil, want violation at %q", tt.field)
			}
			verr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Validate() errors = %v, want one at %q", verr.Errors, tt.field)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.StateStore.Backend = "etcd"
	cfg.Telemetry.Logging.Level = "verbose"

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want three violations")
	}
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Validate() error type = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("len(Errors) = %d, want 3: %v", len(verr.Errors), verr.Errors)
	}
}

func TestValidationErrorFormatting(t *testing.T) {
	single := ValidationError{Errors: []FieldError{
		{Field: "server.listen_address", Message: "listen address is required"},
	}}
	if got := single.Error(); got != "configuration validation failed: server.listen_address: listen address is required" {
		t.Errorf("single error = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") {
		t.Errorf("multi error = %q, want count in message", got)
	}
	if !strings.Contains(got, "  - a: first") || !strings.Contains(got, "  - b: second") {
		t.Errorf("multi error = %q, want bulleted fields", got)
	}
}

func TestFieldErrorMessage(t *testing.T) {
	fe := FieldError{Field: "audit.backend", Message: `unknown backend "postgres"`}
	if got := fe.Error(); got != `audit.backend: unknown backend "postgres"` {
		t.Errorf("FieldError.Error() = %q", got)
	}
}
