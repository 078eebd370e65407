package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file at the specified path.
// The file is unmarshalled over DefaultConfig, remaining zero fields take
// their defaults, and the result is validated. Environment variables are
// not consulted; use LoadFromFileWithEnvOverrides for that.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromFileWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention SEXTANT_SECTION_FIELD (e.g., SEXTANT_SERVER_LISTEN_ADDRESS)
// and always take precedence over file values.
//
// The loading sequence is:
//  1. Defaults (DefaultConfig)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
func LoadFromFileWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Unparseable
// values are ignored; the file value stands.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("SEXTANT_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("SEXTANT_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("SEXTANT_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("SEXTANT_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("SEXTANT_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("SEXTANT_SERVER_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}
	if val := os.Getenv("SEXTANT_SERVER_MAX_HEADER_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxHeaderBytes = i
		}
	}

	// Router overrides
	if val := os.Getenv("SEXTANT_ROUTER_OUTCOME_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Router.OutcomeTimeout = d
		}
	}
	if val := os.Getenv("SEXTANT_ROUTER_MAX_PENDING"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Router.MaxPending = i
		}
	}

	// Experiment overrides
	if val := os.Getenv("SEXTANT_EXPERIMENT_SALT"); val != "" {
		cfg.Experiment.Salt = val
	}
	if val := os.Getenv("SEXTANT_EXPERIMENT_BUCKET_COUNT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Experiment.BucketCount = i
		}
	}

	// State store overrides
	if val := os.Getenv("SEXTANT_STATESTORE_BACKEND"); val != "" {
		cfg.StateStore.Backend = val
	}
	if val := os.Getenv("SEXTANT_STATESTORE_CHECKPOINT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.StateStore.CheckpointInterval = d
		}
	}
	if val := os.Getenv("SEXTANT_STATESTORE_SQLITE_DB_PATH"); val != "" {
		cfg.StateStore.SQLite.DBPath = val
	}
	if val := os.Getenv("SEXTANT_STATESTORE_REDIS_ADDR"); val != "" {
		cfg.StateStore.Redis.Addr = val
	}
	if val := os.Getenv("SEXTANT_STATESTORE_REDIS_PASSWORD"); val != "" {
		cfg.StateStore.Redis.Password = val
	}
	if val := os.Getenv("SEXTANT_STATESTORE_REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.StateStore.Redis.DB = i
		}
	}

	// Audit overrides
	if val := os.Getenv("SEXTANT_AUDIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if val := os.Getenv("SEXTANT_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("SEXTANT_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}

	// Telemetry overrides
	if val := os.Getenv("SEXTANT_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("SEXTANT_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("SEXTANT_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("SEXTANT_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
	if val := os.Getenv("SEXTANT_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("SEXTANT_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("SEXTANT_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}
