// Package config provides configuration management for the sextant routing
// daemon.
//
// Configuration is loaded from YAML with environment variable overrides.
// Domain tunables (router, experiment, reward, state store backends) are
// typed by the packages that consume them, so the file schema is the
// runtime schema.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadFromFile("sextant.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadFromFileWithEnvOverrides("sextant.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SEXTANT_SECTION_FIELD.
// For example:
//
//   - SEXTANT_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SEXTANT_STATESTORE_REDIS_PASSWORD overrides statestore.redis.password
//   - SEXTANT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file values.
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Default values (DefaultConfig, defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton:
//
//	// At application startup
//	if err := config.Initialize("sextant.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//	fmt.Println(cfg.Server.ListenAddress)
//
// For testing, prefer dependency injection with explicit Config instances
// over the global singleton.
//
// # Hot Reload
//
// A Watcher observes the configuration file and reloads it on change,
// debounced against save storms. Reloads that fail validation are discarded.
// Consumers apply the safe-to-reload subset from the fresh Config: tenant
// utility tunables (alpha, cost_weight, quality_floor), exploration epsilon,
// and arm pricing. Everything else requires a restart.
//
// # Validation
//
// All configuration is validated during loading: enum fields (backends,
// policy types, log levels) must hold known values, numeric tunables must
// be finite and in range, and required fields must be present. Errors
// include dotted field paths:
//
//	configuration validation failed with 2 errors:
//	  - policies.default.policy_type: unknown policy type "greedy"
//	  - router.tunables.default.quality_floor: must be a finite value in [0, 1], got 1.5
//
// # Example Configuration
//
// A minimal configuration file:
//
//	catalog:
//	  arms:
//	    - id: "econ-small"
//	      capability_tags: ["text"]
//	      pricing: {base: 0.0004, per_unit: 0.0001}
//	    - id: "flagship-large"
//	      capability_tags: ["text", "code"]
//	      pricing: {base: 0.005, per_unit: 0.0012}
//
//	policies:
//	  default:
//	    policy_type: "ucb1"
//
//	router:
//	  tunables:
//	    default: {alpha: 1.0, cost_weight: 0.5, quality_floor: 0.3}
//
//	statestore:
//	  backend: "sqlite"
//	  sqlite: {db_path: "data/checkpoints.db"}
//
// # Thread Safety
//
// Singleton access uses a read-write lock so concurrent reads proceed while
// reloads swap the instance.
package config
