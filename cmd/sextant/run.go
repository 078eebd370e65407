package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/audit"
	"bearing-hq/sextant/pkg/cli"
	"bearing-hq/sextant/pkg/config"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/routing"
	"bearing-hq/sextant/pkg/server"
	"bearing-hq/sextant/pkg/statestore"
	"bearing-hq/sextant/pkg/telemetry/health"
	"bearing-hq/sextant/pkg/telemetry/logging"
	"bearing-hq/sextant/pkg/telemetry/metrics"
	"bearing-hq/sextant/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Sextant routing daemon",
	Long: `Start the Sextant routing daemon with the specified configuration.

The daemon serves the routing API on the configured address: callers POST
request metadata to /v1/route, dispatch to the chosen arm themselves, and
report what happened to /v1/outcome. Policies learn from every outcome;
shadow variants are scored without being dispatched; variants that regress
quality, latency, or cost are rolled back automatically.

Examples:
  # Start with default config
  sextant run

  # Start with custom config
  sextant run --config /etc/sextant/config.yaml

  # Override listen address
  sextant run --listen 0.0.0.0:8700

  # Validate config without starting the daemon
  sextant run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	// Arm catalog
	catalog, err := arms.NewCatalog(catalogArms(cfg.Catalog))
	if err != nil {
		return cli.NewConfigError("catalog", err.Error())
	}
	fmt.Printf("✓ Arm catalog loaded (%d arms)\n", len(catalog.Current().Active()))

	// Reward engine
	rewardEngine, err := reward.NewEngine(cfg.Reward)
	if err != nil {
		return cli.NewConfigError("reward", err.Error())
	}

	// Experiment harness
	harness, err := experiment.NewHarness(cfg.Experiment)
	if err != nil {
		return cli.NewConfigError("experiment", err.Error())
	}
	harness.Start()
	defer harness.Stop()

	// Routing engine
	engine, err := routing.NewEngine(cfg.Router, catalog, policySpecs(cfg.Policies), harness, rewardEngine)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to build routing engine: %w", err))
	}
	defer engine.Close()
	fmt.Printf("✓ Routing engine initialized (%d policies, %d variants)\n",
		len(engine.PolicyIDs()), len(harness.Variants()))

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.DefaultConfig(), nil)
		engine.SetMetrics(collector)
	}

	// Incidents: the harness logs them itself; the sink keeps the metric
	// surfaces current.
	harness.OnIncident(func(inc experiment.Incident) {
		if collector == nil {
			return
		}
		collector.RecordRollback(inc.VariantID, inc.Metric)
		collector.RecordIncident(inc.Metric)
		collector.UpdateVariantEnabled(inc.VariantID, false)
	})

	// State store + warm start. An unreachable backend degrades to
	// in-memory operation: policies learn but checkpoints do not survive
	// a restart.
	store, err := newStateStore(cfg.StateStore)
	if err != nil {
		slog.Warn("state store unavailable, degrading to in-memory checkpoints",
			"backend", cfg.StateStore.Backend,
			"error", err,
		)
		store = statestore.NewMemoryStore()
	}
	defer store.Close()

	engine.WarmStart(cmd.Context(), store)

	checkpointer := statestore.NewCheckpointer(store, engine, cfg.StateStore.CheckpointInterval)
	if collector != nil {
		checkpointer.SetMetrics(collector)
	}
	checkpointer.Start()
	defer checkpointer.Stop(context.Background())
	fmt.Printf("✓ State store ready (backend: %s)\n", cfg.StateStore.Backend)

	// Audit trail
	var auditRecorder *audit.Recorder
	if cfg.Audit.Enabled {
		auditStorage, err := newAuditStorage(cfg.Audit)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open audit storage: %w", err))
		}
		defer auditStorage.Close()

		auditRecorder, err = audit.NewRecorder(auditStorage, audit.RecorderConfig{
			AsyncBuffer:  cfg.Audit.AsyncBuffer,
			WriteTimeout: cfg.Audit.WriteTimeout,
			CacheSize:    cfg.Audit.Cache.Size,
			CacheTTL:     cfg.Audit.Cache.TTL,
		})
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to build audit recorder: %w", err))
		}
		defer auditRecorder.Close()
		engine.SetAuditSink(auditRecorder)

		if cfg.Audit.Retention.Enabled {
			pruner, err := audit.NewPruner(auditStorage, audit.RetentionConfig{
				Days:       cfg.Audit.Retention.Days,
				MaxRecords: cfg.Audit.Retention.MaxRecords,
				Schedule:   cfg.Audit.Retention.Schedule,
			})
			if err != nil {
				return cli.NewConfigError("audit.retention", err.Error())
			}
			if err := pruner.Start(cmd.Context()); err != nil {
				slog.Warn("failed to start audit retention scheduler", "error", err)
			} else {
				defer pruner.Stop()
				slog.Debug("audit retention scheduler started", "next_run", pruner.NextRun())
			}
		}

		fmt.Printf("✓ Audit trail initialized (backend: %s)\n", cfg.Audit.Backend)
	}

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		tracer, err := tracing.New(tracing.Config{
			Enabled:        true,
			ServiceName:    "sextant",
			ServiceVersion: Version,
			Endpoint:       cfg.Telemetry.Tracing.Endpoint,
			SampleRatio:    cfg.Telemetry.Tracing.SampleRatio,
			Insecure:       cfg.Telemetry.Tracing.Insecure,
		})
		if err != nil {
			slog.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracer.Shutdown(context.Background())
			fmt.Printf("✓ Tracing enabled (endpoint: %s)\n", cfg.Telemetry.Tracing.Endpoint)
		}
	}

	// Health checks: readiness means the catalog can serve and the state
	// store answers.
	checker := health.New(0)
	checker.RegisterCheck("catalog", func(ctx context.Context) error {
		if len(catalog.Current().Active()) == 0 {
			return fmt.Errorf("no active arms")
		}
		return nil
	})
	checker.RegisterCheck("statestore", func(ctx context.Context) error {
		_, err := store.Load(ctx, "readiness-probe")
		return err
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Config hot reload: tenant tunables, per-policy exploration rates,
	// and arm pricing apply without a restart; everything else waits for
	// one.
	watcher, err := config.NewWatcher(cfgFile, time.Second)
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "error", err)
	} else {
		go func() {
			if err := watcher.Watch(ctx, func(newCfg *config.Config) {
				applyReload(engine, catalog, newCfg)
			}); err != nil {
				slog.Warn("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	srv := server.NewServer(cfg, server.Dependencies{
		Engine:    engine,
		Catalog:   catalog,
		Harness:   harness,
		Audit:     auditRecorder,
		Checker:   checker,
		Metrics:   collector,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})

	fmt.Println()
	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Routing endpoint: http://%s/v1/route\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a signal, context cancellation, or listener
	// error, and drains in-flight requests before returning.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Daemon stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Sextant v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("configuration summary",
		"policies", len(cfg.Policies),
		"arms", len(cfg.Catalog.Arms),
		"variants", len(cfg.Experiment.Variants),
		"statestore_backend", cfg.StateStore.Backend,
		"audit_enabled", cfg.Audit.Enabled,
	)
}

// catalogArms converts the declared arm configs into catalog arms.
func catalogArms(cfg config.CatalogConfig) []arms.Arm {
	out := make([]arms.Arm, 0, len(cfg.Arms))
	for _, a := range cfg.Arms {
		out = append(out, arms.Arm{
			ID:             a.ID,
			CapabilityTags: a.CapabilityTags,
			Pricing: arms.Pricing{
				Base:    a.Pricing.Base,
				PerUnit: a.Pricing.PerUnit,
			},
		})
	}
	return out
}

// pricingTable builds the hot-reloadable pricing view of the catalog
// config.
func pricingTable(cfg config.CatalogConfig) *arms.PricingTable {
	entries := make(map[string]arms.Pricing, len(cfg.Arms))
	for _, a := range cfg.Arms {
		entries[a.ID] = arms.Pricing{Base: a.Pricing.Base, PerUnit: a.Pricing.PerUnit}
	}
	def := arms.Pricing{Base: cfg.DefaultPricing.Base, PerUnit: cfg.DefaultPricing.PerUnit}
	return arms.NewPricingTable(entries, def)
}

// policySpecs converts declared policy configs into engine policy specs.
func policySpecs(policies map[string]config.PolicyConfig) map[string]routing.PolicySpec {
	specs := make(map[string]routing.PolicySpec, len(policies))
	for id, pc := range policies {
		specs[id] = routing.PolicySpec{Type: pc.PolicyType, Config: pc.Params}
	}
	return specs
}

// applyReload applies the safe-to-reload subset of a fresh config to the
// running components: per-tenant utility tunables, per-policy exploration
// rates, and arm pricing. Structural changes (policies, variants, backends)
// require a restart.
func applyReload(engine *routing.Engine, catalog *arms.Catalog, cfg *config.Config) {
	engine.UpdateTunables(cfg.Router.Tunables)

	for id, pc := range cfg.Policies {
		if pc.Params.Epsilon > 0 {
			engine.UpdateEpsilon(id, pc.Params.Epsilon)
		}
	}

	snap := catalog.Reprice(pricingTable(cfg.Catalog))
	slog.Info("applied configuration reload",
		"catalog_version", snap.Version,
		"tenant_overrides", len(cfg.Router.Tunables.Tenants),
	)
}

// newStateStore opens the configured checkpoint backend.
func newStateStore(cfg config.StateStoreConfig) (statestore.Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return statestore.NewMemoryStore(), nil
	case "sqlite":
		return statestore.NewSQLiteStore(cfg.SQLite)
	case "redis":
		return statestore.NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported state store backend: %s", cfg.Backend)
	}
}

// newAuditStorage opens the configured audit backend.
func newAuditStorage(cfg config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return audit.NewMemoryStorage(cfg.Memory.MaxRecords), nil
	case "sqlite", "":
		return audit.NewSQLiteStorage(audit.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Backend)
	}
}
