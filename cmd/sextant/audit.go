package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bearing-hq/sextant/pkg/audit"
	"bearing-hq/sextant/pkg/cli"
	"bearing-hq/sextant/pkg/config"
)

var auditFlags struct {
	backend   string
	timeRange string
	requestID string
	tenant    string
	arm       string
	policy    string
	variant   string
	minReward float64
	maxReward float64
	fallback  string
	limit     int
	offset    int
	sortBy    string
	sortOrder string
	format    string
	output    string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the decision audit trail",
	Long: `Query and summarize persisted routing decisions offline.

Only conclusive decisions reach the audit trail: records carry the chosen
arm, the deciding policy and variant, the utility score, and the outcome
that completed them. Timeouts, failures, and voided decisions update policy
learning but are excluded here by design.

Subcommands:
  query  - List decision records with filters
  stats  - Summarize decisions per arm and per policy

Examples:
  # Last day's decisions for one tenant
  sextant audit query --tenant "tenant-1" --time-range "2026-08-28T00:00:00Z/2026-08-29T00:00:00Z"

  # Low-reward decisions, worst first
  sextant audit query --max-reward 0.2 --sort-by reward --sort-order asc

  # Per-arm summary as JSON
  sextant audit stats --format json`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List decision records",
	Long: `List persisted decision records with filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-28T00:00:00Z/2026-08-29T00:00:00Z"

Examples:
  # Decisions served by one arm
  sextant audit query --arm "gpt-4o-mini"

  # Fallback decisions only
  sextant audit query --fallback true

  # Export to JSON file
  sextant audit query --format json --output decisions.json`,
	RunE: runAuditQuery,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	Long: `Summarize persisted decisions: per-arm and per-policy decision counts,
mean reward, mean cost, and fallback rate over the matched records.`,
	RunE: runAuditStats,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditStatsCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditStatsCmd} {
		c.Flags().StringVar(&auditFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
		c.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		c.Flags().StringVar(&auditFlags.tenant, "tenant", "", "filter by tenant ID")
		c.Flags().StringVar(&auditFlags.arm, "arm", "", "filter by arm ID")
		c.Flags().StringVar(&auditFlags.policy, "policy", "", "filter by policy ID")
		c.Flags().StringVar(&auditFlags.variant, "variant", "", "filter by variant ID")
		c.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")
		c.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
	}

	auditQueryCmd.Flags().StringVar(&auditFlags.requestID, "request-id", "", "filter by request ID")
	auditQueryCmd.Flags().Float64Var(&auditFlags.minReward, "min-reward", 0, "minimum reward threshold")
	auditQueryCmd.Flags().Float64Var(&auditFlags.maxReward, "max-reward", 0, "maximum reward threshold")
	auditQueryCmd.Flags().StringVar(&auditFlags.fallback, "fallback", "", "filter by fallback flag (true, false)")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.sortBy, "sort-by", "decided_at", "sort column: decided_at, reward, cost, latency_ms")
	auditQueryCmd.Flags().StringVar(&auditFlags.sortOrder, "sort-order", "desc", "sort order: asc, desc")

	auditStatsCmd.Flags().IntVar(&auditFlags.limit, "limit", 10000, "max records to aggregate")
}

// openAuditStorage opens the audit backend named by the flag or the config.
func openAuditStorage() (audit.Storage, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	backend := auditFlags.backend
	if backend == "" {
		backend = cfg.Audit.Backend
	}

	switch backend {
	case "sqlite", "":
		return audit.NewSQLiteStorage(audit.SQLiteConfig{
			Path:        cfg.Audit.SQLite.Path,
			BusyTimeout: cfg.Audit.SQLite.BusyTimeout,
		})
	case "memory":
		// Valid for symmetry with the daemon, but a fresh process holds
		// no records.
		return audit.NewMemoryStorage(cfg.Audit.Memory.MaxRecords), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", backend)
	}
}

// buildAuditQuery translates the shared flags into a storage query.
func buildAuditQuery() (*audit.Query, error) {
	q := &audit.Query{
		RequestID: auditFlags.requestID,
		TenantID:  auditFlags.tenant,
		ArmID:     auditFlags.arm,
		PolicyID:  auditFlags.policy,
		VariantID: auditFlags.variant,
		Limit:     auditFlags.limit,
		Offset:    auditFlags.offset,
		SortBy:    auditFlags.sortBy,
		SortOrder: auditFlags.sortOrder,
	}

	if auditFlags.timeRange != "" {
		parts := strings.Split(auditFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}
		start, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		end, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		q.StartTime = &start
		q.EndTime = &end
	}

	if auditFlags.minReward != 0 {
		v := auditFlags.minReward
		q.MinReward = &v
	}
	if auditFlags.maxReward != 0 {
		v := auditFlags.maxReward
		q.MaxReward = &v
	}
	if auditFlags.fallback != "" {
		fb, err := strconv.ParseBool(auditFlags.fallback)
		if err != nil {
			return nil, fmt.Errorf("invalid fallback filter %q: %w", auditFlags.fallback, err)
		}
		q.Fallback = &fb
	}

	return q, nil
}

// outputWriter resolves the --output flag. The caller closes the returned
// closer.
func outputWriter() (*os.File, func(), error) {
	if auditFlags.output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(auditFlags.output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	store, err := openAuditStorage()
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	defer store.Close()

	query, err := buildAuditQuery()
	if err != nil {
		return err
	}

	records, err := store.Query(context.Background(), query)
	if err != nil {
		return cli.NewCommandError("audit query", fmt.Errorf("query failed: %w", err))
	}

	w, closeFn, err := outputWriter()
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	defer closeFn()

	if cli.OutputFormat(auditFlags.format) == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No audit records found.")
		return nil
	}

	headers := []string{"DECIDED AT", "REQUEST", "TENANT", "ARM", "POLICY", "VARIANT", "REWARD", "COST", "LATENCY MS", "FLAGS"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		var flags []string
		if rec.Fallback {
			flags = append(flags, "fallback")
		}
		if rec.Explored {
			flags = append(flags, "explored")
		}
		rows = append(rows, []string{
			rec.DecidedAt.UTC().Format(time.RFC3339),
			rec.RequestID,
			rec.TenantID,
			rec.ArmID,
			rec.PolicyID,
			rec.VariantID,
			fmt.Sprintf("%.4f", rec.Reward),
			fmt.Sprintf("%.4f", rec.Cost),
			fmt.Sprintf("%.0f", rec.LatencyMS),
			strings.Join(flags, ","),
		})
	}
	if err := cli.Table(w, headers, rows); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d record(s)\n", len(records))
	return nil
}

// armStats aggregates matched records along one dimension.
type armStats struct {
	Key          string  `json:"key"`
	Decisions    int     `json:"decisions"`
	MeanReward   float64 `json:"mean_reward"`
	MeanCost     float64 `json:"mean_cost"`
	FallbackRate float64 `json:"fallback_rate"`
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	store, err := openAuditStorage()
	if err != nil {
		return cli.NewCommandError("audit stats", err)
	}
	defer store.Close()

	query, err := buildAuditQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	total, err := store.Count(ctx, query)
	if err != nil {
		return cli.NewCommandError("audit stats", fmt.Errorf("count failed: %w", err))
	}

	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("audit stats", fmt.Errorf("query failed: %w", err))
	}

	byArm := aggregate(records, func(r *audit.Record) string { return r.ArmID })
	byPolicy := aggregate(records, func(r *audit.Record) string { return r.PolicyID })

	w, closeFn, err := outputWriter()
	if err != nil {
		return cli.NewCommandError("audit stats", err)
	}
	defer closeFn()

	if cli.OutputFormat(auditFlags.format) == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, map[string]any{
			"total_records": total,
			"aggregated":    len(records),
			"by_arm":        byArm,
			"by_policy":     byPolicy,
		})
	}

	fmt.Fprintf(w, "Total records: %d (aggregating %d)\n\n", total, len(records))

	fmt.Fprintln(w, "By arm:")
	if err := statsTable(w, byArm); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nBy policy:")
	return statsTable(w, byPolicy)
}

func statsTable(w *os.File, stats []armStats) error {
	headers := []string{"KEY", "DECISIONS", "MEAN REWARD", "MEAN COST", "FALLBACK RATE"}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Key,
			strconv.Itoa(s.Decisions),
			fmt.Sprintf("%.4f", s.MeanReward),
			fmt.Sprintf("%.4f", s.MeanCost),
			fmt.Sprintf("%.1f%%", s.FallbackRate*100),
		})
	}
	return cli.Table(w, headers, rows)
}

// aggregate groups records by key and computes per-group means in one pass.
func aggregate(records []*audit.Record, key func(*audit.Record) string) []armStats {
	type acc struct {
		n         int
		reward    float64
		cost      float64
		fallbacks int
	}

	groups := make(map[string]*acc)
	for _, rec := range records {
		k := key(rec)
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
		}
		g.n++
		g.reward += rec.Reward
		g.cost += rec.Cost
		if rec.Fallback {
			g.fallbacks++
		}
	}

	out := make([]armStats, 0, len(groups))
	for k, g := range groups {
		out = append(out, armStats{
			Key:          k,
			Decisions:    g.n,
			MeanReward:   g.reward / float64(g.n),
			MeanCost:     g.cost / float64(g.n),
			FallbackRate: float64(g.fallbacks) / float64(g.n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Decisions > out[j].Decisions })
	return out
}
