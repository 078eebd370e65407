package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig controls periodic pruning of persisted audit records.
type RetentionConfig struct {
	// Days is the age-based cutoff; records whose decision is older are
	// pruned. Zero disables age-based pruning.
	// Default: 90
	Days int

	// MaxRecords is the count-based cap; the oldest records beyond it
	// are pruned. Zero disables count-based pruning.
	// Default: 0 (disabled)
	MaxRecords int64

	// Schedule is a standard five-field cron expression for when
	// pruning runs.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string
}

// DefaultRetentionConfig returns the documented defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Days:       90,
		MaxRecords: 0,
		Schedule:   "0 3 * * *",
	}
}

// Pruner enforces the retention policy against an audit storage backend,
// either on demand through Prune or periodically through Start.
type Pruner struct {
	storage Storage
	cfg     RetentionConfig
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewPruner creates a pruner for the given storage. A non-empty schedule
// is validated up front so misconfiguration surfaces at startup.
func NewPruner(storage Storage, cfg RetentionConfig) (*Pruner, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if cfg.Days < 0 {
		return nil, fmt.Errorf("retention days cannot be negative, got %d", cfg.Days)
	}
	if cfg.MaxRecords < 0 {
		return nil, fmt.Errorf("max records cannot be negative, got %d", cfg.MaxRecords)
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return nil, NewRetentionError(cfg.Days,
				fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err))
		}
	}

	return &Pruner{
		storage: storage,
		cfg:     cfg,
		logger:  slog.Default().With("component", "audit.retention"),
	}, nil
}

// Prune enforces the retention policy once: first the age cutoff, then the
// count cap. It returns the total number of records removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.cfg.Days > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	if p.cfg.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	return total, nil
}

// Start schedules Prune on the configured cron expression. The pruner
// stops when ctx is canceled or Stop is called.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("retention pruner already running")
	}
	if p.cfg.Schedule == "" {
		return fmt.Errorf("retention schedule cannot be empty")
	}

	p.cron = cron.New()
	entryID, err := p.cron.AddFunc(p.cfg.Schedule, func() {
		p.run(ctx)
	})
	if err != nil {
		return NewRetentionError(p.cfg.Days,
			fmt.Errorf("invalid schedule %q: %w", p.cfg.Schedule, err))
	}
	p.entryID = entryID
	p.cron.Start()
	p.running = true

	p.logger.Info("retention pruner started",
		"schedule", p.cfg.Schedule,
		"retention_days", p.cfg.Days,
		"max_records", p.cfg.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop halts the schedule and waits for a running prune to finish. It is
// safe to call more than once.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.running = false

	p.logger.Info("retention pruner stopped")
}

// IsRunning reports whether the schedule is active.
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns when the next scheduled prune fires, zero when the
// pruner is not running.
func (p *Pruner) NextRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return time.Time{}
	}
	return p.cron.Entry(p.entryID).Next
}

func (p *Pruner) run(ctx context.Context) {
	deleted, err := p.Prune(ctx)
	if err != nil {
		p.logger.Error("scheduled prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("scheduled prune finished", "deleted", deleted)
	}
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.cfg.Days)

	deleted, err := p.storage.Delete(ctx, &Query{EndTime: &cutoff})
	if err != nil {
		return 0, NewRetentionError(p.cfg.Days, err)
	}
	if deleted > 0 {
		p.logger.Info("pruned audit records by age",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &Query{})
	if err != nil {
		return 0, NewRetentionError(p.cfg.Days, err)
	}

	excess := count - p.cfg.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	oldest, err := p.storage.Query(ctx, &Query{
		SortBy:    "decided_at",
		SortOrder: "asc",
		Limit:     int(excess),
	})
	if err != nil {
		return 0, NewRetentionError(p.cfg.Days, err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	// Records sharing the cutoff timestamp go together.
	cutoff := oldest[len(oldest)-1].DecidedAt

	deleted, err := p.storage.Delete(ctx, &Query{EndTime: &cutoff})
	if err != nil {
		return 0, NewRetentionError(p.cfg.Days, err)
	}
	if deleted > 0 {
		p.logger.Info("pruned audit records by count",
			"deleted", deleted,
			"max_records", p.cfg.MaxRecords,
		)
	}
	return deleted, nil
}
