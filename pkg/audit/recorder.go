package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bearing-hq/sextant/pkg/routing"
)

// RecorderConfig tunes the async recording pipeline.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel. When the
	// channel is full, completed records are dropped and counted rather
	// than blocking the outcome path.
	// Default: 1024
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// CacheSize bounds the recent-decision cache.
	// Default: 1024
	CacheSize int

	// CacheTTL expires recent-decision entries.
	// Default: 5 minutes
	CacheTTL time.Duration
}

// DefaultRecorderConfig returns the documented defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		AsyncBuffer:  1024,
		WriteTimeout: 5 * time.Second,
		CacheSize:    1024,
		CacheTTL:     5 * time.Minute,
	}
}

// RecorderStats is a point-in-time snapshot of the recording pipeline.
type RecorderStats struct {
	// Pending is the number of decisions still awaiting their outcome.
	Pending int `json:"pending"`

	// QueueDepth is the number of completed records waiting for the
	// storage worker.
	QueueDepth int `json:"queue_depth"`

	// Dropped counts records lost to a full write channel.
	Dropped int64 `json:"dropped"`

	// Excluded counts completions kept out of storage on purpose:
	// timeouts, failures, and voided decisions.
	Excluded int64 `json:"excluded"`

	// Cache reports recent-decision cache effectiveness.
	Cache CacheStats `json:"cache"`
}

// Recorder joins routing decisions with their outcomes and persists the
// conclusive pairs asynchronously. It implements the engine's audit sink:
// both record methods return immediately and never block the request path.
type Recorder struct {
	storage Storage
	cfg     RecorderConfig
	cache   *RecentCache

	recordCh chan *Record
	done     chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger

	// pending holds the decision half of each record until its outcome
	// arrives, keyed by request ID.
	pending sync.Map

	dropped  atomic.Int64
	excluded atomic.Int64
}

// NewRecorder creates a recorder writing to the given storage backend and
// starts its background worker. Zero config fields take their defaults.
func NewRecorder(storage Storage, cfg RecorderConfig) (*Recorder, error) {
	def := DefaultRecorderConfig()
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = def.AsyncBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	cache, err := NewRecentCache(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		storage:  storage,
		cfg:      cfg,
		cache:    cache,
		recordCh: make(chan *Record, cfg.AsyncBuffer),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "audit.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder started",
		"async_buffer", cfg.AsyncBuffer,
		"write_timeout", cfg.WriteTimeout,
		"cache_size", cfg.CacheSize,
	)

	return r, nil
}

// RecordDecision opens an audit record for a dispatched decision. The
// record stays pending until RecordCompletion joins the outcome.
func (r *Recorder) RecordDecision(dec routing.Decision) {
	rec := &Record{
		ID:             uuid.New().String(),
		RequestID:      dec.RequestID,
		TenantID:       dec.TenantID,
		ArmID:          dec.ArmID,
		PolicyID:       dec.PolicyID,
		VariantID:      dec.VariantID,
		Utility:        dec.Utility,
		Confidence:     dec.Confidence,
		Explored:       dec.Explored,
		Fallback:       dec.Fallback,
		CatalogVersion: dec.CatalogVersion,
		State:          string(routing.StateAwaitingOutcome),
		DecidedAt:      dec.CreatedAt,
	}

	// First decision wins: a duplicate request ID must not clobber the
	// record of the decision already awaiting its outcome.
	if _, loaded := r.pending.LoadOrStore(dec.RequestID, rec); loaded {
		r.logger.Warn("duplicate decision for pending audit record ignored",
			"request_id", dec.RequestID,
		)
		return
	}
	r.cache.Add(rec.clone())

	r.logger.Debug("audit record opened",
		"record_id", rec.ID,
		"request_id", rec.RequestID,
		"arm_id", rec.ArmID,
	)
}

// RecordCompletion joins an outcome with its pending decision. Conclusive
// completions are enqueued for persistence; timeouts, failures, and voided
// decisions only update the recent-decision cache.
func (r *Recorder) RecordCompletion(c routing.RewardRecord) {
	value, ok := r.pending.LoadAndDelete(c.RequestID)
	if !ok {
		r.logger.Warn("completion without a pending audit record",
			"request_id", c.RequestID,
		)
		return
	}
	rec := value.(*Record)

	rec.Reward = c.Reward
	rec.Quality = c.Quality
	rec.LatencyMS = c.LatencyMS
	rec.Cost = c.Cost
	rec.Success = c.Success
	rec.State = string(c.State)
	rec.CompletedAt = c.CompletedAt
	rec.RecordedAt = time.Now().UTC()

	if c.State == routing.StateVoided {
		// Voided decisions never dispatched; they leave no trace.
		r.cache.Remove(c.RequestID)
		r.excluded.Add(1)
		return
	}

	r.cache.Add(rec.clone())

	if c.Inconclusive {
		r.excluded.Add(1)
		r.logger.Debug("inconclusive completion excluded from audit storage",
			"request_id", c.RequestID,
			"state", rec.State,
		)
		return
	}

	select {
	case r.recordCh <- rec:
		r.logger.Debug("audit record enqueued",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
		)
	default:
		r.dropped.Add(1)
		r.logger.Error("audit channel full, dropping record",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"channel_capacity", r.cfg.AsyncBuffer,
		)
	}
}

// Lookup returns the cached record for a request, decision-only while the
// outcome is pending. It never touches storage.
func (r *Recorder) Lookup(requestID string) (*Record, bool) {
	return r.cache.Get(requestID)
}

// Recent returns up to n cached records, newest first. It never touches
// storage.
func (r *Recorder) Recent(n int) []*Record {
	return r.cache.Recent(n)
}

// Stats snapshots the pipeline counters.
func (r *Recorder) Stats() RecorderStats {
	pending := 0
	r.pending.Range(func(_, _ any) bool {
		pending++
		return true
	})

	return RecorderStats{
		Pending:    pending,
		QueueDepth: len(r.recordCh),
		Dropped:    r.dropped.Load(),
		Excluded:   r.excluded.Load(),
		Cache:      r.cache.Stats(),
	}
}

// Close drains the write channel and stops the worker. The storage backend
// stays open; its owner closes it.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down audit recorder")

	close(r.done)
	r.wg.Wait()

	r.logger.Info("audit recorder shut down",
		"dropped", r.dropped.Load(),
		"excluded", r.excluded.Load(),
	)
	return nil
}

// worker drains the record channel into storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.recordCh:
			r.writeRecord(rec)

		case <-r.done:
			r.logger.Info("draining audit channel before shutdown",
				"pending_count", len(r.recordCh),
			)
			for {
				select {
				case rec := <-r.recordCh:
					r.writeRecord(rec)
				default:
					r.logger.Info("audit channel drained")
					return
				}
			}
		}
	}
}

// writeRecord writes a single record to storage.
func (r *Recorder) writeRecord(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()

	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store audit record",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)

	r.logger.Debug("audit record stored",
		"record_id", rec.ID,
		"request_id", rec.RequestID,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.cfg.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"record_id", rec.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.cfg.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// clone returns a copy safe to hand to cache readers while the original
// keeps being joined with its outcome.
func (rec *Record) clone() *Record {
	cp := *rec
	return &cp
}
