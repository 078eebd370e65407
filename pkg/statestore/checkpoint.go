package statestore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bearing-hq/sextant/pkg/telemetry/metrics"
)

// Source supplies the checkpoints to persist on each tick. The routing
// engine implements this by serializing its live policies.
type Source interface {
	Checkpoints(ctx context.Context) ([]*PolicyCheckpoint, error)
}

// Checkpointer periodically snapshots policy state into a Store. Saves are
// best-effort: a failure is logged and retried on the next tick, and the
// request path is never involved.
type Checkpointer struct {
	store    Store
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	failureStreak atomic.Int64
	saved         atomic.Int64
}

// NewCheckpointer wires a source to a store. The interval must be positive.
func NewCheckpointer(store Store, source Source, interval time.Duration) *Checkpointer {
	return &Checkpointer{
		store:    store,
		source:   source,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   slog.Default().With("component", "statestore.checkpointer"),
		done:     make(chan struct{}),
	}
}

// SetMetrics wires the Prometheus collector. Set before Start.
func (c *Checkpointer) SetMetrics(collector *metrics.Collector) {
	c.metrics = collector
}

// Start launches the background checkpoint loop.
func (c *Checkpointer) Start() {
	c.wg.Add(1)
	go c.loop()
	c.logger.Info("checkpointer started", "interval", c.interval)
}

func (c *Checkpointer) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			c.SaveAll(ctx)
			cancel()
		case <-c.done:
			return
		}
	}
}

// SaveAll persists every checkpoint the source offers. Individual failures
// are logged and counted; the rest of the batch still proceeds.
func (c *Checkpointer) SaveAll(ctx context.Context) {
	cps, err := c.source.Checkpoints(ctx)
	if err != nil {
		c.failureStreak.Add(1)
		if c.metrics != nil {
			c.metrics.RecordCheckpoint("error")
			c.metrics.SetCheckpointFailureStreak(c.failureStreak.Load())
		}
		c.logger.Error("failed to collect policy checkpoints", "error", err)
		return
	}

	failed := false
	for _, cp := range cps {
		if cp.SavedAt.IsZero() {
			cp.SavedAt = time.Now().UTC()
		}
		if err := c.store.Save(ctx, cp); err != nil {
			failed = true
			if c.metrics != nil {
				c.metrics.RecordCheckpoint("error")
			}
			c.logger.Warn("checkpoint save failed, will retry on next tick",
				"policy_id", cp.PolicyID,
				"error", err,
			)
			continue
		}
		c.saved.Add(1)
		if c.metrics != nil {
			c.metrics.RecordCheckpoint("ok")
		}
	}

	if failed {
		c.failureStreak.Add(1)
	} else {
		c.failureStreak.Store(0)
	}
	if c.metrics != nil {
		c.metrics.SetCheckpointFailureStreak(c.failureStreak.Load())
	}
}

// Stop halts the loop and writes one final checkpoint batch so a clean
// shutdown never loses more than the in-flight updates.
func (c *Checkpointer) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.SaveAll(ctx)
		c.logger.Info("checkpointer stopped", "checkpoints_saved", c.saved.Load())
	})
}

// FailureStreak reports how many consecutive checkpoint cycles have failed.
// A persistently non-zero streak means the router is effectively running
// in-memory only.
func (c *Checkpointer) FailureStreak() int64 {
	return c.failureStreak.Load()
}
