package experiment

import (
	"math"
	"sort"
	"sync"
)

// WindowStats is the closed-window summary used for rollback evaluation.
type WindowStats struct {
	// VariantID is the variant the window belongs to.
	VariantID string

	// Samples is the number of outcomes observed in the window.
	Samples int

	// MeanQuality is the average quality score.
	MeanQuality float64

	// LatencyP95MS is the 95th percentile latency in milliseconds.
	LatencyP95MS float64

	// MeanCost is the average per-request cost.
	MeanCost float64
}

// metricWindow accumulates one variant's outcomes for the current window.
// Closing the window snapshots the stats and resets the accumulator.
type metricWindow struct {
	mu         sync.Mutex
	count      int
	qualitySum float64
	costSum    float64
	latencies  []float64
}

func (w *metricWindow) observe(quality, latencyMS, cost float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	w.qualitySum += quality
	w.costSum += cost
	w.latencies = append(w.latencies, latencyMS)
}

// close snapshots the current window and starts a fresh one.
func (w *metricWindow) close(variantID string) WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := WindowStats{VariantID: variantID, Samples: w.count}
	if w.count > 0 {
		stats.MeanQuality = w.qualitySum / float64(w.count)
		stats.MeanCost = w.costSum / float64(w.count)
		stats.LatencyP95MS = percentile(w.latencies, 0.95)
	}

	w.count = 0
	w.qualitySum = 0
	w.costSum = 0
	w.latencies = w.latencies[:0]
	return stats
}

// percentile computes the p-quantile with the nearest-rank method. The
// input slice is sorted in place.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	rank := int(math.Ceil(p*float64(len(values)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return values[rank]
}
