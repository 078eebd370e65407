package experiment

import (
	"time"

	"github.com/google/uuid"
)

// Thresholds are the per-metric rollback limits, expressed as deltas
// against the baseline variant.
type Thresholds struct {
	// QualityDelta is the maximum tolerated quality drop: a variant
	// breaches when baseline quality minus variant quality exceeds it.
	// Default: 0.1
	QualityDelta float64 `yaml:"quality_delta"`

	// LatencyP95DeltaMS is the maximum tolerated p95 latency regression in
	// milliseconds.
	// Default: 500
	LatencyP95DeltaMS float64 `yaml:"latency_p95_delta_ms"`

	// CostDelta is the maximum tolerated mean cost regression.
	// Default: 0.05
	CostDelta float64 `yaml:"cost_delta"`
}

// Incident records one automatic or manual variant disable. Incidents are
// the operator-facing artifact of a rollback.
type Incident struct {
	// ID is a unique incident identifier.
	ID string `json:"id"`

	// VariantID is the variant that was disabled.
	VariantID string `json:"variant_id"`

	// Metric names the breached metric ("quality", "latency_p95", "cost"),
	// or "manual" for a force-disable.
	Metric string `json:"metric"`

	// Delta is the observed metric delta against the baseline.
	Delta float64 `json:"delta"`

	// Threshold is the configured limit that was crossed.
	Threshold float64 `json:"threshold"`

	// Windows is how many consecutive windows breached before the
	// rollback fired.
	Windows int `json:"windows"`

	// Reason is free-form context, set for manual disables.
	Reason string `json:"reason,omitempty"`

	// At is when the variant was disabled.
	At time.Time `json:"at"`
}

func newIncident(variantID, metric string, delta, threshold float64, windows int) Incident {
	return Incident{
		ID:        uuid.New().String(),
		VariantID: variantID,
		Metric:    metric,
		Delta:     delta,
		Threshold: threshold,
		Windows:   windows,
		At:        time.Now().UTC(),
	}
}

// breach describes one threshold violation in one window.
type breach struct {
	metric    string
	delta     float64
	threshold float64
}

// evaluateWindow compares a variant window to the baseline window and
// returns the first breached metric, if any. Deltas follow
// metric(variant) - metric(baseline).
func evaluateWindow(th Thresholds, baseline, variant WindowStats) (breach, bool) {
	if qualityDelta := variant.MeanQuality - baseline.MeanQuality; -qualityDelta > th.QualityDelta {
		return breach{metric: "quality", delta: qualityDelta, threshold: th.QualityDelta}, true
	}
	if latencyDelta := variant.LatencyP95MS - baseline.LatencyP95MS; latencyDelta > th.LatencyP95DeltaMS {
		return breach{metric: "latency_p95", delta: latencyDelta, threshold: th.LatencyP95DeltaMS}, true
	}
	if costDelta := variant.MeanCost - baseline.MeanCost; costDelta > th.CostDelta {
		return breach{metric: "cost", delta: costDelta, threshold: th.CostDelta}, true
	}
	return breach{}, false
}
