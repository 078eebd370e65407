package experiment

import (
	"math"
	"testing"
)

func TestEvaluateWindow(t *testing.T) {
	th := Thresholds{QualityDelta: 0.1, LatencyP95DeltaMS: 500, CostDelta: 0.05}
	base := WindowStats{MeanQuality: 0.8, LatencyP95MS: 400, MeanCost: 0.02}

	tests := []struct {
		name       string
		variant    WindowStats
		wantBreach bool
		wantMetric string
		wantDelta  float64
	}{
		{
			name:    "healthy variant",
			variant: WindowStats{MeanQuality: 0.79, LatencyP95MS: 420, MeanCost: 0.02},
		},
		{
			name:    "quality drop within threshold",
			variant: WindowStats{MeanQuality: 0.72, LatencyP95MS: 400, MeanCost: 0.02},
		},
		{
			name:       "quality drop beyond threshold",
			variant:    WindowStats{MeanQuality: 0.65, LatencyP95MS: 400, MeanCost: 0.02},
			wantBreach: true,
			wantMetric: "quality",
			wantDelta:  -0.15,
		},
		{
			name:    "quality improvement never breaches",
			variant: WindowStats{MeanQuality: 0.95, LatencyP95MS: 400, MeanCost: 0.02},
		},
		{
			name:       "latency regression",
			variant:    WindowStats{MeanQuality: 0.8, LatencyP95MS: 950, MeanCost: 0.02},
			wantBreach: true,
			wantMetric: "latency_p95",
			wantDelta:  550,
		},
		{
			name:    "latency regression exactly at threshold",
			variant: WindowStats{MeanQuality: 0.8, LatencyP95MS: 900, MeanCost: 0.02},
		},
		{
			name:    "latency improvement never breaches",
			variant: WindowStats{MeanQuality: 0.8, LatencyP95MS: 100, MeanCost: 0.02},
		},
		{
			name:       "cost regression",
			variant:    WindowStats{MeanQuality: 0.8, LatencyP95MS: 400, MeanCost: 0.08},
			wantBreach: true,
			wantMetric: "cost",
			wantDelta:  0.06,
		},
		{
			name:       "quality reported before latency when both breach",
			variant:    WindowStats{MeanQuality: 0.6, LatencyP95MS: 2000, MeanCost: 0.02},
			wantBreach: true,
			wantMetric: "quality",
			wantDelta:  -0.2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			br, breached := evaluateWindow(th, base, tc.variant)
			if breached != tc.wantBreach {
				t.Fatalf("breached = %v, want %v (breach %+v)", breached, tc.wantBreach, br)
			}
			if !tc.wantBreach {
				return
			}
			if br.metric != tc.wantMetric {
				t.Fatalf("metric = %q, want %q", br.metric, tc.wantMetric)
			}
			if math.Abs(br.delta-tc.wantDelta) > 1e-9 {
				t.Fatalf("delta = %v, want %v", br.delta, tc.wantDelta)
			}
		})
	}
}

func TestNewIncidentSetsIdentity(t *testing.T) {
	inc := newIncident("candidate", "quality", -0.2, 0.1, 3)
	if inc.ID == "" {
		t.Fatal("incident has no id")
	}
	if inc.VariantID != "candidate" || inc.Metric != "quality" {
		t.Fatalf("incident identity wrong: %+v", inc)
	}
	if inc.Windows != 3 {
		t.Fatalf("Windows = %d, want 3", inc.Windows)
	}
	if inc.At.IsZero() {
		t.Fatal("incident timestamp not set")
	}
	other := newIncident("candidate", "quality", -0.2, 0.1, 3)
	if other.ID == inc.ID {
		t.Fatal("incident ids are not unique")
	}
}
