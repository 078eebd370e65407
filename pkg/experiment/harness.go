package experiment

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// maxIncidentLog bounds the in-memory incident history kept for the admin
// surface.
const maxIncidentLog = 100

// Config tunes the experiment harness.
type Config struct {
	// Salt seeds the bucket hash. Changing it reshuffles every
	// key-to-variant assignment.
	// Default: "sextant"
	Salt string `yaml:"salt"`

	// BucketCount is the modulus of the bucket hash. Larger counts give
	// finer-grained traffic shares.
	// Default: 1000
	BucketCount int `yaml:"bucket_count"`

	// Variants declares the experiment variants. Exactly one must be the
	// baseline.
	// Default: a single baseline variant "control"
	Variants []VariantConfig `yaml:"variants"`

	// WindowDuration is the tumbling metric window length.
	// Default: 60s
	WindowDuration time.Duration `yaml:"window_duration"`

	// ConsecutiveWindows is how many breached windows in a row trigger a
	// rollback.
	// Default: 3
	ConsecutiveWindows int `yaml:"consecutive_windows"`

	// MinWindowSamples is the minimum per-window sample count (on both
	// sides) for a window to count toward or against a breach streak.
	// Default: 20
	MinWindowSamples int `yaml:"min_window_samples"`

	// Thresholds are the per-metric rollback limits.
	Thresholds Thresholds `yaml:"rollback_thresholds"`
}

// DefaultConfig returns a single-variant (no experiment) configuration.
func DefaultConfig() Config {
	return Config{
		Salt:        "sextant",
		BucketCount: 1000,
		Variants: []VariantConfig{
			{ID: "control", PolicyID: "default", Share: 1, Baseline: true},
		},
		WindowDuration:     time.Minute,
		ConsecutiveWindows: 3,
		MinWindowSamples:   20,
		Thresholds: Thresholds{
			QualityDelta:      0.1,
			LatencyP95DeltaMS: 500,
			CostDelta:         0.05,
		},
	}
}

// variantState is one variant's live harness state. The config is
// immutable; enabled and the breach streak are the mutable parts.
type variantState struct {
	cfg          VariantConfig
	enabled      atomic.Bool
	window       *metricWindow
	breachStreak atomic.Int32
}

// Harness assigns requests to variants, tracks per-variant outcome metrics,
// and disables variants that breach rollback thresholds.
type Harness struct {
	cfg      Config
	assigner *assigner
	logger   *slog.Logger

	// variants is built once at construction; only the pointed-to state
	// mutates afterwards.
	variants map[string]*variantState

	scoreboard *Scoreboard

	incidentMu sync.Mutex
	incidents  []Incident
	sinks      []func(Incident)

	rollbacks atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHarness validates the config and builds the harness with every
// variant enabled.
func NewHarness(cfg Config) (*Harness, error) {
	def := DefaultConfig()
	if cfg.Salt == "" {
		cfg.Salt = def.Salt
	}
	if cfg.BucketCount == 0 {
		cfg.BucketCount = def.BucketCount
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = def.Variants
	}
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.ConsecutiveWindows == 0 {
		cfg.ConsecutiveWindows = def.ConsecutiveWindows
	}
	if cfg.MinWindowSamples == 0 {
		cfg.MinWindowSamples = def.MinWindowSamples
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.ConsecutiveWindows < 1 {
		return nil, fmt.Errorf("consecutive_windows must be >= 1, got %d", cfg.ConsecutiveWindows)
	}

	asn, err := newAssigner(cfg.Salt, cfg.BucketCount, cfg.Variants)
	if err != nil {
		return nil, fmt.Errorf("invalid experiment config: %w", err)
	}

	h := &Harness{
		cfg:        cfg,
		assigner:   asn,
		logger:     slog.Default().With("component", "experiment.harness"),
		variants:   make(map[string]*variantState, len(cfg.Variants)),
		scoreboard: NewScoreboard(),
		done:       make(chan struct{}),
	}
	for _, v := range cfg.Variants {
		vs := &variantState{cfg: v, window: &metricWindow{}}
		vs.enabled.Store(true)
		h.variants[v.ID] = vs
	}
	return h, nil
}

// Assign returns the variant serving the given request key. Traffic for a
// disabled variant falls back to the baseline.
func (h *Harness) Assign(requestKey string) VariantConfig {
	v := h.assigner.variantFor(requestKey)
	if vs, ok := h.variants[v.ID]; ok && !vs.enabled.Load() {
		return h.assigner.baselineVariant()
	}
	return v
}

// Observe records one completed outcome for a variant's current metric
// window. Unknown variant IDs are ignored.
func (h *Harness) Observe(variantID string, quality, latencyMS, cost float64) {
	if vs, ok := h.variants[variantID]; ok {
		vs.window.observe(quality, latencyMS, cost)
	}
}

// ShadowVariants returns the enabled shadow variants in config order. Their
// policies are scored on live traffic but never dispatched.
func (h *Harness) ShadowVariants() []VariantConfig {
	var out []VariantConfig
	for _, v := range h.cfg.Variants {
		if !v.Shadow {
			continue
		}
		if vs, ok := h.variants[v.ID]; ok && vs.enabled.Load() {
			out = append(out, v)
		}
	}
	return out
}

// RecordShadow feeds one shadow-vs-live comparison into the scoreboard.
func (h *Harness) RecordShadow(liveArmID, shadowArmID string, liveReward, shadowEstimate float64) {
	h.scoreboard.Record(liveArmID, shadowArmID, liveReward, shadowEstimate)
}

// ShadowStats returns the shadow scoreboard summary.
func (h *Harness) ShadowStats() ShadowStats {
	return h.scoreboard.Stats()
}

// EvaluateWindows closes every variant's metric window and applies the
// rollback rules against the baseline window. It returns the incidents
// fired, if any. The background monitor calls this once per window; tests
// may call it directly.
func (h *Harness) EvaluateWindows() []Incident {
	baselineID := h.assigner.baselineVariant().ID

	stats := make(map[string]WindowStats, len(h.variants))
	for id, vs := range h.variants {
		stats[id] = vs.window.close(id)
	}
	base := stats[baselineID]

	var fired []Incident
	for id, vs := range h.variants {
		// Shadow variants never serve traffic, so there is nothing to
		// roll back.
		if id == baselineID || vs.cfg.Shadow || !vs.enabled.Load() {
			continue
		}
		st := stats[id]
		// A window without enough data on both sides is inconclusive: it
		// neither extends nor resets the streak.
		if base.Samples < h.cfg.MinWindowSamples || st.Samples < h.cfg.MinWindowSamples {
			continue
		}

		br, breached := evaluateWindow(h.cfg.Thresholds, base, st)
		if !breached {
			vs.breachStreak.Store(0)
			continue
		}

		streak := vs.breachStreak.Add(1)
		h.logger.Warn("variant breached rollback threshold",
			"variant_id", id,
			"metric", br.metric,
			"delta", br.delta,
			"threshold", br.threshold,
			"consecutive_windows", streak,
		)
		if int(streak) < h.cfg.ConsecutiveWindows {
			continue
		}
		if !vs.enabled.CompareAndSwap(true, false) {
			continue
		}

		inc := newIncident(id, br.metric, br.delta, br.threshold, int(streak))
		h.rollbacks.Add(1)
		h.recordIncident(inc)
		fired = append(fired, inc)
		h.logger.Error("variant disabled by automatic rollback",
			"variant_id", id,
			"incident_id", inc.ID,
			"metric", br.metric,
			"delta", br.delta,
		)
	}
	return fired
}

// ForceDisable is the manual rollback override. It refuses to disable the
// baseline, since disabled variants fall back to it.
func (h *Harness) ForceDisable(variantID, reason string) (Incident, error) {
	vs, ok := h.variants[variantID]
	if !ok {
		return Incident{}, fmt.Errorf("%w: %q", ErrUnknownVariant, variantID)
	}
	if vs.cfg.Baseline {
		return Incident{}, fmt.Errorf("cannot disable the baseline variant %q", variantID)
	}
	if !vs.enabled.CompareAndSwap(true, false) {
		return Incident{}, fmt.Errorf("variant %q is already disabled", variantID)
	}

	inc := newIncident(variantID, "manual", 0, 0, 0)
	inc.Reason = reason
	h.recordIncident(inc)
	h.logger.Warn("variant disabled by operator",
		"variant_id", variantID,
		"incident_id", inc.ID,
		"reason", reason,
	)
	return inc, nil
}

// Enabled reports whether a variant is currently serving traffic.
func (h *Harness) Enabled(variantID string) bool {
	vs, ok := h.variants[variantID]
	return ok && vs.enabled.Load()
}

// VariantStatus is the admin view of one variant.
type VariantStatus struct {
	ID           string  `json:"id"`
	PolicyID     string  `json:"policy_id"`
	Share        float64 `json:"share"`
	Baseline     bool    `json:"baseline"`
	Shadow       bool    `json:"shadow"`
	Enabled      bool    `json:"enabled"`
	BreachStreak int     `json:"breach_streak"`
}

// Variants lists every variant's current status in config order.
func (h *Harness) Variants() []VariantStatus {
	out := make([]VariantStatus, 0, len(h.cfg.Variants))
	for _, v := range h.cfg.Variants {
		vs := h.variants[v.ID]
		out = append(out, VariantStatus{
			ID:           v.ID,
			PolicyID:     v.PolicyID,
			Share:        v.Share,
			Baseline:     v.Baseline,
			Shadow:       v.Shadow,
			Enabled:      vs.enabled.Load(),
			BreachStreak: int(vs.breachStreak.Load()),
		})
	}
	return out
}

// Incidents returns a copy of the recent incident log, newest last.
func (h *Harness) Incidents() []Incident {
	h.incidentMu.Lock()
	defer h.incidentMu.Unlock()
	return append([]Incident(nil), h.incidents...)
}

// OnIncident registers a sink invoked synchronously whenever a variant is
// disabled. Register sinks before Start.
func (h *Harness) OnIncident(fn func(Incident)) {
	h.incidentMu.Lock()
	h.sinks = append(h.sinks, fn)
	h.incidentMu.Unlock()
}

// RollbackCount reports how many automatic rollbacks have fired.
func (h *Harness) RollbackCount() int64 {
	return h.rollbacks.Load()
}

func (h *Harness) recordIncident(inc Incident) {
	h.incidentMu.Lock()
	h.incidents = append(h.incidents, inc)
	if len(h.incidents) > maxIncidentLog {
		h.incidents = h.incidents[len(h.incidents)-maxIncidentLog:]
	}
	sinks := append([]func(Incident){}, h.sinks...)
	h.incidentMu.Unlock()

	for _, fn := range sinks {
		fn(inc)
	}
}

// Start launches the window monitor, which evaluates rollback rules once
// per window duration.
func (h *Harness) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.cfg.WindowDuration)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.EvaluateWindows()
			case <-h.done:
				return
			}
		}
	}()
	h.logger.Info("experiment harness started",
		"variants", len(h.variants),
		"window", h.cfg.WindowDuration,
		"consecutive_windows", h.cfg.ConsecutiveWindows,
	)
}

// Stop halts the window monitor.
func (h *Harness) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}
