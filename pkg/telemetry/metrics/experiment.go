package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ExperimentMetrics tracks variant health and rollback activity.
//
// Metrics:
//   - bearing_sextant_rollbacks_total: Automatic rollbacks by variant and metric
//   - bearing_sextant_incidents_total: All disable incidents by metric (includes manual)
//   - bearing_sextant_variant_enabled: Per-variant enable flag (1=enabled)
//   - bearing_sextant_shadow_agreement_rate: Shadow vs live pick agreement
type ExperimentMetrics struct {
	// Automatic rollbacks by variant and breached metric
	rollbacksTotal *prometheus.CounterVec

	// All disable incidents, automatic and manual
	incidentsTotal *prometheus.CounterVec

	// Variant enable flag gauge (1=enabled, 0=disabled)
	variantEnabled *prometheus.GaugeVec

	// Shadow agreement rate gauge
	shadowAgreement prometheus.Gauge
}

// NewExperimentMetrics creates and registers experiment metrics with the provided registry.
func NewExperimentMetrics(cfg *Config, registry *prometheus.Registry) *ExperimentMetrics {
	em := &ExperimentMetrics{
		rollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rollbacks_total",
				Help:      "Automatic variant rollbacks by breached metric",
			},
			[]string{"variant", "metric"},
		),

		incidentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "incidents_total",
				Help:      "Variant disable incidents, automatic and manual",
			},
			[]string{"metric"},
		),

		variantEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "variant_enabled",
				Help:      "Whether a variant is serving traffic (1=enabled, 0=disabled)",
			},
			[]string{"variant"},
		),

		shadowAgreement: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "shadow_agreement_rate",
				Help:      "Fraction of requests where the shadow pick matched the live pick",
			},
		),
	}

	registry.MustRegister(
		em.rollbacksTotal,
		em.incidentsTotal,
		em.variantEnabled,
		em.shadowAgreement,
	)

	return em
}

// RecordRollback counts one automatic rollback.
func (em *ExperimentMetrics) RecordRollback(variantID, metric string) {
	em.rollbacksTotal.WithLabelValues(variantID, metric).Inc()
}

// RecordIncident counts one disable incident. The metric label is the
// breached metric name, or "manual" for operator disables.
func (em *ExperimentMetrics) RecordIncident(metric string) {
	em.incidentsTotal.WithLabelValues(metric).Inc()
}

// UpdateVariantEnabled updates a variant's enable-flag gauge.
func (em *ExperimentMetrics) UpdateVariantEnabled(variantID string, enabled bool) {
	v := 0.0
	if enabled {
		v = 1.0
	}
	em.variantEnabled.WithLabelValues(variantID).Set(v)
}

// UpdateShadowAgreement updates the shadow agreement-rate gauge.
func (em *ExperimentMetrics) UpdateShadowAgreement(rate float64) {
	em.shadowAgreement.Set(rate)
}
