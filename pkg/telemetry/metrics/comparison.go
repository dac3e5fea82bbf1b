package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/config"
)

// ComparisonMetrics tracks comparison outcomes.
//
// Metrics:
//   - parity_requests_total: Inbound requests by handling mode
//   - parity_comparisons_total: Envelopes by overall match and endpoint
//   - parity_discrepancies_total: Discrepancies by kind and severity
//   - parity_compatibility_score: Overall score from the latest rollup (0-100)
type ComparisonMetrics struct {
	requests      *prometheus.CounterVec
	comparisons   *prometheus.CounterVec
	discrepancies *prometheus.CounterVec
	score         prometheus.Gauge
}

// NewComparisonMetrics creates and registers comparison metrics.
func NewComparisonMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ComparisonMetrics {
	cm := &ComparisonMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total inbound requests by handling mode",
			},
			[]string{"mode"},
		),

		comparisons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "comparisons_total",
				Help:      "Total comparisons by overall match",
			},
			[]string{"match", "endpoint"},
		),

		discrepancies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "discrepancies_total",
				Help:      "Total discrepancies by kind and severity",
			},
			[]string{"kind", "severity"},
		),

		score: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "compatibility_score",
				Help:      "Overall compatibility score from the latest maintenance rollup (0-100)",
			},
		),
	}

	registry.MustRegister(
		cm.requests,
		cm.comparisons,
		cm.discrepancies,
		cm.score,
	)

	return cm
}

// RecordRequest counts an inbound request.
func (cm *ComparisonMetrics) RecordRequest(mode string) {
	cm.requests.WithLabelValues(mode).Inc()
}

// RecordComparison counts an envelope and each of its discrepancies.
func (cm *ComparisonMetrics) RecordComparison(endpoint string, match analysis.OverallMatch, ds []analysis.Discrepancy) {
	cm.comparisons.WithLabelValues(string(match), endpoint).Inc()
	for _, d := range ds {
		cm.discrepancies.WithLabelValues(string(d.Kind), string(d.Severity)).Inc()
	}
}

// SetScore publishes the latest overall compatibility score.
func (cm *ComparisonMetrics) SetScore(score float64) {
	cm.score.Set(score)
}
