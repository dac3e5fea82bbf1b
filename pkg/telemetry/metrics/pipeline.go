package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nocturne-hq/parity/pkg/config"
)

// PipelineMetrics tracks the background stages that follow a comparison.
//
// Metrics:
//   - parity_persistence_total: Envelope writes by result
//   - parity_alerts_total: Alerts by result (sent, failed, dropped)
//   - parity_maintenance_cycles_total: Maintenance cycles by result
//   - parity_maintenance_duration_seconds: Maintenance cycle duration
type PipelineMetrics struct {
	persistence         *prometheus.CounterVec
	alerts              *prometheus.CounterVec
	maintenanceCycles   *prometheus.CounterVec
	maintenanceDuration prometheus.Histogram
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PipelineMetrics {
	pm := &PipelineMetrics{
		persistence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "persistence_total",
				Help:      "Total envelope writes by result",
			},
			[]string{"result"},
		),

		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "alerts_total",
				Help:      "Total alerts by result",
			},
			[]string{"result"},
		),

		maintenanceCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "maintenance_cycles_total",
				Help:      "Total maintenance cycles by result",
			},
			[]string{"result"},
		),

		maintenanceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance cycle duration in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
		),
	}

	registry.MustRegister(
		pm.persistence,
		pm.alerts,
		pm.maintenanceCycles,
		pm.maintenanceDuration,
	)

	return pm
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordPersistence counts an envelope write.
func (pm *PipelineMetrics) RecordPersistence(err error) {
	pm.persistence.WithLabelValues(resultLabel(err)).Inc()
}

// RecordAlert counts an alert outcome.
func (pm *PipelineMetrics) RecordAlert(result string) {
	pm.alerts.WithLabelValues(result).Inc()
}

// RecordMaintenance counts a cycle and observes its duration.
func (pm *PipelineMetrics) RecordMaintenance(err error, elapsed time.Duration) {
	pm.maintenanceCycles.WithLabelValues(resultLabel(err)).Inc()
	pm.maintenanceDuration.Observe(elapsed.Seconds())
}
