package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nocturne-hq/parity/pkg/config"
)

// LegMetrics tracks forwarded legs per target.
//
// Metrics:
//   - parity_leg_duration_seconds: Leg latency including retries
//   - parity_leg_failures_total: Legs that produced no HTTP response
type LegMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewLegMetrics creates and registers leg metrics.
func NewLegMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LegMetrics {
	lm := &LegMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "leg_duration_seconds",
				Help:      "Forwarded leg latency in seconds",
				Buckets:   cfg.LegDurationBuckets,
			},
			[]string{"target"},
		),

		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "leg_failures_total",
				Help:      "Total legs that failed at the transport level",
			},
			[]string{"target"},
		),
	}

	registry.MustRegister(lm.duration, lm.failures)
	return lm
}

// Observe records one leg.
func (lm *LegMetrics) Observe(target string, elapsed time.Duration, failed bool) {
	lm.duration.WithLabelValues(target).Observe(elapsed.Seconds())
	if failed {
		lm.failures.WithLabelValues(target).Inc()
	}
}
