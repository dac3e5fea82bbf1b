package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/config"
)

// Collector owns every Prometheus metric the proxy exposes. It satisfies the
// observer interfaces of the forwarder, recorder, alert forwarder and
// maintenance worker so those packages never import Prometheus.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	comparisons *ComparisonMetrics
	legs        *LegMetrics
	cache       *CacheMetrics
	pipeline    *PipelineMetrics

	// Endpoint labels come from request paths, so they are bounded.
	endpointLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered on registry, or on a fresh
// private registry when registry is nil.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "parity"
	}
	if len(cfg.LegDurationBuckets) == 0 {
		// Glucose API calls are small; most complete well under a second.
		cfg.LegDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15}
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		comparisons:     NewComparisonMetrics(cfg, registry),
		legs:            NewLegMetrics(cfg, registry),
		cache:           NewCacheMetrics(cfg, registry),
		pipeline:        NewPipelineMetrics(cfg, registry),
		endpointLimiter: NewCardinalityLimiter(500),
	}
}

// RecordRequest counts an inbound request by how it was handled:
// compared, sampled_out, passthrough, rejected, delegated or replayed.
func (c *Collector) RecordRequest(mode string) {
	if !c.config.Enabled {
		return
	}
	c.comparisons.RecordRequest(mode)
}

// RecordComparison records the outcome of one assembled envelope.
func (c *Collector) RecordComparison(e *analysis.Envelope) {
	if !c.config.Enabled || e == nil {
		return
	}

	endpoint := e.Endpoint
	if !c.endpointLimiter.Allow(endpoint) {
		endpoint = "other"
	}
	c.comparisons.RecordComparison(endpoint, e.Match, e.Discrepancies)
}

// ObserveLeg records one forwarded leg.
func (c *Collector) ObserveLeg(target string, elapsed time.Duration, failed bool) {
	if !c.config.Enabled {
		return
	}
	c.legs.Observe(target, elapsed, failed)
}

// ObserveCache records a response cache lookup.
func (c *Collector) ObserveCache(hit bool) {
	if !c.config.Enabled {
		return
	}
	if hit {
		c.cache.RecordHit()
	} else {
		c.cache.RecordMiss()
	}
}

// UpdateCacheSize sets the response cache entry gauge.
func (c *Collector) UpdateCacheSize(size int) {
	if !c.config.Enabled {
		return
	}
	c.cache.UpdateSize(size)
}

// ObservePersistence records an envelope write.
func (c *Collector) ObservePersistence(err error) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordPersistence(err)
}

// ObserveAlert records an alert outcome: "sent", "failed" or "dropped".
func (c *Collector) ObserveAlert(result string) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordAlert(result)
}

// ObserveMaintenance records a maintenance cycle and, when a snapshot was
// produced, publishes its overall compatibility score.
func (c *Collector) ObserveMaintenance(err error, elapsed time.Duration, snapshot *analysis.Snapshot) {
	if !c.config.Enabled {
		return
	}
	c.pipeline.RecordMaintenance(err, elapsed)
	if snapshot != nil {
		c.comparisons.SetScore(snapshot.Overall.CompatibilityScore)
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label values admitted.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already admitted or there is room for it.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of admitted values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
