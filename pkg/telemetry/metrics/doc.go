// Package metrics exposes Prometheus metrics for the comparison proxy.
//
// A Collector is created on a private registry and passed to the forwarder,
// recorder, alert forwarder and maintenance worker as their observer. The
// proxy records every assembled envelope with RecordComparison. Handler serves
// the registry at the configured metrics path.
//
// Endpoint labels are derived from templated request paths and capped by a
// CardinalityLimiter; values beyond the cap are reported as "other".
package metrics
