package config

import "time"

// Config is the root configuration structure for the parity proxy.
type Config struct {
	// Proxy contains the inbound HTTP server configuration.
	Proxy ProxyConfig `yaml:"proxy"`

	// Targets contains the legacy and replacement backend settings.
	Targets TargetsConfig `yaml:"targets"`

	// Parity contains the dual-forwarding feature flags.
	Parity ParityConfig `yaml:"parity"`

	// Compare contains the response comparison rules. It is hot-reloadable.
	Compare CompareConfig `yaml:"compare"`

	// Cache contains the replay response cache settings.
	Cache CacheConfig `yaml:"cache"`

	// Storage contains the analysis store and recorder settings.
	Storage StorageConfig `yaml:"storage"`

	// Alerts contains the critical-analysis forwarding settings.
	Alerts AlertsConfig `yaml:"alerts"`

	// Maintenance contains the pruning and rollup schedule.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Health contains the legacy reachability probe settings.
	Health HealthConfig `yaml:"health"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the inbound HTTP server.
type ProxyConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// It should exceed the slowest target timeout.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the grace period for in-flight requests on shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// TargetsConfig holds both backends.
type TargetsConfig struct {
	Legacy      TargetConfig `yaml:"legacy"`
	Replacement TargetConfig `yaml:"replacement"`
}

// TargetConfig configures one backend.
type TargetConfig struct {
	// BaseURL is the scheme and authority of the backend. Required for the
	// legacy target. Empty on the replacement target enables self-forwarding.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds one leg including its retries.
	// Default: 15s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries on transport failure.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the first retry delay, doubled per attempt.
	// Default: 200ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// MaxIdleConns bounds the per-target connection pool.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// ParityConfig contains the dual-forwarding feature flags.
type ParityConfig struct {
	// ComparisonEnabled turns dual forwarding and comparison on. When off
	// every request is passed through to the preferred target.
	// Default: true
	ComparisonEnabled bool `yaml:"comparison_enabled"`

	// CorrelationEnabled threads X-Correlation-ID through both legs.
	// Default: true
	CorrelationEnabled bool `yaml:"correlation_enabled"`

	// SamplingPercentage is the share of traffic, 0 to 100, that is
	// dual-forwarded. It is hot-reloadable.
	// Default: 100
	SamplingPercentage float64 `yaml:"sampling_percentage"`

	// MaxBodyBytes bounds the buffered inbound body.
	// Default: 10485760 (10MiB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// SelectionPolicy picks the leg answered to the client:
	// "prefer-replacement" or "prefer-legacy".
	// Default: "prefer-replacement"
	SelectionPolicy string `yaml:"selection_policy"`

	// AddResponseHeaders adds X-Correlation-ID and X-Parity-Selected-Target.
	// Default: true
	AddResponseHeaders bool `yaml:"add_response_headers"`

	// APIPrefix mounts the query API.
	// Default: "/_parity"
	APIPrefix string `yaml:"api_prefix"`

	// APIAllowedOrigins may read the query API from a browser. "*" allows
	// any origin. Empty disables CORS.
	APIAllowedOrigins []string `yaml:"api_allowed_origins"`
}

// CompareConfig contains the comparison rules.
type CompareConfig struct {
	// IgnoredFields are skipped, by key name or full path.
	IgnoredFields []string `yaml:"ignored_fields"`

	// TimestampFields have their leaf differences reported as Minor.
	TimestampFields []string `yaml:"timestamp_fields"`

	// CriticalFields have their leaf differences raised to Critical.
	CriticalFields []string `yaml:"critical_fields"`

	// ComparedHeaders are response headers compared verbatim.
	ComparedHeaders []string `yaml:"compared_headers"`

	// NumericEpsilon is the relative tolerance for numbers.
	// Default: 1e-6
	NumericEpsilon float64 `yaml:"numeric_epsilon"`

	// PerformanceMultiplier is the slowdown ratio reported as Performance.
	// Default: 3
	PerformanceMultiplier float64 `yaml:"performance_multiplier"`

	// PerformanceMinDelta is the smallest absolute slowdown reported.
	// Default: 50ms
	PerformanceMinDelta time.Duration `yaml:"performance_min_delta"`
}

// CacheConfig contains the replay response cache settings.
type CacheConfig struct {
	// Default: true
	Enabled bool `yaml:"enabled"`

	// TTL is the freshness window of a cached outcome.
	// Default: 2m
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the cache; the least recently used entry is evicted.
	// Default: 1000
	MaxEntries int `yaml:"max_entries"`
}

// StorageConfig contains the analysis store settings.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// SQLiteConfig contains the SQLite analysis store settings.
type SQLiteConfig struct {
	// Default: "data/parity.db"
	Path string `yaml:"path"`

	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig contains the asynchronous write queue settings.
type RecorderConfig struct {
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AlertsConfig contains the alert sink settings.
type AlertsConfig struct {
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint receives alert payloads by POST. Required when enabled.
	Endpoint string `yaml:"endpoint"`

	// Threshold is "critical" or "major".
	// Default: "critical"
	Threshold string `yaml:"threshold"`

	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// Default: 100
	QueueSize int `yaml:"queue_size"`

	// RatePerSecond limits deliveries.
	// Default: 5
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// MaintenanceConfig contains the maintenance worker settings.
type MaintenanceConfig struct {
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or descriptor.
	// Default: "@every 15m"
	Schedule string `yaml:"schedule"`

	// Retention is how long envelopes are kept; 0 disables age pruning.
	// Default: 720h
	Retention time.Duration `yaml:"retention"`

	// MaxRecords caps the stored envelopes; 0 means unlimited.
	MaxRecords int64 `yaml:"max_records"`

	// SnapshotPath is the rollup snapshot database.
	// Default: "data/snapshots.db"
	SnapshotPath string `yaml:"snapshot_path"`

	// ArchiveBeforeDelete exports pruned envelopes as JSON first.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`
}

// HealthConfig contains the legacy reachability probe settings.
type HealthConfig struct {
	// Default: "/api/v1/status.json"
	ProbePath string `yaml:"probe_path"`

	// Default: 2s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json", "text" or "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes the source file and line in records.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks API secrets and tokens in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Default: "/metrics"
	Path string `yaml:"path"`

	// Default: "parity"
	Namespace string `yaml:"namespace"`

	Subsystem string `yaml:"subsystem"`

	// LegDurationBuckets are the histogram buckets, in seconds, for leg latency.
	LegDurationBuckets []float64 `yaml:"leg_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is used by the ratio sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter is "otlp".
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Default: "parity"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
