package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Target defaults
	DefaultTargetTimeout      = 15 * time.Second
	DefaultTargetMaxRetries   = 2
	DefaultTargetRetryBackoff = 200 * time.Millisecond
	DefaultTargetMaxIdleConns = 100

	// Parity defaults
	DefaultComparisonEnabled  = true
	DefaultCorrelationEnabled = true
	DefaultSamplingPercentage = 100.0
	DefaultMaxBodyBytes       = 10 << 20
	DefaultSelectionPolicy    = "prefer-replacement"
	DefaultAddResponseHeaders = true
	DefaultAPIPrefix          = "/_parity"

	// Compare defaults
	DefaultNumericEpsilon        = 1e-6
	DefaultPerformanceMultiplier = 3.0
	DefaultPerformanceMinDelta   = 50 * time.Millisecond

	// Cache defaults
	DefaultCacheEnabled    = true
	DefaultCacheTTL        = 2 * time.Minute
	DefaultCacheMaxEntries = 1000

	// Storage defaults
	DefaultStorageBackend       = "sqlite"
	DefaultSQLitePath           = "data/parity.db"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultRecorderAsyncBuffer  = 1000
	DefaultRecorderWriteTimeout = 5 * time.Second

	// Alert defaults
	DefaultAlertsEnabled       = false
	DefaultAlertsThreshold     = "critical"
	DefaultAlertsTimeout       = 5 * time.Second
	DefaultAlertsMaxRetries    = 3
	DefaultAlertsQueueSize     = 100
	DefaultAlertsRatePerSecond = 5.0

	// Maintenance defaults
	DefaultMaintenanceEnabled  = true
	DefaultMaintenanceSchedule = "@every 15m"
	DefaultRetention           = 720 * time.Hour
	DefaultSnapshotPath        = "data/snapshots.db"
	DefaultArchivePath         = "data/archives/"

	// Health defaults
	DefaultProbePath    = "/api/v1/status.json"
	DefaultProbeTimeout = 2 * time.Second

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultLogRedactSecrets   = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "parity"
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "parity"
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultTimestampFields are the Nightscout keys whose values legitimately
// differ between two servers answering the same request.
var DefaultTimestampFields = []string{
	"date", "dateString", "sysTime", "created_at", "mills",
	"srvCreated", "srvModified", "timestamp", "serverTime", "serverTimeEpoch",
}

// DefaultCriticalFields are therapy-relevant keys.
var DefaultCriticalFields = []string{
	"sgv", "mbg", "insulin", "carbs", "percent", "absolute", "rate", "duration",
}

// DefaultComparedHeaders are the response headers compared verbatim.
var DefaultComparedHeaders = []string{
	"Location", "Cache-Control", "Access-Control-Allow-Origin",
}

// NewDefaultConfig returns a configuration with every field at its default.
// LoadConfig decodes YAML on top of it so boolean defaults survive
// omission while an explicit false still wins.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Parity: ParityConfig{
			ComparisonEnabled:  DefaultComparisonEnabled,
			CorrelationEnabled: DefaultCorrelationEnabled,
			SamplingPercentage: DefaultSamplingPercentage,
			AddResponseHeaders: DefaultAddResponseHeaders,
		},
		Cache: CacheConfig{Enabled: DefaultCacheEnabled},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Maintenance: MaintenanceConfig{
			Enabled:   DefaultMaintenanceEnabled,
			Retention: DefaultRetention,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactSecrets: DefaultLogRedactSecrets},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Booleans, the
// sampling percentage and the retention window are left alone because their
// zero value is a meaningful setting; NewDefaultConfig seeds them instead.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	applyTargetDefaults(&cfg.Targets.Legacy)
	applyTargetDefaults(&cfg.Targets.Replacement)

	// Parity defaults
	if cfg.Parity.MaxBodyBytes == 0 {
		cfg.Parity.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Parity.SelectionPolicy == "" {
		cfg.Parity.SelectionPolicy = DefaultSelectionPolicy
	}
	if cfg.Parity.APIPrefix == "" {
		cfg.Parity.APIPrefix = DefaultAPIPrefix
	}

	// Compare defaults. A nil list takes the default; an explicit empty
	// list in YAML disables it.
	if cfg.Compare.TimestampFields == nil {
		cfg.Compare.TimestampFields = append([]string(nil), DefaultTimestampFields...)
	}
	if cfg.Compare.CriticalFields == nil {
		cfg.Compare.CriticalFields = append([]string(nil), DefaultCriticalFields...)
	}
	if cfg.Compare.ComparedHeaders == nil {
		cfg.Compare.ComparedHeaders = append([]string(nil), DefaultComparedHeaders...)
	}
	if cfg.Compare.NumericEpsilon == 0 {
		cfg.Compare.NumericEpsilon = DefaultNumericEpsilon
	}
	if cfg.Compare.PerformanceMultiplier == 0 {
		cfg.Compare.PerformanceMultiplier = DefaultPerformanceMultiplier
	}
	if cfg.Compare.PerformanceMinDelta == 0 {
		cfg.Compare.PerformanceMinDelta = DefaultPerformanceMinDelta
	}

	// Cache defaults
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.Recorder.AsyncBuffer == 0 {
		cfg.Storage.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Storage.Recorder.WriteTimeout == 0 {
		cfg.Storage.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}

	// Alert defaults
	if cfg.Alerts.Threshold == "" {
		cfg.Alerts.Threshold = DefaultAlertsThreshold
	}
	if cfg.Alerts.Timeout == 0 {
		cfg.Alerts.Timeout = DefaultAlertsTimeout
	}
	if cfg.Alerts.MaxRetries == 0 {
		cfg.Alerts.MaxRetries = DefaultAlertsMaxRetries
	}
	if cfg.Alerts.QueueSize == 0 {
		cfg.Alerts.QueueSize = DefaultAlertsQueueSize
	}
	if cfg.Alerts.RatePerSecond == 0 {
		cfg.Alerts.RatePerSecond = DefaultAlertsRatePerSecond
	}

	// Maintenance defaults
	if cfg.Maintenance.Schedule == "" {
		cfg.Maintenance.Schedule = DefaultMaintenanceSchedule
	}
	if cfg.Maintenance.SnapshotPath == "" {
		cfg.Maintenance.SnapshotPath = DefaultSnapshotPath
	}
	if cfg.Maintenance.ArchivePath == "" {
		cfg.Maintenance.ArchivePath = DefaultArchivePath
	}

	// Health defaults
	if cfg.Health.ProbePath == "" {
		cfg.Health.ProbePath = DefaultProbePath
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = DefaultProbeTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyTargetDefaults(t *TargetConfig) {
	if t.Timeout == 0 {
		t.Timeout = DefaultTargetTimeout
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = DefaultTargetMaxRetries
	}
	if t.RetryBackoff == 0 {
		t.RetryBackoff = DefaultTargetRetryBackoff
	}
	if t.MaxIdleConns == 0 {
		t.MaxIdleConns = DefaultTargetMaxIdleConns
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
}
