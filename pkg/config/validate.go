package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateTarget("targets.legacy", &cfg.Targets.Legacy, true)...)
	errs = append(errs, validateTarget("targets.replacement", &cfg.Targets.Replacement, false)...)
	errs = append(errs, validateParity(&cfg.Parity)...)
	errs = append(errs, validateCompare(&cfg.Compare)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateMaintenance(&cfg.Maintenance)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "proxy.listen_address", Message: "must not be empty"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: fmt.Sprintf("invalid address format: %v", err),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.write_timeout", Message: "must not be negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.idle_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.shutdown_timeout", Message: "must not be negative"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_header_bytes", Message: "must not be negative"})
	}

	return errs
}

func validateTarget(field string, cfg *TargetConfig, required bool) []FieldError {
	var errs []FieldError

	switch {
	case cfg.BaseURL == "" && required:
		errs = append(errs, FieldError{Field: field + ".base_url", Message: "is required"})
	case cfg.BaseURL != "":
		if msg := checkHTTPURL(cfg.BaseURL); msg != "" {
			errs = append(errs, FieldError{Field: field + ".base_url", Message: msg})
		}
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: field + ".timeout", Message: "must not be negative"})
	}
	if cfg.MaxRetries > 10 {
		errs = append(errs, FieldError{
			Field:   field + ".max_retries",
			Message: fmt.Sprintf("must be at most 10, got %d", cfg.MaxRetries),
		})
	}
	if cfg.RetryBackoff < 0 {
		errs = append(errs, FieldError{Field: field + ".retry_backoff", Message: "must not be negative"})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{Field: field + ".max_idle_conns", Message: "must not be negative"})
	}

	return errs
}

func validateParity(cfg *ParityConfig) []FieldError {
	var errs []FieldError

	if cfg.SamplingPercentage < 0 || cfg.SamplingPercentage > 100 {
		errs = append(errs, FieldError{
			Field:   "parity.sampling_percentage",
			Message: fmt.Sprintf("must be between 0 and 100, got %g", cfg.SamplingPercentage),
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "parity.max_body_bytes", Message: "must not be negative"})
	}
	switch cfg.SelectionPolicy {
	case "prefer-replacement", "prefer-legacy":
	default:
		errs = append(errs, FieldError{
			Field:   "parity.selection_policy",
			Message: fmt.Sprintf("must be 'prefer-replacement' or 'prefer-legacy', got %q", cfg.SelectionPolicy),
		})
	}
	if !strings.HasPrefix(cfg.APIPrefix, "/") || cfg.APIPrefix == "/" {
		errs = append(errs, FieldError{
			Field:   "parity.api_prefix",
			Message: fmt.Sprintf("must start with '/' and name a path segment, got %q", cfg.APIPrefix),
		})
	}

	return errs
}

func validateCompare(cfg *CompareConfig) []FieldError {
	var errs []FieldError

	if cfg.NumericEpsilon < 0 {
		errs = append(errs, FieldError{Field: "compare.numeric_epsilon", Message: "must not be negative"})
	}
	if cfg.PerformanceMultiplier < 1 {
		errs = append(errs, FieldError{
			Field:   "compare.performance_multiplier",
			Message: fmt.Sprintf("must be at least 1, got %g", cfg.PerformanceMultiplier),
		})
	}
	if cfg.PerformanceMinDelta < 0 {
		errs = append(errs, FieldError{Field: "compare.performance_min_delta", Message: "must not be negative"})
	}
	for i, h := range cfg.ComparedHeaders {
		if strings.TrimSpace(h) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("compare.compared_headers[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.TTL < 0 {
		errs = append(errs, FieldError{Field: "cache.ttl", Message: "must not be negative"})
	}
	if cfg.MaxEntries < 0 {
		errs = append(errs, FieldError{Field: "cache.max_entries", Message: "must not be negative"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must not be negative"})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.max_idle_conns",
				Message: fmt.Sprintf("must not exceed max_open_conns (%d)", cfg.SQLite.MaxOpenConns),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be 'sqlite' or 'memory', got %q", cfg.Backend),
		})
	}
	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "storage.recorder.async_buffer", Message: "must not be negative"})
	}
	if cfg.Recorder.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.recorder.write_timeout", Message: "must not be negative"})
	}

	return errs
}

func validateAlerts(cfg *AlertsConfig) []FieldError {
	var errs []FieldError

	switch cfg.Threshold {
	case "critical", "major":
	default:
		errs = append(errs, FieldError{
			Field:   "alerts.threshold",
			Message: fmt.Sprintf("must be 'critical' or 'major', got %q", cfg.Threshold),
		})
	}
	if !cfg.Enabled {
		return errs
	}
	if cfg.Endpoint == "" {
		errs = append(errs, FieldError{Field: "alerts.endpoint", Message: "is required when alerts are enabled"})
	} else if msg := checkHTTPURL(cfg.Endpoint); msg != "" {
		errs = append(errs, FieldError{Field: "alerts.endpoint", Message: msg})
	}
	if cfg.QueueSize <= 0 {
		errs = append(errs, FieldError{Field: "alerts.queue_size", Message: "must be positive"})
	}
	if cfg.RatePerSecond <= 0 {
		errs = append(errs, FieldError{Field: "alerts.rate_per_second", Message: "must be positive"})
	}

	return errs
}

func validateMaintenance(cfg *MaintenanceConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "maintenance.schedule",
				Message: fmt.Sprintf("invalid schedule %q: %v", cfg.Schedule, err),
			})
		}
	}
	if cfg.Retention < 0 {
		errs = append(errs, FieldError{Field: "maintenance.retention", Message: "must not be negative"})
	}
	if cfg.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "maintenance.max_records", Message: "must not be negative"})
	}
	if cfg.ArchiveBeforeDelete && cfg.ArchivePath == "" {
		errs = append(errs, FieldError{Field: "maintenance.archive_path", Message: "is required when archive_before_delete is set"})
	}

	return errs
}

func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if !strings.HasPrefix(cfg.ProbePath, "/") {
		errs = append(errs, FieldError{
			Field:   "health.probe_path",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.ProbePath),
		})
	}
	if cfg.ProbeTimeout < 0 {
		errs = append(errs, FieldError{Field: "health.probe_timeout", Message: "must not be negative"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error, got %q", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of json, text, console, got %q", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.Metrics.Path),
		})
	}
	for i := 1; i < len(cfg.Metrics.LegDurationBuckets); i++ {
		if cfg.Metrics.LegDurationBuckets[i] <= cfg.Metrics.LegDurationBuckets[i-1] {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.leg_duration_buckets",
				Message: "must be strictly increasing",
			})
			break
		}
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("must be one of always, never, ratio, got %q", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("must be between 0 and 1, got %g", cfg.Tracing.SampleRatio),
			})
		}
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("must be 'otlp', got %q", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "is required when tracing is enabled"})
		}
	}

	return errs
}

// checkHTTPURL returns a message describing why u is not an absolute
// http(s) URL, or "" when it is.
func checkHTTPURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Sprintf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "must include a host"
	}
	return ""
}
