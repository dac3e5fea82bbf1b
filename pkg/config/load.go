package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARITY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected so
// a misspelt option does not silently fall back to its default.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	// Lists decode onto the seeded defaults; clear them so YAML replaces
	// rather than merges, and let ApplyDefaults restore omitted ones.
	cfg.Compare.TimestampFields = nil
	cfg.Compare.CriticalFields = nil
	cfg.Compare.ComparedHeaders = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PARITY_SECTION_FIELD (e.g., PARITY_PROXY_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file on top of the defaults
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are ignored and the file value is kept.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	envString("PROXY_LISTEN_ADDRESS", &cfg.Proxy.ListenAddress)
	envDuration("PROXY_READ_TIMEOUT", &cfg.Proxy.ReadTimeout)
	envDuration("PROXY_WRITE_TIMEOUT", &cfg.Proxy.WriteTimeout)
	envDuration("PROXY_IDLE_TIMEOUT", &cfg.Proxy.IdleTimeout)
	envDuration("PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	envInt("PROXY_MAX_HEADER_BYTES", &cfg.Proxy.MaxHeaderBytes)

	// Target overrides
	applyTargetEnvOverrides("LEGACY", &cfg.Targets.Legacy)
	applyTargetEnvOverrides("REPLACEMENT", &cfg.Targets.Replacement)

	// Parity overrides
	envBool("PARITY_COMPARISON_ENABLED", &cfg.Parity.ComparisonEnabled)
	envBool("PARITY_CORRELATION_ENABLED", &cfg.Parity.CorrelationEnabled)
	envFloat("PARITY_SAMPLING_PERCENTAGE", &cfg.Parity.SamplingPercentage)
	envInt64("PARITY_MAX_BODY_BYTES", &cfg.Parity.MaxBodyBytes)
	envString("PARITY_SELECTION_POLICY", &cfg.Parity.SelectionPolicy)
	envBool("PARITY_ADD_RESPONSE_HEADERS", &cfg.Parity.AddResponseHeaders)
	envString("PARITY_API_PREFIX", &cfg.Parity.APIPrefix)
	envList("PARITY_API_ALLOWED_ORIGINS", &cfg.Parity.APIAllowedOrigins)

	// Compare overrides
	envList("COMPARE_IGNORED_FIELDS", &cfg.Compare.IgnoredFields)
	envList("COMPARE_TIMESTAMP_FIELDS", &cfg.Compare.TimestampFields)
	envList("COMPARE_CRITICAL_FIELDS", &cfg.Compare.CriticalFields)
	envList("COMPARE_COMPARED_HEADERS", &cfg.Compare.ComparedHeaders)
	envFloat("COMPARE_NUMERIC_EPSILON", &cfg.Compare.NumericEpsilon)

	// Cache overrides
	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envDuration("CACHE_TTL", &cfg.Cache.TTL)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)

	// Alert overrides
	envBool("ALERTS_ENABLED", &cfg.Alerts.Enabled)
	envString("ALERTS_ENDPOINT", &cfg.Alerts.Endpoint)
	envString("ALERTS_THRESHOLD", &cfg.Alerts.Threshold)

	// Maintenance overrides
	envBool("MAINTENANCE_ENABLED", &cfg.Maintenance.Enabled)
	envString("MAINTENANCE_SCHEDULE", &cfg.Maintenance.Schedule)
	envDuration("MAINTENANCE_RETENTION", &cfg.Maintenance.Retention)
	envInt64("MAINTENANCE_MAX_RECORDS", &cfg.Maintenance.MaxRecords)
	envString("MAINTENANCE_SNAPSHOT_PATH", &cfg.Maintenance.SnapshotPath)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

func applyTargetEnvOverrides(name string, t *TargetConfig) {
	prefix := "TARGETS_" + name + "_"
	envString(prefix+"BASE_URL", &t.BaseURL)
	envDuration(prefix+"TIMEOUT", &t.Timeout)
	envInt(prefix+"MAX_RETRIES", &t.MaxRetries)
	envDuration(prefix+"RETRY_BACKOFF", &t.RetryBackoff)
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(key string, dst *int64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// envList reads a comma-separated list.
func envList(key string, dst *[]string) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return
	}
	out := []string{}
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
