package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parity.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
targets:
  legacy:
    base_url: "http://legacy:1337"
`

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
proxy:
  listen_address: "0.0.0.0:9090"
  read_timeout: "45s"

targets:
  legacy:
    base_url: "http://legacy:1337"
    timeout: "5s"
    max_retries: 1
  replacement:
    base_url: "http://replacement:8080"

parity:
  sampling_percentage: 25
  selection_policy: "prefer-legacy"

compare:
  ignored_fields: ["_id"]
  numeric_epsilon: 0.001

storage:
  backend: "memory"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != 45*time.Second {
		t.Errorf("expected read timeout %v, got %v", 45*time.Second, cfg.Proxy.ReadTimeout)
	}
	if cfg.Targets.Legacy.Timeout != 5*time.Second {
		t.Errorf("expected legacy timeout 5s, got %v", cfg.Targets.Legacy.Timeout)
	}
	if cfg.Targets.Legacy.MaxRetries != 1 {
		t.Errorf("expected legacy max retries 1, got %d", cfg.Targets.Legacy.MaxRetries)
	}
	if cfg.Targets.Replacement.Timeout != DefaultTargetTimeout {
		t.Errorf("expected default replacement timeout, got %v", cfg.Targets.Replacement.Timeout)
	}
	if cfg.Parity.SamplingPercentage != 25 {
		t.Errorf("expected sampling 25, got %g", cfg.Parity.SamplingPercentage)
	}
	if cfg.Parity.SelectionPolicy != "prefer-legacy" {
		t.Errorf("expected prefer-legacy, got %q", cfg.Parity.SelectionPolicy)
	}
	if diff := cmp.Diff([]string{"_id"}, cfg.Compare.IgnoredFields); diff != "" {
		t.Errorf("ignored fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultCriticalFields, cfg.Compare.CriticalFields); diff != "" {
		t.Errorf("critical fields mismatch (-want +got):\n%s", diff)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	want := NewDefaultConfig()
	want.Targets.Legacy.BaseURL = "http://legacy:1337"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_ExplicitFalseAndZero(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
parity:
  comparison_enabled: false
  add_response_headers: false
  sampling_percentage: 0
cache:
  enabled: false
maintenance:
  enabled: false
  retention: 0s
compare:
  timestamp_fields: []
`))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Parity.ComparisonEnabled {
		t.Error("expected comparison disabled")
	}
	if cfg.Parity.AddResponseHeaders {
		t.Error("expected response headers disabled")
	}
	if cfg.Parity.SamplingPercentage != 0 {
		t.Errorf("expected sampling 0, got %g", cfg.Parity.SamplingPercentage)
	}
	if !cfg.Parity.CorrelationEnabled {
		t.Error("expected correlation to keep its default")
	}
	if cfg.Cache.Enabled {
		t.Error("expected cache disabled")
	}
	if cfg.Maintenance.Enabled {
		t.Error("expected maintenance disabled")
	}
	if cfg.Maintenance.Retention != 0 {
		t.Errorf("expected retention disabled, got %v", cfg.Maintenance.Retention)
	}
	if len(cfg.Compare.TimestampFields) != 0 {
		t.Errorf("expected no timestamp fields, got %v", cfg.Compare.TimestampFields)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "proxy: [unclosed",
			wantErr: "failed to parse",
		},
		{
			name:    "unknown key",
			content: minimalConfig + "parity:\n  samplng_percentage: 10\n",
			wantErr: "failed to parse",
		},
		{
			name:    "missing legacy base url",
			content: "proxy:\n  listen_address: \"127.0.0.1:8080\"\n",
			wantErr: "targets.legacy.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Proxy.ListenAddress != DefaultListenAddress {
		t.Errorf("expected default listen address, got %q", cfg.Proxy.ListenAddress)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("PARITY_PROXY_LISTEN_ADDRESS", "0.0.0.0:7070")
	t.Setenv("PARITY_TARGETS_REPLACEMENT_BASE_URL", "http://replacement:9000")
	t.Setenv("PARITY_TARGETS_LEGACY_TIMEOUT", "3s")
	t.Setenv("PARITY_PARITY_SAMPLING_PERCENTAGE", "12.5")
	t.Setenv("PARITY_PARITY_COMPARISON_ENABLED", "false")
	t.Setenv("PARITY_COMPARE_IGNORED_FIELDS", "_id, identifier ,")
	t.Setenv("PARITY_CACHE_MAX_ENTRIES", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("expected env listen address, got %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Targets.Replacement.BaseURL != "http://replacement:9000" {
		t.Errorf("expected env replacement base url, got %q", cfg.Targets.Replacement.BaseURL)
	}
	if cfg.Targets.Legacy.Timeout != 3*time.Second {
		t.Errorf("expected legacy timeout 3s, got %v", cfg.Targets.Legacy.Timeout)
	}
	if cfg.Parity.SamplingPercentage != 12.5 {
		t.Errorf("expected sampling 12.5, got %g", cfg.Parity.SamplingPercentage)
	}
	if cfg.Parity.ComparisonEnabled {
		t.Error("expected comparison disabled by env")
	}
	if diff := cmp.Diff([]string{"_id", "identifier"}, cfg.Compare.IgnoredFields); diff != "" {
		t.Errorf("ignored fields mismatch (-want +got):\n%s", diff)
	}
	if cfg.Cache.MaxEntries != DefaultCacheMaxEntries {
		t.Errorf("malformed override should be ignored, got %d", cfg.Cache.MaxEntries)
	}
}

func TestLoadConfigWithEnvOverrides_Invalid(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("PARITY_PARITY_SAMPLING_PERCENTAGE", "150")

	_, err := LoadConfigWithEnvOverrides(path)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Errors[0].Field != "parity.sampling_percentage" {
		t.Errorf("unexpected field %q", verr.Errors[0].Field)
	}
}
