// Package config provides configuration management for the parity proxy.
//
// Configuration is read from a YAML file, layered over built-in defaults,
// overridden by environment variables and validated as a whole.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("parity.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("parity.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PARITY_SECTION_FIELD:
//
//   - PARITY_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - PARITY_TARGETS_LEGACY_BASE_URL overrides targets.legacy.base_url
//   - PARITY_PARITY_SAMPLING_PERCENTAGE overrides parity.sampling_percentage
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast, reporting every invalid field)
//
// Boolean options and the sampling percentage are seeded before the file is
// decoded, so omitting them keeps the default while an explicit false or 0
// is honoured.
//
// # Hot Reload
//
// Watcher follows the file with fsnotify and reloads it after a debounce
// interval. A reload that fails validation is logged and discarded. The
// server applies the compare section and the sampling percentage from a
// reloaded configuration without a restart; other sections take effect on
// the next start.
//
// # Example Configuration
//
//	targets:
//	  legacy:
//	    base_url: "http://legacy:1337"
//	  replacement:
//	    base_url: "http://replacement:8080"
//
//	parity:
//	  sampling_percentage: 25
//	  selection_policy: "prefer-legacy"
//
//	compare:
//	  ignored_fields: ["_id", "identifier"]
//
//	telemetry:
//	  logging:
//	    level: "debug"
//	    format: "text"
package config
