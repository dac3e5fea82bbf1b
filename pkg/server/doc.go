// Package server assembles the proxy, query API, telemetry and background
// workers from configuration and runs them behind one HTTP listener.
//
// # Routes
//
// One listener serves everything:
//
//	/_parity/...   query API (prefix from parity.api_prefix)
//	/metrics       Prometheus exposition (telemetry.metrics.path)
//	/health        liveness
//	/ready         readiness: storage reachable and legacy probe passing
//	/version       build information
//	/              the dual-forwarding proxy
//
// # Lifecycle
//
// New opens the stores and builds the components; nothing is served until
// Start. Start also starts the maintenance scheduler (when enabled) and, with
// WithConfigWatch, the configuration watcher, whose reloads are applied with
// ApplyConfig.
//
// Shutdown runs in dependency order: the listener stops accepting requests,
// detached comparisons finish, the recorder and alert queues drain, then the
// stores and the tracer are closed.
package server
