// Package telemetry groups the proxy's observability packages.
//
//   - logging: slog setup, correlation fields from context, secret redaction
//   - metrics: Prometheus collector for comparisons, legs and background queues
//   - tracing: OpenTelemetry spans for requests and legs
//   - health: liveness, readiness and the status report
package telemetry
