// Package tracing wires OpenTelemetry into the proxy.
//
// New installs a global tracer provider exporting over OTLP/gRPC and the W3C
// trace-context propagator. The proxy opens one span per inbound request; the
// forward clients open a child span per leg and inject traceparent into the
// outbound request, so a single trace shows both targets side by side.
// Disabled tracing installs nothing and costs a no-op span per request.
package tracing
