// Package middleware provides the HTTP middleware shared by the proxy and the
// query API.
//
// The proxy listener is wrapped as
//
//	Chain(handler, RecoveryMiddleware, LoggingMiddleware)
//
// and the query API additionally gets CorrelationMiddleware and, when
// parity.api_allowed_origins is set, CORSMiddleware:
//
//	Chain(api, CorrelationMiddleware, CORSMiddleware(NewCORSConfig(origins)))
//
// CorrelationMiddleware is never applied to proxied traffic: whether an
// X-Correlation-ID is threaded to the targets is the proxy handler's call.
//
// # Logging
//
// LoggingMiddleware writes one "request completed" entry per request with
// method, path, status, bytes and latency. Entries are logged at WARN for 4xx
// and ERROR for 5xx responses.
//
// # Recovery
//
// RecoveryMiddleware converts handler panics into a 500 server_error body:
//
//	{
//	  "error": {
//	    "message": "An internal error occurred.",
//	    "type": "server_error",
//	    "correlation_id": "6f1c..."
//	  }
//	}
//
// The stack trace is logged but never returned to the client.
package middleware
