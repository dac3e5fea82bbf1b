// Package proxy is the dual-forwarding HTTP handler that sits in front of the
// legacy and replacement glucose servers.
//
// Every inbound request is cloned once and sent to both targets concurrently.
// The client is answered from the leg chosen by the selection policy as soon
// as that leg settles; the slower leg never adds latency. Once both legs have
// settled the pair is compared in a detached goroutine, and the resulting
// envelope is recorded and, above the alert threshold, forwarded.
//
// # Request modes
//
//   - compared: dual-forwarded and recorded
//   - sampled_out: outside sampling_percentage, passed through unrecorded
//   - passthrough: comparison disabled, passed through unrecorded
//   - rejected: body too large, unreadable, or a forwarding loop
//   - delegated: a forwarded request handed to the wrapped application
//   - replayed: re-run through the query API or CLI
//
// Pass-through requests go to the preferred target and fall back to the
// other one on transport failure.
//
// # Loops
//
// Outbound legs carry X-Parity-Forwarded. When the replacement base URL is
// unset the replacement is the host the request arrived on, so the proxy can
// receive its own legs. A Handler built with WithNext serves those with the
// wrapped application; without one they are refused with 508.
//
// # Errors
//
// Only two failures reach the client: an unreadable or oversized body (400
// or 413) and both legs failing (502 upstream_unavailable). Everything else
// is recorded in the envelope or logged.
//
// # Shutdown
//
// Wait blocks until detached comparisons have finished. Call it after the
// HTTP server stops accepting requests and before closing the recorder.
package proxy
