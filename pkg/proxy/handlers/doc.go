// Package handlers serves the query API mounted under parity.api_prefix
// (default "/_parity"):
//
//	GET  /analyses                 filtered, paginated analyses
//	GET  /analyses/export          every matching analysis as JSON or CSV
//	GET  /analyses/{id}            one analysis
//	GET  /metrics/compatibility    latest compatibility rollup
//	GET  /status                   health report with a replacement probe
//	POST /replay                   re-run a request against both targets
//	POST /maintenance/run          run a maintenance cycle now
//
// Filters on the list and export routes are path (prefix), method, match,
// endpoint, from and to (RFC 3339 or Unix milliseconds), order, skip and
// count. Errors use the proxy's JSON error body.
package handlers
