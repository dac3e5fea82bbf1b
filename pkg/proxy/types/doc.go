// Package types defines the JSON bodies the proxy itself produces: error
// responses on the proxied surface and the request and response shapes of
// the query API.
package types
