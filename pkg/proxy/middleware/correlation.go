package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/telemetry/logging"
)

// CorrelationMiddleware tags query API requests with a correlation id. A
// client-supplied X-Correlation-ID is kept; otherwise a UUID is generated.
// The id is echoed in the response and carried in the logging context.
//
// Proxied traffic must not pass through this middleware: the proxy handler
// decides whether the id is forwarded to the targets.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(forward.CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(forward.CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}
