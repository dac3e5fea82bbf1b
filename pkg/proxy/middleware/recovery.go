package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"nocturne-hq/parity/pkg/proxy/types"
	"nocturne-hq/parity/pkg/telemetry/logging"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and answers 500
// with a server_error body. The stack trace is logged, never returned.
// http.ErrAbortHandler is re-raised so the server can abort the connection.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			errResp := types.NewServerError("An internal error occurred.")
			if id := logging.GetCorrelationID(r.Context()); id != "" {
				errResp = errResp.WithCorrelationID(id)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(errResp)
		}()

		next.ServeHTTP(w, r)
	})
}
