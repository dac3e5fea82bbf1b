package proxy

import (
	"log/slog"
	"net/http"
	"strconv"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/forward"
)

// WriteOutcome relays a backend response to the client. Hop-by-hop headers
// are dropped and Content-Length is recomputed from the buffered body, which
// the forwarding transport has already decoded. A bodiless outcome that
// still carries a Content-Length (a HEAD answer) keeps the backend's value.
func WriteOutcome(w http.ResponseWriter, outcome *analysis.ForwardOutcome) {
	dst := w.Header()
	for name, values := range forward.SanitizeHeaders(outcome.Headers) {
		// Headers set by the proxy itself win.
		if _, ok := dst[name]; ok {
			continue
		}
		dst[name] = append([]string(nil), values...)
	}
	length := strconv.Itoa(len(outcome.Body))
	if upstream := outcome.Headers.Get("Content-Length"); upstream != "" && len(outcome.Body) == 0 {
		length = upstream
	}
	dst.Set("Content-Length", length)

	w.WriteHeader(outcome.Status())
	if len(outcome.Body) == 0 {
		return
	}
	if _, err := w.Write(outcome.Body); err != nil {
		slog.Debug("client went away while relaying response",
			"target", string(outcome.Target),
			"error", err,
		)
	}
}
