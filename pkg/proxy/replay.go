package proxy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/correlate"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/telemetry/logging"
	"nocturne-hq/parity/pkg/telemetry/tracing"
)

// ErrInvalidReplay is returned for a replay description that cannot be sent.
var ErrInvalidReplay = errors.New("invalid replay request")

// ReplaySource is where a replay is sent from. Host and Scheme are used to
// derive the replacement URL when it is self-forwarded.
type ReplaySource struct {
	Host   string
	Scheme string
}

// NewReplayRequest builds a cloned request from a described one.
func NewReplayRequest(method, path, rawQuery string, header http.Header, body []byte, src ReplaySource) (*forward.ClonedRequest, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(path, "/") {
		return nil, errors.Join(ErrInvalidReplay, errors.New("path must start with '/'"))
	}
	return &forward.ClonedRequest{
		Method:   method,
		Path:     path,
		RawQuery: strings.TrimPrefix(rawQuery, "?"),
		Header:   forward.SanitizeHeaders(header),
		Body:     body,
		Host:     src.Host,
		Scheme:   src.Scheme,
	}, nil
}

// Replay sends req to both targets, serving idempotent legs from the response
// cache when a fresh entry exists, and records the resulting envelope. It
// waits for both legs and also returns the targets answered from cache.
func (h *Handler) Replay(ctx context.Context, req *forward.ClonedRequest) (*analysis.Envelope, []analysis.Target) {
	h.observe(ModeReplayed)

	correlationID := h.correlator.CorrelationIDFromHeader(req.Header)
	if h.opts.CorrelationEnabled {
		correlate.Attach(req, correlationID)
	}
	ctx = logging.WithCorrelationID(ctx, correlationID)

	ctx, span := h.tracer.Start(ctx, "parity.replay",
		trace.WithAttributes(
			tracing.AttrCorrelationID.String(correlationID),
			tracing.AttrEndpoint.String(forward.NewFingerprint(req).Endpoint()),
		),
	)
	defer span.End()

	flight := h.forwarder.DispatchReplay(ctx, req)
	legacy, replacement := flight.Settle()
	selected := h.correlator.SelectSettled(legacy, replacement)
	e := h.correlator.Assemble(req, correlationID, legacy, replacement, selected)
	h.publish(ctx, span, e)

	var cached []analysis.Target
	for _, o := range []*analysis.ForwardOutcome{legacy, replacement} {
		if o.Cached {
			cached = append(cached, o.Target)
		}
	}
	return e, cached
}
