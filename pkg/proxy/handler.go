package proxy

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/correlate"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/proxy/types"
	"nocturne-hq/parity/pkg/telemetry/logging"
	"nocturne-hq/parity/pkg/telemetry/tracing"
)

// Response headers added when Options.AddResponseHeaders is set.
const (
	SelectedTargetHeader = "X-Parity-Selected-Target"
)

// Request handling modes reported to the Observer.
const (
	ModeCompared    = "compared"
	ModeSampledOut  = "sampled_out"
	ModePassthrough = "passthrough"
	ModeDelegated   = "delegated"
	ModeRejected    = "rejected"
	ModeReplayed    = "replayed"
)

// Recorder persists assembled envelopes. *recorder.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, e *analysis.Envelope) error
}

// Notifier forwards envelopes that reach the alert threshold. *alert.Forwarder implements it.
type Notifier interface {
	Notify(e *analysis.Envelope) bool
}

// Observer receives request and comparison events. The metrics collector implements it.
type Observer interface {
	RecordRequest(mode string)
	RecordComparison(e *analysis.Envelope)
}

// Options are the handler's feature flags.
type Options struct {
	// ComparisonEnabled dual-forwards requests. When false every request is
	// passed through to the preferred target.
	ComparisonEnabled bool

	// CorrelationEnabled threads X-Correlation-ID through both legs.
	CorrelationEnabled bool

	// SamplingPercentage is the share of requests, 0 to 100, that are dual-forwarded.
	SamplingPercentage float64

	// MaxBodyBytes bounds the buffered request body.
	MaxBodyBytes int64

	// AddResponseHeaders adds X-Correlation-ID and X-Parity-Selected-Target.
	AddResponseHeaders bool
}

// Handler is the dual-forwarding proxy. Each inbound request is cloned, sent
// to both targets, answered from the selected leg and compared once both legs
// settle. In middleware mode requests the proxy forwarded to itself are handed
// to the wrapped application handler.
type Handler struct {
	forwarder  *forward.Forwarder
	correlator *correlate.Correlator
	recorder   Recorder
	alerts     Notifier
	observer   Observer
	tracer     *tracing.Tracer
	next       http.Handler
	opts       Options
	logger     *slog.Logger

	sampling atomic.Uint64
	sample   func() float64

	pending sync.WaitGroup
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithNotifier sets the alert forwarder.
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) { h.alerts = n }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) HandlerOption {
	return func(h *Handler) { h.observer = o }
}

// WithTracer sets the tracer used for comparison spans.
func WithTracer(t *tracing.Tracer) HandlerOption {
	return func(h *Handler) { h.tracer = t }
}

// WithNext enables middleware mode: forwarded requests arriving back at the
// proxy are served by next instead of being refused.
func WithNext(next http.Handler) HandlerOption {
	return func(h *Handler) { h.next = next }
}

// NewHandler creates the proxy handler.
func NewHandler(fwd *forward.Forwarder, corr *correlate.Correlator, rec Recorder, opts Options, options ...HandlerOption) *Handler {
	h := &Handler{
		forwarder:  fwd,
		correlator: corr,
		recorder:   rec,
		opts:       opts,
		logger:     slog.Default().With("component", "proxy"),
		sample:     rand.Float64,
	}
	for _, o := range options {
		o(h)
	}
	if h.tracer == nil {
		h.tracer = tracing.Noop()
	}
	h.SetSamplingPercentage(opts.SamplingPercentage)
	return h
}

// SetSamplingPercentage changes the dual-forwarded share of traffic. Values
// are clamped to [0, 100].
func (h *Handler) SetSamplingPercentage(p float64) {
	p = math.Max(0, math.Min(100, p))
	h.sampling.Store(math.Float64bits(p))
}

// SamplingPercentage returns the share of traffic currently dual-forwarded.
func (h *Handler) SamplingPercentage() float64 {
	return math.Float64frombits(h.sampling.Load())
}

// Wait blocks until every detached comparison has finished.
func (h *Handler) Wait() {
	h.pending.Wait()
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(forward.LoopHeader) != "" {
		if h.next != nil {
			h.observe(ModeDelegated)
			h.next.ServeHTTP(w, r)
			return
		}
		h.observe(ModeRejected)
		h.logger.WarnContext(r.Context(), "forwarding loop detected", "method", r.Method, "path", r.URL.Path)
		// Marks the 508 as ours so the forwarding leg reports a loop rather
		// than relaying it as a backend answer.
		w.Header().Set(forward.LoopHeader, "rejected")
		WriteErrorResponse(w, types.NewLoopDetectedError())
		return
	}

	req, err := forward.Clone(r, h.opts.MaxBodyBytes)
	if err != nil {
		h.observe(ModeRejected)
		h.logger.WarnContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteErrorResponse(w, HandleError(err))
		return
	}

	correlationID := h.correlator.CorrelationID(r)
	if h.opts.CorrelationEnabled {
		correlate.Attach(req, correlationID)
	}
	ctx := logging.WithCorrelationID(r.Context(), correlationID)

	if !h.opts.ComparisonEnabled {
		h.observe(ModePassthrough)
		h.passThrough(ctx, w, req, correlationID)
		return
	}
	if !h.sampled() {
		h.observe(ModeSampledOut)
		h.passThrough(ctx, w, req, correlationID)
		return
	}

	h.observe(ModeCompared)
	h.compare(ctx, w, req, correlationID)
}

// sampled decides whether a request is dual-forwarded.
func (h *Handler) sampled() bool {
	p := h.SamplingPercentage()
	if p >= 100 {
		return true
	}
	if p <= 0 {
		return false
	}
	return h.sample()*100 < p
}

// compare dual-forwards req, answers from the selected leg and finishes the
// comparison in a detached goroutine.
func (h *Handler) compare(ctx context.Context, w http.ResponseWriter, req *forward.ClonedRequest, correlationID string) {
	fp := forward.NewFingerprint(req)
	ctx = logging.WithEndpoint(ctx, fp.Endpoint())
	ctx, span := h.tracer.Start(ctx, "parity.compare",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			tracing.AttrCorrelationID.String(correlationID),
			tracing.AttrEndpoint.String(fp.Endpoint()),
			tracing.AttrSampled.Bool(true),
			attribute.String("http.request.method", req.Method),
		),
	)

	flight := h.forwarder.Dispatch(ctx, req)
	selected, outcome := h.correlator.Select(flight)
	h.respond(w, outcome, selected, correlationID)

	// The client is answered; the comparison must survive its disconnect.
	detached := context.WithoutCancel(ctx)
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		defer span.End()
		h.finish(detached, span, flight, req, correlationID, selected)
	}()
}

// finish waits for both legs, assembles the envelope and hands it to the
// background queues.
func (h *Handler) finish(ctx context.Context, span trace.Span, flight *forward.Flight, req *forward.ClonedRequest, correlationID string, selected analysis.Target) {
	legacy, replacement := flight.Settle()
	e := h.correlator.Assemble(req, correlationID, legacy, replacement, selected)
	h.publish(ctx, span, e)
}

// publish records, alerts on and reports one envelope.
func (h *Handler) publish(ctx context.Context, span trace.Span, e *analysis.Envelope) {
	tracing.SetEnvelopeAttributes(span, e)
	if h.observer != nil {
		h.observer.RecordComparison(e)
	}

	level := slog.LevelWarn
	switch e.Match {
	case analysis.MatchPerfect:
		level = slog.LevelDebug
	case analysis.MatchMinorDifferences:
		level = slog.LevelInfo
	}
	h.logger.Log(ctx, level, "comparison completed",
		"id", e.ID,
		"method", e.Method,
		"path", e.Path,
		"overall_match", string(e.Match),
		"discrepancies", len(e.Discrepancies),
		"selected_target", string(e.SelectedTarget),
	)

	if err := h.recorder.Record(ctx, e); err != nil {
		var rerr *analysis.RecorderError
		if !errors.As(err, &rerr) {
			h.logger.ErrorContext(ctx, "failed to record analysis", "id", e.ID, "error", err)
		}
	}
	if h.alerts != nil {
		h.alerts.Notify(e)
	}
}

// passThrough forwards req to the preferred target only, falling back to the
// other target on transport failure. Nothing is recorded.
func (h *Handler) passThrough(ctx context.Context, w http.ResponseWriter, req *forward.ClonedRequest, correlationID string) {
	target := h.correlator.Policy().Preferred()
	outcome := h.forwarder.Forward(ctx, req, target)
	if !outcome.Succeeded() && ctx.Err() == nil {
		h.logger.WarnContext(ctx, "preferred target unavailable, falling back",
			"target", string(target),
			"error", outcome.Error,
		)
		target = target.Other()
		outcome = h.forwarder.Forward(ctx, req, target)
	}
	h.respond(w, outcome, target, correlationID)
}

// respond writes the selected outcome, or a 502 when it has no response.
func (h *Handler) respond(w http.ResponseWriter, outcome *analysis.ForwardOutcome, selected analysis.Target, correlationID string) {
	if h.opts.AddResponseHeaders {
		w.Header().Set(forward.CorrelationHeader, correlationID)
		w.Header().Set(SelectedTargetHeader, string(selected))
	}
	if outcome == nil || !outcome.Succeeded() {
		WriteErrorResponse(w, types.NewUpstreamUnavailableError("no target produced a response").WithCorrelationID(correlationID))
		return
	}
	WriteOutcome(w, outcome)
}

func (h *Handler) observe(mode string) {
	if h.observer != nil {
		h.observer.RecordRequest(mode)
	}
}
