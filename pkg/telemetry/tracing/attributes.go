package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nocturne-hq/parity/pkg/analysis"
)

// Attribute keys for comparison spans.
const (
	AttrCorrelationID  = attribute.Key("parity.correlation_id")
	AttrEndpoint       = attribute.Key("parity.endpoint")
	AttrSelectedTarget = attribute.Key("parity.selected_target")
	AttrMatch          = attribute.Key("parity.overall_match")
	AttrCritical       = attribute.Key("parity.discrepancies.critical")
	AttrMajor          = attribute.Key("parity.discrepancies.major")
	AttrMinor          = attribute.Key("parity.discrepancies.minor")
	AttrSampled        = attribute.Key("parity.sampled")
)

// SetEnvelopeAttributes annotates span with an envelope's outcome. Both legs
// missing marks the span as failed.
func SetEnvelopeAttributes(span trace.Span, e *analysis.Envelope) {
	if e == nil {
		return
	}
	span.SetAttributes(
		AttrCorrelationID.String(e.CorrelationID),
		AttrEndpoint.String(e.Endpoint),
		AttrSelectedTarget.String(string(e.SelectedTarget)),
		AttrMatch.String(string(e.Match)),
		AttrCritical.Int(e.CriticalCount),
		AttrMajor.Int(e.MajorCount),
		AttrMinor.Int(e.MinorCount),
	)
	if e.Match == analysis.MatchBothMissing {
		span.SetStatus(codes.Error, "both targets unavailable")
	}
}

// SetError records err on span and marks it failed.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
