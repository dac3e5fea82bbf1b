// Package correlate ties the two legs of a mirrored request together and
// assembles the comparison envelope.
package correlate

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/compare"
	"nocturne-hq/parity/pkg/forward"
)

// SelectionPolicy decides which leg's response the client receives.
type SelectionPolicy string

const (
	PreferReplacement SelectionPolicy = "prefer-replacement"
	PreferLegacy      SelectionPolicy = "prefer-legacy"
)

// ParseSelectionPolicy accepts the configured policy name. Empty selects
// PreferReplacement.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PreferReplacement:
		return PreferReplacement, nil
	case PreferLegacy:
		return PreferLegacy, nil
	default:
		return "", fmt.Errorf("unknown selection policy %q", s)
	}
}

// Preferred returns the target the policy tries first.
func (p SelectionPolicy) Preferred() analysis.Target {
	if p == PreferLegacy {
		return analysis.TargetLegacy
	}
	return analysis.TargetReplacement
}

// Correlator issues correlation ids and builds envelopes.
type Correlator struct {
	policy     SelectionPolicy
	comparator *compare.Comparator
	now        func() time.Time
}

// New creates a Correlator.
func New(policy SelectionPolicy, comparator *compare.Comparator) *Correlator {
	if policy == "" {
		policy = PreferReplacement
	}
	return &Correlator{
		policy:     policy,
		comparator: comparator,
		now:        time.Now,
	}
}

// Policy returns the selection policy in effect.
func (c *Correlator) Policy() SelectionPolicy {
	return c.policy
}

// CorrelationID returns the inbound X-Correlation-ID, or a new UUID v4.
func (c *Correlator) CorrelationID(r *http.Request) string {
	return c.CorrelationIDFromHeader(r.Header)
}

// CorrelationIDFromHeader is CorrelationID for a bare header set.
func (c *Correlator) CorrelationIDFromHeader(h http.Header) string {
	if id := strings.TrimSpace(h.Get(forward.CorrelationHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

// Attach threads the correlation id through both forwarded legs.
func Attach(req *forward.ClonedRequest, correlationID string) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(forward.CorrelationHeader, correlationID)
}

// Select waits for the preferred leg and returns it when it produced a
// response, otherwise waits for and returns the other leg.
func (c *Correlator) Select(flight *forward.Flight) (analysis.Target, *analysis.ForwardOutcome) {
	preferred := c.policy.Preferred()
	if out := flight.Await(preferred); out.Succeeded() {
		return preferred, out
	}
	other := preferred.Other()
	if out := flight.Await(other); out.Succeeded() {
		return other, out
	}
	return preferred, flight.Await(preferred)
}

// SelectSettled applies the policy to two settled outcomes.
func (c *Correlator) SelectSettled(legacy, replacement *analysis.ForwardOutcome) analysis.Target {
	preferred := c.policy.Preferred()
	byTarget := map[analysis.Target]*analysis.ForwardOutcome{
		analysis.TargetLegacy:      legacy,
		analysis.TargetReplacement: replacement,
	}
	if byTarget[preferred].Succeeded() || !byTarget[preferred.Other()].Succeeded() {
		return preferred
	}
	return preferred.Other()
}

// Assemble compares both outcomes and builds the envelope.
func (c *Correlator) Assemble(req *forward.ClonedRequest, correlationID string, legacy, replacement *analysis.ForwardOutcome, selected analysis.Target) *analysis.Envelope {
	fp := forward.NewFingerprint(req)
	res := c.comparator.Compare(legacy, replacement)

	e := &analysis.Envelope{
		ID:                 uuid.NewString(),
		CorrelationID:      correlationID,
		Method:             fp.Method,
		Path:               req.Path,
		Query:              req.RawQuery,
		Fingerprint:        fp.Key(),
		Endpoint:           fp.Endpoint(),
		AnalyzedAt:         c.now().UTC(),
		LegacyStatus:       legacy.StatusCode,
		ReplacementStatus:  replacement.StatusCode,
		LegacyElapsed:      legacy.Elapsed,
		ReplacementElapsed: replacement.Elapsed,
		LegacyError:        legacy.Error,
		ReplacementError:   replacement.Error,
		Discrepancies:      res.Discrepancies,
		Match:              res.Match,
		Patch:              res.Patch,
		SelectedTarget:     selected,
	}
	if e.Discrepancies == nil {
		e.Discrepancies = []analysis.Discrepancy{}
	}
	e.CriticalCount, e.MajorCount, e.MinorCount = analysis.CountSeverities(e.Discrepancies)
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	e.Summary = summarize(e)
	return e
}

func summarize(e *analysis.Envelope) string {
	switch e.Match {
	case analysis.MatchPerfect:
		return "responses match"
	case analysis.MatchLegacyMissing:
		return "legacy target unavailable: " + e.LegacyError
	case analysis.MatchReplacementMissing:
		return "replacement target unavailable: " + e.ReplacementError
	case analysis.MatchBothMissing:
		return "both targets unavailable"
	case analysis.MatchComparisonError:
		return "comparison failed: " + e.Error
	}
	return fmt.Sprintf("%d discrepancies (%d critical, %d major, %d minor)",
		len(e.Discrepancies), e.CriticalCount, e.MajorCount, e.MinorCount)
}
