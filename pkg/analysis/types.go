package analysis

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Target identifies one of the two backends a request is forwarded to.
type Target string

const (
	// TargetLegacy is the legacy glucose-data server.
	TargetLegacy Target = "legacy"

	// TargetReplacement is the reimplemented server under verification.
	TargetReplacement Target = "replacement"
)

// Other returns the opposite target.
func (t Target) Other() Target {
	if t == TargetLegacy {
		return TargetReplacement
	}
	return TargetLegacy
}

// Valid reports whether t is one of the known targets.
func (t Target) Valid() bool {
	return t == TargetLegacy || t == TargetReplacement
}

// Severity ranks how serious a discrepancy is.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityMajor    Severity = "Major"
	SeverityCritical Severity = "Critical"
)

// Rank orders severities so that the maximum can be taken. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Kind is the closed taxonomy of discrepancy kinds.
type Kind string

const (
	KindStatusCode    Kind = "StatusCode"
	KindHeader        Kind = "Header"
	KindContentType   Kind = "ContentType"
	KindBody          Kind = "Body"
	KindJSONStructure Kind = "JsonStructure"
	KindStringValue   Kind = "StringValue"
	KindNumericValue  Kind = "NumericValue"
	KindTimestamp     Kind = "Timestamp"
	KindArrayLength   Kind = "ArrayLength"
	KindPerformance   Kind = "Performance"
)

// OverallMatch summarizes an envelope's worst discrepancy or leg availability.
type OverallMatch string

const (
	MatchPerfect             OverallMatch = "PerfectMatch"
	MatchMinorDifferences    OverallMatch = "MinorDifferences"
	MatchMajorDifferences    OverallMatch = "MajorDifferences"
	MatchCriticalDifferences OverallMatch = "CriticalDifferences"
	MatchLegacyMissing       OverallMatch = "LegacyMissing"
	MatchReplacementMissing  OverallMatch = "ReplacementMissing"
	MatchBothMissing         OverallMatch = "BothMissing"
	MatchComparisonError     OverallMatch = "ComparisonError"
)

// AllMatches lists every OverallMatch value in a stable order.
var AllMatches = []OverallMatch{
	MatchPerfect,
	MatchMinorDifferences,
	MatchMajorDifferences,
	MatchCriticalDifferences,
	MatchLegacyMissing,
	MatchReplacementMissing,
	MatchBothMissing,
	MatchComparisonError,
}

// ParseMatch returns the OverallMatch named by s, case-insensitively.
func ParseMatch(s string) (OverallMatch, bool) {
	for _, m := range AllMatches {
		if strings.EqualFold(string(m), s) {
			return m, true
		}
	}
	return "", false
}

// MatchForSeverity maps the highest observed severity to a classification.
// An empty severity means no discrepancies were found.
func MatchForSeverity(s Severity) OverallMatch {
	switch s {
	case SeverityCritical:
		return MatchCriticalDifferences
	case SeverityMajor:
		return MatchMajorDifferences
	case SeverityMinor:
		return MatchMinorDifferences
	default:
		return MatchPerfect
	}
}

// Discrepancy is one detected difference between the legacy and replacement responses.
type Discrepancy struct {
	Kind             Kind     `json:"kind"`
	Path             string   `json:"path,omitempty"`
	LegacyValue      string   `json:"legacy_value"`
	ReplacementValue string   `json:"replacement_value"`
	Description      string   `json:"description"`
	Severity         Severity `json:"severity"`
}

// ForwardOutcome is the result of one leg. StatusCode is nil when the leg failed at
// the transport level, in which case Error describes the failure.
type ForwardOutcome struct {
	Target     Target        `json:"target"`
	StatusCode *int          `json:"status_code"`
	Headers    http.Header   `json:"headers,omitempty"`
	Body       []byte        `json:"-"`
	Elapsed    time.Duration `json:"elapsed"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
}

// Succeeded reports whether the leg produced an HTTP response.
func (o *ForwardOutcome) Succeeded() bool {
	return o != nil && o.StatusCode != nil
}

// Status returns the status code, or 0 for a failed leg.
func (o *ForwardOutcome) Status() int {
	if !o.Succeeded() {
		return 0
	}
	return *o.StatusCode
}

// MediaType returns the lower-cased media type of the Content-Type header
// without parameters.
func (o *ForwardOutcome) MediaType() string {
	if o == nil || o.Headers == nil {
		return ""
	}
	ct := o.Headers.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mt
}

// IsJSON reports whether the outcome's content type is JSON-like.
func (o *ForwardOutcome) IsJSON() bool {
	mt := o.MediaType()
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Envelope is the immutable record of one comparison.
type Envelope struct {
	// Identity
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id"`

	// Request
	Method      string `json:"method"`
	Path        string `json:"path"`
	Query       string `json:"query,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Endpoint    string `json:"endpoint"`

	AnalyzedAt time.Time `json:"analyzed_at"`

	// Legs
	LegacyStatus       *int          `json:"legacy_status"`
	ReplacementStatus  *int          `json:"replacement_status"`
	LegacyElapsed      time.Duration `json:"legacy_elapsed"`
	ReplacementElapsed time.Duration `json:"replacement_elapsed"`
	LegacyError        string        `json:"legacy_error,omitempty"`
	ReplacementError   string        `json:"replacement_error,omitempty"`

	// Comparison
	Discrepancies []Discrepancy   `json:"discrepancies"`
	CriticalCount int             `json:"critical_count"`
	MajorCount    int             `json:"major_count"`
	MinorCount    int             `json:"minor_count"`
	Match         OverallMatch    `json:"overall_match"`
	Summary       string          `json:"summary,omitempty"`
	Error         string          `json:"error,omitempty"`
	Patch         json.RawMessage `json:"patch,omitempty"`

	SelectedTarget Target `json:"selected_target"`
}

// Clone returns a deep copy so callers cannot mutate a stored envelope.
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.LegacyStatus = copyInt(e.LegacyStatus)
	c.ReplacementStatus = copyInt(e.ReplacementStatus)
	if e.Discrepancies != nil {
		c.Discrepancies = append([]Discrepancy(nil), e.Discrepancies...)
	}
	if e.Patch != nil {
		c.Patch = append(json.RawMessage(nil), e.Patch...)
	}
	return &c
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CountSeverities tallies discrepancies by severity.
func CountSeverities(ds []Discrepancy) (critical, major, minor int) {
	for _, d := range ds {
		switch d.Severity {
		case SeverityCritical:
			critical++
		case SeverityMajor:
			major++
		case SeverityMinor:
			minor++
		}
	}
	return critical, major, minor
}

// Query defines filter parameters for querying envelopes.
type Query struct {
	// Path matches envelopes whose request path starts with this prefix.
	Path string `json:"path,omitempty"`

	// Method filters by HTTP method.
	Method string `json:"method,omitempty"`

	// Match filters by overall classification.
	Match OverallMatch `json:"overall_match,omitempty"`

	// Endpoint filters by templated endpoint ("GET /api/v1/entries/{id}").
	Endpoint string `json:"endpoint,omitempty"`

	// Time range on AnalyzedAt, both inclusive.
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`

	// Pagination
	Skip  int `json:"skip,omitempty"`
	Count int `json:"count,omitempty"`

	// SortOrder is "desc" (newest first, default) or "asc".
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage is the persistence contract for envelopes.
// Implementations must be safe for concurrent use and append-only: an envelope
// is never updated in place once stored.
type Storage interface {
	// Store persists a new envelope. Storing an id twice is an error.
	Store(ctx context.Context, envelope *Envelope) error

	// Get returns the envelope with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Envelope, error)

	// Query returns envelopes matching the filters, newest first unless
	// the query asks otherwise.
	Query(ctx context.Context, query *Query) ([]*Envelope, error)

	// QueryStream streams matching envelopes without loading them all.
	// Both channels are closed when the query completes; errCh yields at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *Envelope, <-chan error, error)

	// Count returns the number of matching envelopes, ignoring pagination.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes matching envelopes. Used only by maintenance pruning.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases backend resources.
	Close() error
}

// Exporter writes envelopes in some serialization format.
type Exporter interface {
	Export(ctx context.Context, envelopes []*Envelope, w io.Writer) error
}

// EndpointMetric is the rollup of every stored envelope for one endpoint.
type EndpointMetric struct {
	Endpoint string `json:"endpoint"`

	Total               int64 `json:"total"`
	PerfectMatches      int64 `json:"perfect_matches"`
	MinorDifferences    int64 `json:"minor_differences"`
	MajorDifferences    int64 `json:"major_differences"`
	CriticalDifferences int64 `json:"critical_differences"`
	LegacyMissing       int64 `json:"legacy_missing"`
	ReplacementMissing  int64 `json:"replacement_missing"`
	BothMissing         int64 `json:"both_missing"`
	ComparisonErrors    int64 `json:"comparison_errors"`

	// Scored excludes BothMissing and ComparisonError envelopes.
	Scored int64 `json:"scored"`

	// CompatibilityScore is the percentage (0-100) of scored envelopes that were
	// PerfectMatch or MinorDifferences. It is 0 when nothing was scored.
	CompatibilityScore float64 `json:"compatibility_score"`

	AvgLegacyLatency      time.Duration `json:"avg_legacy_latency"`
	AvgReplacementLatency time.Duration `json:"avg_replacement_latency"`
	LastSeen              time.Time     `json:"last_seen"`
}

// Snapshot is an immutable, published rollup of the envelope history.
type Snapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Overall     EndpointMetric   `json:"overall"`
	Endpoints   []EndpointMetric `json:"endpoints"`
}
