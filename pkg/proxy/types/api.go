package types

import (
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// ReplayRequest describes a request to re-run against both targets.
type ReplayRequest struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   string              `json:"query,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`

	// Body is sent verbatim.
	Body string `json:"body,omitempty"`

	// AnalysisID replays a stored analysis's method, path and query
	// instead of the fields above. Request bodies are not stored, so only
	// bodiless requests replay faithfully this way.
	AnalysisID string `json:"analysis_id,omitempty"`
}

// ReplayResponse is the result of a replay.
type ReplayResponse struct {
	Analysis *analysis.Envelope `json:"analysis"`

	// Cached lists the targets whose outcome came from the response cache.
	Cached []analysis.Target `json:"cached,omitempty"`
}

// AnalysesResponse is one page of stored analyses.
type AnalysesResponse struct {
	Analyses []*analysis.Envelope `json:"analyses"`
	Total    int64                `json:"total"`
	Skip     int                  `json:"skip"`
	Count    int                  `json:"count"`
}

// MaintenanceResponse reports a manually triggered maintenance cycle.
type MaintenanceResponse struct {
	StartedAt  time.Time          `json:"started_at"`
	DurationMS int64              `json:"duration_ms"`
	Pruned     int64              `json:"pruned"`
	Snapshot   *analysis.Snapshot `json:"snapshot"`
}
