package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// Features describes which proxy capabilities are switched on.
type Features struct {
	Comparison         bool `json:"comparison"`
	Caching            bool `json:"caching"`
	Correlation        bool `json:"correlation"`
	Alerting           bool `json:"alerting"`
	SamplingPercentage int  `json:"sampling_percentage"`
}

// ProbeResult is the outcome of the legacy reachability probe.
type ProbeResult struct {
	URL        string        `json:"url"`
	Reachable  bool          `json:"reachable"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
}

// Report is the body served by the status endpoint.
type Report struct {
	// Status is "ok" or "degraded"
	Status             string      `json:"status"`
	Legacy             ProbeResult `json:"legacy"`
	Features           Features    `json:"features"`
	CompatibilityScore *float64    `json:"compatibility_score"`
	SnapshotAt         *time.Time  `json:"snapshot_at,omitempty"`
	Timestamp          time.Time   `json:"timestamp"`
}

// ReporterConfig configures the legacy probe.
type ReporterConfig struct {
	// LegacyBaseURL is the legacy server's base URL.
	LegacyBaseURL string

	// ProbePath is requested with GET. Default: /api/v1/status.json
	ProbePath string

	// ProbeTimeout bounds the probe. Default: 2s
	ProbeTimeout time.Duration
}

// Reporter assembles status reports. Features and snapshot are read through
// callbacks so hot-reloaded settings and fresh rollups are always current.
type Reporter struct {
	probeURL string
	timeout  time.Duration
	client   *http.Client
	features func() Features
	snapshot func() *analysis.Snapshot
	logger   *slog.Logger
}

// NewReporter creates a reporter. Either callback may be nil.
func NewReporter(cfg ReporterConfig, features func() Features, snapshot func() *analysis.Snapshot) *Reporter {
	if cfg.ProbePath == "" {
		cfg.ProbePath = "/api/v1/status.json"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	return &Reporter{
		probeURL: strings.TrimRight(cfg.LegacyBaseURL, "/") + "/" + strings.TrimLeft(cfg.ProbePath, "/"),
		timeout:  cfg.ProbeTimeout,
		client:   &http.Client{Timeout: cfg.ProbeTimeout},
		features: features,
		snapshot: snapshot,
		logger:   slog.Default().With("component", "health.reporter"),
	}
}

// Report probes the legacy target and gathers features and the latest score.
// A failed probe yields a degraded report, never an error.
func (r *Reporter) Report(ctx context.Context) *Report {
	report := &Report{
		Status:    "ok",
		Legacy:    r.Probe(ctx),
		Timestamp: time.Now().UTC(),
	}
	if !report.Legacy.Reachable {
		report.Status = "degraded"
	}
	if r.features != nil {
		report.Features = r.features()
	}
	if r.snapshot != nil {
		if snap := r.snapshot(); snap != nil {
			score := snap.Overall.CompatibilityScore
			at := snap.GeneratedAt
			report.CompatibilityScore = &score
			report.SnapshotAt = &at
		}
	}
	return report
}

// Probe performs one GET against the legacy probe URL. Any response below 500
// counts as reachable.
func (r *Reporter) Probe(ctx context.Context) ProbeResult {
	result := ProbeResult{URL: r.probeURL}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.probeURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	resp, err := r.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		r.logger.WarnContext(ctx, "legacy probe failed", "url", r.probeURL, "error", err)
		return result
	}
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= http.StatusInternalServerError {
		result.Error = fmt.Sprintf("legacy returned %d", resp.StatusCode)
		return result
	}
	result.Reachable = true
	return result
}

// Check adapts the probe to a readiness CheckFunc.
func (r *Reporter) Check(ctx context.Context) error {
	if p := r.Probe(ctx); !p.Reachable {
		return fmt.Errorf("legacy unreachable: %s", p.Error)
	}
	return nil
}
