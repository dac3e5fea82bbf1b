// Package alert pushes summaries of severe comparisons to an external HTTP sink.
// Delivery is best effort: failures are logged and counted, never surfaced to
// the request path.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nocturne-hq/parity/pkg/analysis"
)

// Threshold is the lowest overall match that raises an alert.
type Threshold string

const (
	ThresholdCritical Threshold = "critical"
	ThresholdMajor    Threshold = "major"
)

// ParseThreshold accepts "critical" (default when empty) or "major".
func ParseThreshold(s string) (Threshold, error) {
	switch Threshold(strings.ToLower(strings.TrimSpace(s))) {
	case "", ThresholdCritical:
		return ThresholdCritical, nil
	case ThresholdMajor:
		return ThresholdMajor, nil
	default:
		return "", fmt.Errorf("unknown alert threshold %q", s)
	}
}

// Reaches reports whether an overall match meets the threshold.
func (t Threshold) Reaches(m analysis.OverallMatch) bool {
	switch m {
	case analysis.MatchCriticalDifferences:
		return true
	case analysis.MatchMajorDifferences:
		return t == ThresholdMajor
	default:
		return false
	}
}

// Config configures the alert forwarder.
type Config struct {
	Endpoint      string
	Threshold     Threshold
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	QueueSize     int
	RatePerSecond float64
}

func (c *Config) applyDefaults() {
	if c.Threshold == "" {
		c.Threshold = ThresholdCritical
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
}

// Observer is told the outcome of each alert: "sent", "failed" or "dropped".
type Observer interface {
	ObserveAlert(result string)
}

// Payload is the JSON document posted to the sink.
type Payload struct {
	ID            string                 `json:"id"`
	CorrelationID string                 `json:"correlation_id"`
	Method        string                 `json:"method"`
	Path          string                 `json:"path"`
	Endpoint      string                 `json:"endpoint"`
	Match         analysis.OverallMatch  `json:"overall_match"`
	CriticalCount int                    `json:"critical_count"`
	MajorCount    int                    `json:"major_count"`
	MinorCount    int                    `json:"minor_count"`
	Summary       string                 `json:"summary"`
	AnalyzedAt    time.Time              `json:"analyzed_at"`
	Discrepancies []analysis.Discrepancy `json:"discrepancies"`
}

const maxPayloadDiscrepancies = 10

// NewPayload summarizes an envelope, keeping the most severe discrepancies first.
func NewPayload(e *analysis.Envelope) Payload {
	var top []analysis.Discrepancy
	for _, sev := range []analysis.Severity{analysis.SeverityCritical, analysis.SeverityMajor, analysis.SeverityMinor} {
		for _, d := range e.Discrepancies {
			if len(top) == maxPayloadDiscrepancies {
				break
			}
			if d.Severity == sev {
				top = append(top, d)
			}
		}
	}
	return Payload{
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		Method:        e.Method,
		Path:          e.Path,
		Endpoint:      e.Endpoint,
		Match:         e.Match,
		CriticalCount: e.CriticalCount,
		MajorCount:    e.MajorCount,
		MinorCount:    e.MinorCount,
		Summary:       e.Summary,
		AnalyzedAt:    e.AnalyzedAt,
		Discrepancies: top,
	}
}

// Forwarder queues alerts and delivers them from one background worker.
type Forwarder struct {
	config   Config
	client   *http.Client
	limiter  *rate.Limiter
	observer Observer
	queue    chan Payload
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
	logger   *slog.Logger
}

// NewForwarder creates a forwarder and starts its worker. observer may be nil.
func NewForwarder(config Config, observer Observer) *Forwarder {
	config.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	f := &Forwarder{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), 1),
		observer: observer,
		queue:    make(chan Payload, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   slog.Default().With("component", "alert.forwarder"),
	}

	f.wg.Add(1)
	go f.worker()
	return f
}

// Threshold returns the configured threshold.
func (f *Forwarder) Threshold() Threshold {
	return f.config.Threshold
}

// Notify enqueues an alert if the envelope reaches the threshold. It never
// blocks: a full queue drops the alert. It reports whether the alert was queued.
func (f *Forwarder) Notify(e *analysis.Envelope) bool {
	if !f.config.Threshold.Reaches(e.Match) {
		return false
	}
	if f.ctx.Err() != nil {
		return false
	}

	select {
	case f.queue <- NewPayload(e):
		return true
	default:
		f.logger.Warn("alert queue full, dropping alert",
			"id", e.ID,
			"correlation_id", e.CorrelationID,
			"capacity", f.config.QueueSize,
		)
		f.observe("dropped")
		return false
	}
}

// Close stops the worker. Queued alerts that have not started are discarded.
func (f *Forwarder) Close() error {
	f.once.Do(func() {
		f.cancel()
		f.wg.Wait()
	})
	return nil
}

func (f *Forwarder) worker() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		case p := <-f.queue:
			if err := f.limiter.Wait(f.ctx); err != nil {
				return
			}
			if err := f.deliver(p); err != nil {
				f.logger.Error("alert forwarding failed", "id", p.ID, "error", err)
				f.observe("failed")
				continue
			}
			f.observe("sent")
		}
	}
}

func (f *Forwarder) deliver(p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return NewForwardingError(p.ID, 0, err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.config.RetryBackoff << (attempt - 1)
			select {
			case <-f.ctx.Done():
				return NewForwardingError(p.ID, attempt, f.ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = f.post(body)
		if lastErr == nil {
			f.logger.Debug("alert sent", "id", p.ID, "attempt", attempt+1)
			return nil
		}
	}
	return NewForwardingError(p.ID, f.config.MaxRetries+1, lastErr)
}

func (f *Forwarder) post(body []byte) error {
	req, err := http.NewRequestWithContext(f.ctx, http.MethodPost, f.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert sink returned %d", resp.StatusCode)
	}
	return nil
}

func (f *Forwarder) observe(result string) {
	if f.observer != nil {
		f.observer.ObserveAlert(result)
	}
}
