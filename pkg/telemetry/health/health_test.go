package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

func TestNew_DefaultTimeout(t *testing.T) {
	if c := New(0); c.checkTimeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.checkTimeout)
	}
	if c := New(time.Second); c.checkTimeout != time.Second {
		t.Errorf("timeout = %v, want 1s", c.checkTimeout)
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, "ready"},
		{
			"all healthy",
			map[string]CheckFunc{
				"storage": func(context.Context) error { return nil },
				"legacy":  func(context.Context) error { return nil },
			},
			"ready",
		},
		{
			"one failing",
			map[string]CheckFunc{
				"storage": func(context.Context) error { return nil },
				"legacy":  func(context.Context) error { return errors.New("connection refused") },
			},
			"degraded",
		},
		{
			"timeout",
			map[string]CheckFunc{
				"slow": func(ctx context.Context) error { <-ctx.Done(); time.Sleep(10 * time.Millisecond); return nil },
			},
			"degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(50 * time.Millisecond)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			got := c.CheckReadiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q (%+v)", got.Status, tt.want, got.Checks)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("results = %d, want %d", len(got.Checks), len(tt.checks))
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("storage", func(context.Context) error { return errors.New("closed") })

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d, want 405", rec.Code)
	}

	if got := c.Names(); len(got) != 1 || got[0] != "storage" {
		t.Errorf("Names() = %v", got)
	}
}

func TestReporter_Reachable(t *testing.T) {
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status.json" {
			t.Errorf("probe path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer legacy.Close()

	snap := &analysis.Snapshot{
		GeneratedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Overall:     analysis.EndpointMetric{CompatibilityScore: 99.2},
	}
	rep := NewReporter(
		ReporterConfig{LegacyBaseURL: legacy.URL + "/"},
		func() Features { return Features{Comparison: true, Caching: true, SamplingPercentage: 25} },
		func() *analysis.Snapshot { return snap },
	)

	report := rep.Report(context.Background())
	if report.Status != "ok" || !report.Legacy.Reachable || report.Legacy.StatusCode != 200 {
		t.Errorf("report = %+v", report)
	}
	if report.CompatibilityScore == nil || *report.CompatibilityScore != 99.2 {
		t.Errorf("score = %v", report.CompatibilityScore)
	}
	if !report.Features.Caching || report.Features.SamplingPercentage != 25 {
		t.Errorf("features = %+v", report.Features)
	}
}

func TestReporter_Degraded(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }, time.Second},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legacy := httptest.NewServer(tt.handler)
			defer legacy.Close()

			rep := NewReporter(ReporterConfig{LegacyBaseURL: legacy.URL, ProbeTimeout: tt.timeout}, nil, nil)
			report := rep.Report(context.Background())
			if report.Status != "degraded" || report.Legacy.Reachable || report.Legacy.Error == "" {
				t.Errorf("report = %+v, want degraded with an error", report)
			}
			if report.CompatibilityScore != nil {
				t.Error("score reported without a snapshot")
			}
			if err := rep.Check(context.Background()); err == nil {
				t.Error("Check() should fail when legacy is degraded")
			}
		})
	}
}

func TestReporter_Unreachable(t *testing.T) {
	legacy := httptest.NewServer(http.NotFoundHandler())
	url := legacy.URL
	legacy.Close()

	rep := NewReporter(ReporterConfig{LegacyBaseURL: url}, nil, nil)

	rec := httptest.NewRecorder()
	rep.StatusHandler()(rec, httptest.NewRequest(http.MethodGet, "/_parity/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200 even when degraded", rec.Code)
	}

	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", report.Status)
	}
}

func TestReporter_NotFoundIsReachable(t *testing.T) {
	legacy := httptest.NewServer(http.NotFoundHandler())
	defer legacy.Close()

	rep := NewReporter(ReporterConfig{LegacyBaseURL: legacy.URL}, nil, nil)
	if p := rep.Probe(context.Background()); !p.Reachable || p.StatusCode != 404 {
		t.Errorf("probe = %+v, want reachable 404", p)
	}
}
