package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/storage"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/maintenance"
	"nocturne-hq/parity/pkg/proxy/types"
)

type fakeReplayer struct {
	mu   sync.Mutex
	reqs []*forward.ClonedRequest
}

func (f *fakeReplayer) Replay(ctx context.Context, req *forward.ClonedRequest) (*analysis.Envelope, []analysis.Target) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return &analysis.Envelope{ID: "replayed", Method: req.Method, Path: req.Path, Match: analysis.MatchPerfect},
		[]analysis.Target{analysis.TargetLegacy}
}

type fakeMaintainer struct {
	snap *analysis.Snapshot
	err  error
}

func (f *fakeMaintainer) RunOnce(ctx context.Context) (*maintenance.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &maintenance.Report{StartedAt: time.Unix(100, 0).UTC(), Duration: 1500 * time.Millisecond, Pruned: 3, Snapshot: f.snap}, nil
}

func (f *fakeMaintainer) Snapshot() *analysis.Snapshot { return f.snap }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) analysis.Storage {
	t.Helper()
	s := storage.NewMemoryStorage()
	envelopes := []*analysis.Envelope{
		{ID: "a1", Method: "GET", Path: "/api/v1/entries", Endpoint: "GET /api/v1/entries", Match: analysis.MatchPerfect, AnalyzedAt: base},
		{ID: "a2", Method: "GET", Path: "/api/v1/treatments", Endpoint: "GET /api/v1/treatments", Match: analysis.MatchMajorDifferences, AnalyzedAt: base.Add(time.Minute)},
		{ID: "a3", Method: "POST", Path: "/api/v1/entries", Endpoint: "POST /api/v1/entries", Match: analysis.MatchCriticalDifferences, AnalyzedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range envelopes {
		if err := s.Store(context.Background(), e); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}
	return s
}

func newTestAPI(t *testing.T, m Maintainer) (*API, *fakeReplayer) {
	t.Helper()
	r := &fakeReplayer{}
	status := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return NewAPI(seed(t), r, m, status, Config{Prefix: "/_parity/", MaxBodyBytes: 1024}), r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorDetail {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestListAnalyses(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	h := api.Handler()

	tests := []struct {
		name    string
		query   string
		wantIDs []string
		total   int64
	}{
		{"all newest first", "", []string{"a3", "a2", "a1"}, 3},
		{"by method", "?method=post", []string{"a3"}, 1},
		{"by match", "?match=majordifferences", []string{"a2"}, 1},
		{"by path prefix", "?path=/api/v1/entries&order=asc", []string{"a1", "a3"}, 2},
		{"paginated", "?count=1&skip=1", []string{"a2"}, 3},
		{"time range", "?from=" + base.Add(30*time.Second).Format(time.RFC3339) + "&to=" + base.Add(90*time.Second).Format(time.RFC3339), []string{"a2"}, 1},
		{"unix millis", "?from=" + itoa(base.Add(time.Minute).UnixMilli()), []string{"a3", "a2"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/_parity/analyses"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body)
			}
			var resp types.AnalysesResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, e := range resp.Analyses {
				ids = append(ids, e.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if resp.Total != tt.total {
				t.Errorf("total = %d, want %d", resp.Total, tt.total)
			}
		})
	}
}

func TestListAnalyses_InvalidParams(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	h := api.Handler()

	for _, q := range []string{"?count=abc", "?count=5000", "?skip=-1", "?match=sorta", "?from=yesterday", "?order=up",
		"?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z"} {
		t.Run(q, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/_parity/analyses"+q, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w).Type; got != types.ErrorTypeInvalidRequest {
				t.Errorf("type = %q", got)
			}
		})
	}
}

func TestGetAnalysis(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	h := api.Handler()

	w := do(t, h, http.MethodGet, "/_parity/analyses/a2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var e analysis.Envelope
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.ID != "a2" || e.Match != analysis.MatchMajorDifferences {
		t.Errorf("got %s %s", e.ID, e.Match)
	}

	w = do(t, h, http.MethodGet, "/_parity/analyses/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := decodeError(t, w).Code; got != types.CodeAnalysisNotFound {
		t.Errorf("code = %q, want %q", got, types.CodeAnalysisNotFound)
	}
}

func TestExportAnalyses(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	h := api.Handler()

	t.Run("json", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/_parity/analyses/export?method=GET", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var got []*analysis.Envelope
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("decode export: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("exported %d analyses, want 2", len(got))
		}
	})

	t.Run("csv", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/_parity/analyses/export?format=csv", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		rows, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
		if err != nil {
			t.Fatalf("parse csv: %v", err)
		}
		if len(rows) != 4 {
			t.Errorf("rows = %d, want header plus 3", len(rows))
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/_parity/analyses/export?format=xml", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestCompatibility(t *testing.T) {
	t.Run("no snapshot", func(t *testing.T) {
		api, _ := newTestAPI(t, &fakeMaintainer{})
		w := do(t, api.Handler(), http.MethodGet, "/_parity/metrics/compatibility", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if got := decodeError(t, w).Code; got != types.CodeSnapshotUnavailable {
			t.Errorf("code = %q", got)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		snap := &analysis.Snapshot{GeneratedAt: base, Endpoints: []analysis.EndpointMetric{{Endpoint: "GET /api/v1/entries", Total: 1, PerfectMatches: 1}}}
		api, _ := newTestAPI(t, &fakeMaintainer{snap: snap})
		w := do(t, api.Handler(), http.MethodGet, "/_parity/metrics/compatibility", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var got analysis.Snapshot
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if len(got.Endpoints) != 1 || got.Endpoints[0].Endpoint != "GET /api/v1/entries" {
			t.Errorf("unexpected snapshot %+v", got)
		}
	})
}

func TestStatus(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	w := do(t, api.Handler(), http.MethodGet, "/_parity/status", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("got %d %s", w.Code, w.Body)
	}
}

func TestReplay(t *testing.T) {
	t.Run("described request", func(t *testing.T) {
		api, r := newTestAPI(t, nil)
		body := `{"method":"get","path":"/api/v1/entries.json","query":"?count=10","headers":{"accept":["application/json"]}}`
		w := do(t, api.Handler(), http.MethodPost, "/_parity/replay", body)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		var resp types.ReplayResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Analysis == nil || resp.Analysis.ID != "replayed" {
			t.Fatalf("unexpected analysis %+v", resp.Analysis)
		}
		if diff := cmp.Diff([]analysis.Target{analysis.TargetLegacy}, resp.Cached); diff != "" {
			t.Errorf("cached mismatch (-want +got):\n%s", diff)
		}

		if len(r.reqs) != 1 {
			t.Fatalf("replays = %d, want 1", len(r.reqs))
		}
		req := r.reqs[0]
		if req.Method != http.MethodGet || req.Path != "/api/v1/entries.json" || req.RawQuery != "count=10" {
			t.Errorf("replayed %s %s?%s", req.Method, req.Path, req.RawQuery)
		}
		if req.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept header = %q", req.Header.Get("Accept"))
		}
		if req.Host != "example.com" || req.Scheme != "http" {
			t.Errorf("source = %s://%s", req.Scheme, req.Host)
		}
	})

	t.Run("stored analysis", func(t *testing.T) {
		api, r := newTestAPI(t, nil)
		w := do(t, api.Handler(), http.MethodPost, "/_parity/replay", `{"analysis_id":"a2"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		if got := r.reqs[0].Path; got != "/api/v1/treatments" {
			t.Errorf("path = %q", got)
		}
	})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty body", "", http.StatusBadRequest, types.CodeInvalidJSON},
		{"malformed", `{"path":`, http.StatusBadRequest, types.CodeInvalidJSON},
		{"relative path", `{"path":"api"}`, http.StatusBadRequest, types.CodeInvalidValue},
		{"unknown analysis", `{"analysis_id":"nope"}`, http.StatusNotFound, types.CodeAnalysisNotFound},
		{"too large", `{"path":"/x","body":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge, types.CodeBodyTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, r := newTestAPI(t, nil)
			w := do(t, api.Handler(), http.MethodPost, "/_parity/replay", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body)
			}
			if got := decodeError(t, w).Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
			if len(r.reqs) != 0 {
				t.Error("invalid replay reached the replayer")
			}
		})
	}
}

func TestMaintenanceRun(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		api, _ := newTestAPI(t, &fakeMaintainer{snap: &analysis.Snapshot{GeneratedAt: base}})
		w := do(t, api.Handler(), http.MethodPost, "/_parity/maintenance/run", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp types.MaintenanceResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Pruned != 3 || resp.DurationMS != 1500 || resp.Snapshot == nil {
			t.Errorf("unexpected report %+v", resp)
		}
	})

	t.Run("already running", func(t *testing.T) {
		api, _ := newTestAPI(t, &fakeMaintainer{err: maintenance.ErrAlreadyRunning})
		w := do(t, api.Handler(), http.MethodPost, "/_parity/maintenance/run", "")
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		api, _ := newTestAPI(t, nil)
		w := do(t, api.Handler(), http.MethodPost, "/_parity/maintenance/run", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

func TestUnknownRoute(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	w := do(t, api.Handler(), http.MethodGet, "/_parity/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = do(t, api.Handler(), http.MethodDelete, "/_parity/analyses/a1", "")
	if w.Code == http.StatusOK {
		t.Error("DELETE should not be routed")
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
