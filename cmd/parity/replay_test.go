package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/proxy/types"
)

func resetReplayFlags(t *testing.T) {
	t.Helper()
	orig := replayFlags
	t.Cleanup(func() { replayFlags = orig })
}

func TestReplayRequest(t *testing.T) {
	tests := []struct {
		name    string
		set     func()
		want    *types.ReplayRequest
		wantErr bool
	}{
		{
			name: "stored analysis",
			set:  func() { replayFlags.analysisID = "a1" },
			want: &types.ReplayRequest{AnalysisID: "a1"},
		},
		{
			name: "described request",
			set: func() {
				replayFlags.method = "post"
				replayFlags.path = "/api/v1/treatments"
				replayFlags.query = "?dry=1"
				replayFlags.body = `{"carbs":20}`
				replayFlags.headers = []string{"content-type: application/json"}
			},
			want: &types.ReplayRequest{
				Method:  "POST",
				Path:    "/api/v1/treatments",
				Query:   "dry=1",
				Body:    `{"carbs":20}`,
				Headers: map[string][]string{"Content-Type": {"application/json"}},
			},
		},
		{
			name:    "missing path",
			set:     func() {},
			wantErr: true,
		},
		{
			name: "malformed header",
			set: func() {
				replayFlags.path = "/x"
				replayFlags.headers = []string{"no-colon"}
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetReplayFlags(t)
			replayFlags = replayOptions{method: "GET"}
			tt.set()

			got, err := replayRequest()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("replayRequest failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplayCommand(t *testing.T) {
	resetReplayFlags(t)

	var received types.ReplayRequest
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_parity/replay" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		ok := 200
		_ = json.NewEncoder(w).Encode(types.ReplayResponse{
			Analysis: &analysis.Envelope{
				ID: "r1", Method: "GET", Path: "/api/v1/status.json",
				LegacyStatus: &ok, ReplacementStatus: &ok,
				Match: analysis.MatchPerfect,
			},
			Cached: []analysis.Target{analysis.TargetLegacy},
		})
	}))
	defer api.Close()

	path := writeConfig(t, testConfig)
	stdout, _, err := execute(t, "replay", "--config", path, "--server", api.URL, "--path", "/api/v1/status.json")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if received.Path != "/api/v1/status.json" || received.Method != "GET" {
		t.Errorf("unexpected request %+v", received)
	}
	for _, want := range []string{"PerfectMatch", "r1", "Cached:      legacy"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestReplayCommand_APIError(t *testing.T) {
	resetReplayFlags(t)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(types.NewErrorResponse("analysis not found", types.ErrorTypeNotFound, types.CodeAnalysisNotFound))
	}))
	defer api.Close()

	path := writeConfig(t, testConfig)
	_, _, err := execute(t, "replay", "--config", path, "--server", api.URL, "--id", "missing")
	if err == nil || !strings.Contains(err.Error(), "analysis_not_found") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestLocalURL(t *testing.T) {
	tests := map[string]string{
		"0.0.0.0:1337":   "http://127.0.0.1:1337",
		":8080":          "http://127.0.0.1:8080",
		"10.0.0.5:8080":  "http://10.0.0.5:8080",
		"[::]:9000":      "http://127.0.0.1:9000",
		"localhost:8080": "http://localhost:8080",
	}
	for in, want := range tests {
		if got := localURL(in); got != want {
			t.Errorf("localURL(%q) = %q, want %q", in, got, want)
		}
	}
}
