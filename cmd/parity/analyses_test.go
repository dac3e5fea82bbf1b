package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/export"
	"nocturne-hq/parity/pkg/analysis/storage"
	"nocturne-hq/parity/pkg/cli"
)

func status(code int) *int { return &code }

func seedStorage(t *testing.T, n int) analysis.Storage {
	t.Helper()
	st := storage.NewMemoryStorage()
	t.Cleanup(func() { st.Close() })

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := &analysis.Envelope{
			ID:                string(rune('a' + i)),
			Method:            "GET",
			Path:              "/api/v1/entries",
			Endpoint:          "GET /api/v1/entries",
			AnalyzedAt:        base.Add(time.Duration(i) * time.Minute),
			LegacyStatus:      status(200),
			ReplacementStatus: status(200),
			Match:             analysis.MatchPerfect,
			SelectedTarget:    analysis.TargetLegacy,
		}
		if err := st.Store(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestAnalysesTable(t *testing.T) {
	e := &analysis.Envelope{
		ID:           "x1",
		Endpoint:     "GET /api/v1/status",
		AnalyzedAt:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		LegacyStatus: status(200),
		Match:        analysis.MatchReplacementMissing,
		Discrepancies: []analysis.Discrepancy{
			{Kind: analysis.KindStatusCode, Severity: analysis.SeverityCritical},
		},
	}

	table := analysesTable([]*analysis.Envelope{e})
	want := [][]string{{"x1", "2026-10-01T00:00:00Z", "GET /api/v1/status", "ReplacementMissing", "200", "-", "1"}}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalysesTable_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := cli.NewFormatter(cli.FormatJSON).FormatTo(&buf, analysesTable(nil)); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("expected [], got %q", got)
	}
}

func TestAnalysesQuery(t *testing.T) {
	origCount := analysesFlags.listCount
	t.Cleanup(func() { analysesFlags.method, analysesFlags.listCount, analysesFlags.from = "", origCount, "" })

	analysesFlags.method = "post"
	analysesFlags.listCount = 5
	analysesFlags.from = "1790000000000"

	q, err := analysesQuery(true)
	if err != nil {
		t.Fatalf("analysesQuery failed: %v", err)
	}
	if q.Method != "POST" || q.Count != 5 {
		t.Errorf("unexpected query %+v", q)
	}
	if q.From == nil || q.From.UnixMilli() != 1790000000000 {
		t.Errorf("unexpected from %v", q.From)
	}

	analysesFlags.from = "yesterday"
	if _, err := analysesQuery(false); err == nil {
		t.Error("expected error for invalid time")
	}
}

func TestStreamExport(t *testing.T) {
	st := seedStorage(t, 4)
	exporter, err := export.New("json", false)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	var progressOut bytes.Buffer
	progress := cli.NewProgressReporter(&progressOut, "analyses")
	progress.Start(4)

	written, err := streamExport(context.Background(), st, &analysis.Query{SortOrder: "asc"}, exporter, &buf, progress)
	if err != nil {
		t.Fatalf("streamExport failed: %v", err)
	}
	if written != 4 {
		t.Errorf("written = %d, want 4", written)
	}

	var got []analysis.Envelope
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 4 || got[0].ID != "a" {
		t.Errorf("unexpected export %+v", got)
	}
	if !strings.Contains(progressOut.String(), "(4/4)") {
		t.Errorf("progress did not reach total: %q", progressOut.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStreamExport_WriterFails(t *testing.T) {
	st := seedStorage(t, 3)
	exporter, _ := export.New("json", false)

	_, err := streamExport(context.Background(), st, &analysis.Query{}, exporter, failingWriter{}, nil)
	var eerr *analysis.ExportError
	if !errors.As(err, &eerr) {
		t.Errorf("expected ExportError, got %v", err)
	}
}

func TestAnalysesListCommand_Empty(t *testing.T) {
	path := writeConfig(t, testConfig)
	stdout, _, err := execute(t, "analyses", "list", "--config", path, "--output", "json")
	if err != nil {
		t.Fatalf("analyses list failed: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != "[]" {
		t.Errorf("expected [], got %q", got)
	}
}
