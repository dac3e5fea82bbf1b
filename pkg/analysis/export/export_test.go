package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

func envelopes() []*analysis.Envelope {
	code := 200
	return []*analysis.Envelope{
		{
			ID:             "e1",
			Method:         "GET",
			Path:           "/api/v1/entries",
			AnalyzedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			LegacyStatus:   &code,
			Match:          analysis.MatchLegacyMissing,
			SelectedTarget: analysis.TargetReplacement,
		},
		{
			ID:                "e2",
			Method:            "GET",
			Path:              "/api/v1/status",
			LegacyStatus:      &code,
			ReplacementStatus: &code,
			Discrepancies: []analysis.Discrepancy{
				{Kind: analysis.KindHeader, Path: "Cache-Control", Severity: analysis.SeverityMinor},
				{Kind: analysis.KindStringValue, Path: "name", Severity: analysis.SeverityMajor},
			},
			Match: analysis.MatchMajorDifferences,
		},
	}
}

func TestJSONExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), envelopes(), &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	var got []analysis.Envelope
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(got) != 2 || got[1].Match != analysis.MatchMajorDifferences {
		t.Errorf("decoded = %+v", got)
	}
}

func TestJSONExporter_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(true).Export(context.Background(), nil, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "[]" {
		t.Errorf("Export(nil) = %q, want []", buf.String())
	}
}

func TestJSONExporter_ExportStream(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		ch := make(chan *analysis.Envelope, 2)
		for _, e := range envelopes() {
			ch <- e
		}
		close(ch)

		var buf bytes.Buffer
		if err := NewJSONExporter(pretty).ExportStream(context.Background(), ch, &buf); err != nil {
			t.Fatalf("ExportStream(pretty=%v) failed: %v", pretty, err)
		}

		var got []analysis.Envelope
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("stream output (pretty=%v) is not valid JSON: %v\n%s", pretty, err, buf.String())
		}
		if len(got) != 2 {
			t.Errorf("decoded %d envelopes, want 2", len(got))
		}
	}
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), envelopes(), &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "id" {
		t.Errorf("header[0] = %q, want id", rows[0][0])
	}
	if rows[1][9] != "" {
		t.Errorf("missing replacement status rendered as %q, want empty", rows[1][9])
	}
	last := rows[2][len(rows[2])-1]
	if !strings.Contains(last, "Header@Cache-Control(Minor)") || !strings.Contains(last, "StringValue@name(Major)") {
		t.Errorf("discrepancies column = %q", last)
	}
}

func TestCSVExporter_ExportStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan *analysis.Envelope)
	var buf bytes.Buffer
	if err := NewCSVExporter(false).ExportStream(ctx, ch, &buf); err != context.Canceled {
		t.Errorf("ExportStream() error = %v, want context.Canceled", err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New("csv", false); err != nil {
		t.Errorf("New(csv) error = %v", err)
	}
	if _, err := New("xml", false); err == nil {
		t.Error("New(xml) should fail")
	}
}
