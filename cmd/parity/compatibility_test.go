package main

import (
	"strings"
	"testing"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

func TestSnapshotTable_WorstFirstThenOverall(t *testing.T) {
	snap := &analysis.Snapshot{
		GeneratedAt: time.Now(),
		Overall:     analysis.EndpointMetric{Total: 30, CompatibilityScore: 80},
		Endpoints: []analysis.EndpointMetric{
			{Endpoint: "GET /api/v1/entries", Total: 10, CompatibilityScore: 100},
			{Endpoint: "GET /api/v1/treatments", Total: 10, CompatibilityScore: 40, LegacyMissing: 1, BothMissing: 2},
			{Endpoint: "GET /api/v1/status", Total: 10, CompatibilityScore: 100, AvgLegacyLatency: 1500 * time.Microsecond},
		},
	}

	table := snapshotTable(snap)
	if len(table.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(table.Rows))
	}
	if table.Rows[0][0] != "GET /api/v1/treatments" {
		t.Errorf("worst endpoint should come first, got %q", table.Rows[0][0])
	}
	if table.Rows[0][1] != "40.0%" || table.Rows[0][7] != "3" {
		t.Errorf("unexpected worst row %v", table.Rows[0])
	}
	if table.Rows[3][0] != "(overall)" {
		t.Errorf("overall should be last, got %q", table.Rows[3][0])
	}
	if snap.Endpoints[0].Endpoint != "GET /api/v1/entries" {
		t.Error("snapshotTable must not reorder the published snapshot")
	}
}

func TestMaintenanceAndCompatibilityCommands(t *testing.T) {
	path := writeConfig(t, testConfig)

	stdout, _, err := execute(t, "maintenance", "run", "--config", path)
	if err != nil {
		t.Fatalf("maintenance run failed: %v", err)
	}
	if !strings.Contains(stdout, "Maintenance completed") {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	stdout, _, err = execute(t, "compatibility", "--config", path, "--live", "--output", "csv")
	if err != nil {
		t.Fatalf("compatibility failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "ENDPOINT,SCORE") || !strings.Contains(stdout, "(overall)") {
		t.Errorf("unexpected csv:\n%s", stdout)
	}
}
