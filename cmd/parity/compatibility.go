package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/maintenance"
	"nocturne-hq/parity/pkg/server"
)

var compatibilityFlags struct {
	live   bool
	output string
}

var compatibilityCmd = &cobra.Command{
	Use:     "compatibility",
	Aliases: []string{"metrics"},
	Short:   "Show per-endpoint compatibility",
	Long: `Show the compatibility score of every endpoint.

By default the latest snapshot written by the maintenance worker is shown.
With --live the rollup is computed from the stored analyses now, without
pruning or persisting anything.

Examples:
  parity compatibility
  parity compatibility --live --output json`,
	Args: cobra.NoArgs,
	RunE: showCompatibility,
}

func init() {
	rootCmd.AddCommand(compatibilityCmd)

	compatibilityCmd.Flags().BoolVar(&compatibilityFlags.live, "live", false, "compute the rollup from stored analyses instead of the last snapshot")
	compatibilityCmd.Flags().StringVarP(&compatibilityFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func showCompatibility(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(compatibilityFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadOffline()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var snap *analysis.Snapshot
	if compatibilityFlags.live {
		st, err := server.OpenStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open analysis storage: %w", err)
		}
		defer st.Close()
		snap, err = maintenance.Rollup(ctx, st, time.Now())
		if err != nil {
			return cli.NewCommandError("compatibility", err)
		}
	} else {
		snapshots, err := server.OpenSnapshotStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()
		snap, err = snapshots.Latest(ctx)
		if errors.Is(err, analysis.ErrNotFound) {
			snap, err = nil, nil
		}
		if err != nil {
			return cli.NewCommandError("compatibility", err)
		}
	}
	if snap == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "No compatibility snapshot yet; run `parity maintenance run` or use --live.")
		return nil
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), snapshotTable(snap)); err != nil {
		return err
	}
	if format == cli.FormatText {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nGenerated at %s\n", snap.GeneratedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// snapshotTable lists endpoints worst score first, followed by the overall row.
func snapshotTable(snap *analysis.Snapshot) *cli.Table {
	endpoints := append([]analysis.EndpointMetric(nil), snap.Endpoints...)
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].CompatibilityScore < endpoints[j].CompatibilityScore
	})

	t := &cli.Table{
		Headers: []string{"ENDPOINT", "SCORE", "TOTAL", "PERFECT", "MINOR", "MAJOR", "CRITICAL", "MISSING", "ERRORS", "LEGACY AVG", "REPLACEMENT AVG"},
		Data:    snap,
	}
	for _, m := range append(endpoints, snap.Overall) {
		name := m.Endpoint
		if name == "" {
			name = "(overall)"
		}
		t.Rows = append(t.Rows, []string{
			name,
			strconv.FormatFloat(m.CompatibilityScore, 'f', 1, 64) + "%",
			strconv.FormatInt(m.Total, 10),
			strconv.FormatInt(m.PerfectMatches, 10),
			strconv.FormatInt(m.MinorDifferences, 10),
			strconv.FormatInt(m.MajorDifferences, 10),
			strconv.FormatInt(m.CriticalDifferences, 10),
			strconv.FormatInt(m.LegacyMissing+m.ReplacementMissing+m.BothMissing, 10),
			strconv.FormatInt(m.ComparisonErrors, 10),
			m.AvgLegacyLatency.Round(time.Millisecond).String(),
			m.AvgReplacementLatency.Round(time.Millisecond).String(),
		})
	}
	return t
}
