package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/server"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run maintenance tasks",
}

var maintenanceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one maintenance cycle",
	Long: `Prune analyses past retention, archiving them first when configured,
then roll up and persist a compatibility snapshot.

This is the same cycle the proxy runs on maintenance.schedule. It works on
the stored data directly; a running proxy picks the snapshot up on its next
cycle or restart.`,
	Args: cobra.NoArgs,
	RunE: runMaintenance,
}

func init() {
	rootCmd.AddCommand(maintenanceCmd)
	maintenanceCmd.AddCommand(maintenanceRunCmd)
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	cfg, err := loadOffline()
	if err != nil {
		return err
	}

	st, err := server.OpenStorage(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open analysis storage: %w", err)
	}
	defer st.Close()

	snapshots, err := server.OpenSnapshotStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer snapshots.Close()

	ctx := cmd.Context()
	worker, err := server.NewMaintenanceWorker(ctx, &cfg.Maintenance, st, snapshots, nil)
	if err != nil {
		return cli.NewCommandError("maintenance run", err)
	}

	report, err := worker.RunOnce(ctx)
	if err != nil {
		return cli.NewCommandError("maintenance run", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Maintenance completed in %s\n", report.Duration)
	fmt.Fprintf(out, "  Pruned:        %d analyses\n", report.Pruned)
	fmt.Fprintf(out, "  Endpoints:     %d\n", len(report.Snapshot.Endpoints))
	fmt.Fprintf(out, "  Compatibility: %.1f%% of %d scored\n",
		report.Snapshot.Overall.CompatibilityScore, report.Snapshot.Overall.Scored)
	return nil
}
