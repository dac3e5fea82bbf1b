package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/config"
	"nocturne-hq/parity/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the parity proxy",
	Long: `Start the parity proxy with the specified configuration.

The proxy listens on the configured address, forwards every request to both
the legacy and the replacement server and records the comparison. The query
API is served under parity.api_prefix. Comparison rules and the sampling
percentage are reloaded when the configuration file changes.

Examples:
  # Start with default config
  parity run

  # Start with custom config
  parity run --config /etc/parity/parity.yaml

  # Override listen address
  parity run --listen 0.0.0.0:1337

  # Validate config without starting the proxy
  parity run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the proxy")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "disable configuration hot reload")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return configError(err)
	}
	cfg := config.GetConfig()

	// Flag overrides apply to this process only; a hot reload keeps them
	// because listener changes need a restart anyway.
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if err := setupLogging(&cfg.Telemetry.Logging, os.Stdout); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(cmd, cfg)

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	opts := []server.Option{}
	if !runFlags.noWatch {
		opts = append(opts, server.WithConfigWatch(cfgFile))
	}
	srv, err := server.New(ctx, cfg, server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	}, opts...)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintf(out, "✓ Proxy listening on %s\n", cfg.Proxy.ListenAddress)
	fmt.Fprintf(out, "✓ Query API: http://%s%s/analyses\n", cfg.Proxy.ListenAddress, cfg.Parity.APIPrefix)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", cfg.Proxy.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Proxy.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		slog.Error("proxy stopped with error", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Proxy stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Parity v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("targets configured",
		"legacy", cfg.Targets.Legacy.BaseURL,
		"replacement", cfg.Targets.Replacement.BaseURL,
		"selection_policy", cfg.Parity.SelectionPolicy,
	)
	if cfg.Parity.ComparisonEnabled {
		slog.Debug("comparison enabled", "sampling_percentage", cfg.Parity.SamplingPercentage)
	}
	slog.Debug("analysis storage", "backend", cfg.Storage.Backend)
}
