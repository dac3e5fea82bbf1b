package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/config"
	"nocturne-hq/parity/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parity",
		Short: "Parity - compatibility verification proxy",
		Long: `Parity sits in front of a legacy glucose data server and its replacement.

Every request is sent to both servers. The client is answered from the
preferred one while the two responses are compared in the background, and
each comparison is recorded as an analysis:
  - Discrepancies classified as critical, major or minor
  - Per-endpoint compatibility scores rolled up on a schedule
  - Replay of recorded or hand-written requests
  - Export of analyses as JSON or CSV`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "parity.yaml", "config file path")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		reportError(os.Stderr, err)
	}
	return cli.ExitCode(err)
}

// reportError prints err, listing every invalid field of a configuration error.
func reportError(w io.Writer, err error) {
	if fields := cli.ConfigErrors(err); len(fields) > 0 {
		fmt.Fprintln(w, "✗ Invalid configuration:")
		for _, f := range fields {
			fmt.Fprintf(w, "  - %s\n", f)
		}
		return
	}
	fmt.Fprintf(w, "✗ %v\n", err)
}

// loadConfig reads cfgFile with environment overrides. Configuration failures
// are returned as errors that map to cli.ExitConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

// configError keeps validation failures intact so every field is reported,
// and wraps read and parse failures as a ConfigError on the file.
func configError(err error) error {
	var verr config.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return cli.NewConfigError(cfgFile, err.Error())
}

// setupLogging installs the configured logger. Offline commands log to stderr
// so stdout carries only command output.
func setupLogging(cfg *config.LoggingConfig, w io.Writer) error {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	_, err := logging.Setup(logging.Config{
		Level:         level,
		Format:        cfg.Format,
		AddSource:     cfg.AddSource,
		RedactSecrets: cfg.RedactSecrets,
		Writer:        w,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.Debug("logging configured", "level", level, "format", cfg.Format)
	return nil
}

// loadOffline loads configuration for commands that work on stored data.
func loadOffline() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := setupLogging(&cfg.Telemetry.Logging, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}
