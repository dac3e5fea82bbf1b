package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file with environment overrides applied and check it.

Every invalid field is reported, not only the first one. The command exits
with status 2 when the configuration is invalid.

Examples:
  parity validate --config parity.yaml
  PARITY_PARITY_SAMPLING_PERCENTAGE=150 parity validate`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", cfgFile)
	fmt.Fprintf(out, "  Listen address:   %s\n", cfg.Proxy.ListenAddress)
	fmt.Fprintf(out, "  Legacy:           %s\n", cfg.Targets.Legacy.BaseURL)
	replacement := cfg.Targets.Replacement.BaseURL
	if replacement == "" {
		replacement = "(self)"
	}
	fmt.Fprintf(out, "  Replacement:      %s\n", replacement)
	fmt.Fprintf(out, "  Selection policy: %s\n", cfg.Parity.SelectionPolicy)
	fmt.Fprintf(out, "  Sampling:         %g%%\n", cfg.Parity.SamplingPercentage)
	fmt.Fprintf(out, "  Storage backend:  %s\n", cfg.Storage.Backend)
	return nil
}
