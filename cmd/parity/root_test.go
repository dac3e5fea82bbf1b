package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/config"
)

const testConfig = `
targets:
  legacy:
    base_url: "http://legacy:1337"
storage:
  backend: memory
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parity.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	want := []string{"run", "validate", "analyses", "compatibility", "maintenance", "replay", "version", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "validation errors list every field",
			err: config.ValidationError{Errors: []config.FieldError{
				{Field: "targets.legacy.base_url", Message: "must not be empty"},
				{Field: "parity.sampling_percentage", Message: "must be between 0 and 100"},
			}},
			want: []string{"Invalid configuration", "targets.legacy.base_url", "parity.sampling_percentage"},
		},
		{
			name: "other errors",
			err:  errors.New("boom"),
			want: []string{"✗ boom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestConfigError_MissingFile(t *testing.T) {
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := loadConfig()
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if got := cli.ExitCode(err); got != cli.ExitConfig {
		t.Errorf("ExitCode = %d, want %d", got, cli.ExitConfig)
	}
}
