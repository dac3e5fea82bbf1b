package main

import (
	"strings"
	"testing"

	"nocturne-hq/parity/pkg/cli"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		wantCode int
		wantOut  string
	}{
		{
			name:     "valid",
			config:   testConfig,
			wantCode: cli.ExitOK,
			wantOut:  "Configuration valid",
		},
		{
			name: "invalid sampling",
			config: testConfig + `
parity:
  sampling_percentage: 150
`,
			wantCode: cli.ExitConfig,
		},
		{
			name:     "unknown key",
			config:   testConfig + "bogus: true\n",
			wantCode: cli.ExitConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.config)
			stdout, _, err := execute(t, "validate", "--config", path)

			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err: %v)", got, tt.wantCode, err)
			}
			if tt.wantOut != "" && !strings.Contains(stdout, tt.wantOut) {
				t.Errorf("stdout missing %q:\n%s", tt.wantOut, stdout)
			}
		})
	}
}

func TestValidateCommand_InvalidListsFields(t *testing.T) {
	path := writeConfig(t, testConfig+`
parity:
  sampling_percentage: 150
`)
	_, _, err := execute(t, "validate", "--config", path)

	fields := cli.ConfigErrors(err)
	if len(fields) == 0 {
		t.Fatalf("expected field errors, got %v", err)
	}
	found := false
	for _, f := range fields {
		if f.Field == "parity.sampling_percentage" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected parity.sampling_percentage in %v", fields)
	}
}
