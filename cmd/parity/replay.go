package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/proxy/types"
)

type replayOptions struct {
	server     string
	analysisID string
	method     string
	path       string
	query      string
	headers    []string
	body       string
	bodyFile   string
	timeout    time.Duration
}

var replayFlags replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a request against both targets",
	Long: `Ask a running proxy to send a request to both targets and record the comparison.

The request is either a stored analysis (--id) or described with flags.
Idempotent requests may be answered from the proxy's response cache.

Examples:
  # Replay a recorded analysis
  parity replay --id 6f1c2b1e-...

  # Replay a described request
  parity replay --method GET --path /api/v1/entries.json --query count=10

  # POST with a body from a file
  parity replay --method POST --path /api/v1/treatments --body-file treatment.json \
    -H "Content-Type: application/json"`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	f := replayCmd.Flags()
	f.StringVar(&replayFlags.server, "server", "", "proxy base URL (default derived from proxy.listen_address)")
	f.StringVar(&replayFlags.analysisID, "id", "", "replay a stored analysis")
	f.StringVar(&replayFlags.method, "method", "GET", "request method")
	f.StringVar(&replayFlags.path, "path", "", "request path")
	f.StringVar(&replayFlags.query, "query", "", "raw query string")
	f.StringArrayVarP(&replayFlags.headers, "header", "H", nil, `request header "Name: value" (repeatable)`)
	f.StringVar(&replayFlags.body, "body", "", "request body")
	f.StringVar(&replayFlags.bodyFile, "body-file", "", "read the request body from a file")
	f.DurationVar(&replayFlags.timeout, "timeout", 60*time.Second, "overall request timeout")
}

func runReplay(cmd *cobra.Command, args []string) error {
	req, err := replayRequest()
	if err != nil {
		return err
	}

	cfg, err := loadOffline()
	if err != nil {
		return err
	}
	base := replayFlags.server
	if base == "" {
		base = localURL(cfg.Proxy.ListenAddress)
	}
	endpoint := strings.TrimSuffix(base, "/") + cfg.Parity.APIPrefix + "/replay"

	resp, err := postReplay(cmd, endpoint, req)
	if err != nil {
		return cli.NewCommandError("replay", err)
	}

	out := cmd.OutOrStdout()
	e := resp.Analysis
	fmt.Fprintf(out, "✓ %s %s: %s\n", e.Method, e.Path, e.Match)
	fmt.Fprintf(out, "  Analysis:    %s\n", e.ID)
	fmt.Fprintf(out, "  Legacy:      %s in %s\n", statusText(e.LegacyStatus), e.LegacyElapsed)
	fmt.Fprintf(out, "  Replacement: %s in %s\n", statusText(e.ReplacementStatus), e.ReplacementElapsed)
	fmt.Fprintf(out, "  Discrepancies: %d\n", len(e.Discrepancies))
	if len(resp.Cached) > 0 {
		names := make([]string, len(resp.Cached))
		for i, t := range resp.Cached {
			names[i] = string(t)
		}
		fmt.Fprintf(out, "  Cached:      %s\n", strings.Join(names, ", "))
	}
	return nil
}

// replayRequest builds the API request body from the flags.
func replayRequest() (*types.ReplayRequest, error) {
	if replayFlags.analysisID != "" {
		return &types.ReplayRequest{AnalysisID: replayFlags.analysisID}, nil
	}
	if replayFlags.path == "" {
		return nil, fmt.Errorf("either --id or --path is required")
	}

	req := &types.ReplayRequest{
		Method: strings.ToUpper(replayFlags.method),
		Path:   replayFlags.path,
		Query:  strings.TrimPrefix(replayFlags.query, "?"),
		Body:   replayFlags.body,
	}
	if replayFlags.bodyFile != "" {
		data, err := os.ReadFile(replayFlags.bodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		req.Body = string(data)
	}
	for _, h := range replayFlags.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		if req.Headers == nil {
			req.Headers = make(map[string][]string)
		}
		name = http.CanonicalHeaderKey(strings.TrimSpace(name))
		req.Headers[name] = append(req.Headers[name], strings.TrimSpace(value))
	}
	return req, nil
}

func postReplay(cmd *cobra.Command, endpoint string, body *types.ReplayRequest) (*types.ReplayResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: replayFlags.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr types.ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s (%s)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out types.ReplayResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("invalid replay response: %w", err)
	}
	if out.Analysis == nil {
		return nil, fmt.Errorf("replay response has no analysis")
	}
	return &out, nil
}

// localURL turns a listen address into a URL reachable from this host.
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
