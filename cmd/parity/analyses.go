package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/export"
	"nocturne-hq/parity/pkg/cli"
	"nocturne-hq/parity/pkg/proxy/handlers"
	"nocturne-hq/parity/pkg/server"
)

var analysesFlags struct {
	path     string
	method   string
	match    string
	endpoint string
	from     string
	to       string
	order    string
	skip     int

	// Per-command values; flags sharing a variable would share defaults.
	listCount   int
	exportCount int
	listOutput  string
	getOutput   string

	// export
	format   string
	file     string
	pretty   bool
	progress bool
}

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Query recorded analyses",
	Long: `Query and export the analyses recorded by the proxy.

The command opens the configured storage backend directly, so it works
whether or not the proxy is running. SQLite storage is shared safely with a
running proxy; memory storage is always empty here.

Subcommands:
  list    - List analyses matching filters
  get     - Show one analysis in full
  export  - Stream matching analyses as JSON or CSV`,
}

var analysesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyses",
	Long: `List analyses, newest first.

Times accept RFC3339 or Unix milliseconds.

Examples:
  # Latest 20 major differences
  parity analyses list --match MajorDifferences --count 20

  # One endpoint over a time range, as JSON
  parity analyses list --endpoint "GET /api/v1/entries" \
    --from 2026-10-01T00:00:00Z --to 2026-10-02T00:00:00Z --output json`,
	Args: cobra.NoArgs,
	RunE: listAnalyses,
}

var analysesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  getAnalysis,
}

var analysesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export analyses",
	Long: `Stream matching analyses as a JSON array or CSV.

Without --count every matching analysis is exported.

Examples:
  parity analyses export --format csv --file analyses.csv
  parity analyses export --match CriticalDifferences --pretty > critical.json`,
	Args: cobra.NoArgs,
	RunE: exportAnalyses,
}

func init() {
	rootCmd.AddCommand(analysesCmd)
	analysesCmd.AddCommand(analysesListCmd, analysesGetCmd, analysesExportCmd)

	for _, cmd := range []*cobra.Command{analysesListCmd, analysesExportCmd} {
		f := cmd.Flags()
		f.StringVar(&analysesFlags.path, "path", "", "filter by request path prefix")
		f.StringVar(&analysesFlags.method, "method", "", "filter by HTTP method")
		f.StringVar(&analysesFlags.match, "match", "", "filter by overall match (PerfectMatch, MinorDifferences, ...)")
		f.StringVar(&analysesFlags.endpoint, "endpoint", "", `filter by endpoint ("GET /api/v1/entries/{id}")`)
		f.StringVar(&analysesFlags.from, "from", "", "analyzed at or after (RFC3339 or Unix ms)")
		f.StringVar(&analysesFlags.to, "to", "", "analyzed at or before (RFC3339 or Unix ms)")
		f.StringVar(&analysesFlags.order, "order", "", "sort order: desc (default) or asc")
		f.IntVar(&analysesFlags.skip, "skip", 0, "skip this many analyses")
	}
	analysesListCmd.Flags().IntVar(&analysesFlags.listCount, "count", 50, "maximum analyses to list")
	analysesListCmd.Flags().StringVarP(&analysesFlags.listOutput, "output", "o", "text", "output format: text, json, csv")
	analysesGetCmd.Flags().StringVarP(&analysesFlags.getOutput, "output", "o", "json", "output format: text, json")

	analysesExportCmd.Flags().IntVar(&analysesFlags.exportCount, "count", 0, "maximum analyses to export (0 exports all)")
	analysesExportCmd.Flags().StringVar(&analysesFlags.format, "format", "json", "export format: json, csv")
	analysesExportCmd.Flags().StringVarP(&analysesFlags.file, "file", "f", "", "write to file instead of stdout")
	analysesExportCmd.Flags().BoolVar(&analysesFlags.pretty, "pretty", false, "indent JSON output")
	analysesExportCmd.Flags().BoolVar(&analysesFlags.progress, "progress", true, "report progress on stderr when writing to a file")
}

// analysesQuery builds a query from the filter flags using the same parsing
// rules as the query API. Unpaginated queries get no default count.
func analysesQuery(paginate bool) (*analysis.Query, error) {
	count := analysesFlags.exportCount
	if paginate {
		count = analysesFlags.listCount
	}

	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set("path", analysesFlags.path)
	set("method", analysesFlags.method)
	set("match", analysesFlags.match)
	set("endpoint", analysesFlags.endpoint)
	set("from", analysesFlags.from)
	set("to", analysesFlags.to)
	set("order", analysesFlags.order)
	if analysesFlags.skip > 0 {
		values.Set("skip", strconv.Itoa(analysesFlags.skip))
	}
	if count > 0 {
		values.Set("count", strconv.Itoa(count))
	}
	if !paginate {
		return handlers.ParseFilters(values)
	}
	return handlers.ParseQuery(values)
}

// openStorage loads the configuration and opens its analysis store.
func openStorage() (analysis.Storage, error) {
	cfg, err := loadOffline()
	if err != nil {
		return nil, err
	}
	st, err := server.OpenStorage(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open analysis storage: %w", err)
	}
	return st, nil
}

func listAnalyses(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analysesFlags.listOutput)
	if err != nil {
		return err
	}
	q, err := analysesQuery(true)
	if err != nil {
		return err
	}
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	envelopes, err := st.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("analyses list", err)
	}
	total, err := st.Count(ctx, q)
	if err != nil {
		return cli.NewCommandError("analyses list", err)
	}

	table := analysesTable(envelopes)
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table); err != nil {
		return err
	}
	if format == cli.FormatText {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d of %d analyses\n", len(envelopes), total)
	}
	return nil
}

func analysesTable(envelopes []*analysis.Envelope) *cli.Table {
	if envelopes == nil {
		envelopes = []*analysis.Envelope{}
	}
	t := &cli.Table{
		Headers: []string{"ID", "ANALYZED", "ENDPOINT", "MATCH", "LEGACY", "REPLACEMENT", "DISCREPANCIES"},
		Data:    envelopes,
	}
	for _, e := range envelopes {
		t.Rows = append(t.Rows, []string{
			e.ID,
			e.AnalyzedAt.UTC().Format(time.RFC3339),
			e.Endpoint,
			string(e.Match),
			statusText(e.LegacyStatus),
			statusText(e.ReplacementStatus),
			strconv.Itoa(len(e.Discrepancies)),
		})
	}
	return t
}

func statusText(status *int) string {
	if status == nil {
		return "-"
	}
	return strconv.Itoa(*status)
}

func getAnalysis(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analysesFlags.getOutput)
	if err != nil {
		return err
	}
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return cli.NewCommandError("analyses get", err)
	}

	out := cmd.OutOrStdout()
	if format != cli.FormatText {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(out, &cli.Table{Data: e})
	}

	fmt.Fprintf(out, "ID:          %s\n", e.ID)
	fmt.Fprintf(out, "Correlation: %s\n", e.CorrelationID)
	fmt.Fprintf(out, "Request:     %s %s\n", e.Method, e.Path)
	fmt.Fprintf(out, "Analyzed:    %s\n", e.AnalyzedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(out, "Match:       %s\n", e.Match)
	fmt.Fprintf(out, "Legacy:      %s in %s\n", statusText(e.LegacyStatus), e.LegacyElapsed)
	fmt.Fprintf(out, "Replacement: %s in %s\n", statusText(e.ReplacementStatus), e.ReplacementElapsed)
	fmt.Fprintf(out, "Selected:    %s\n", e.SelectedTarget)
	if e.Summary != "" {
		fmt.Fprintf(out, "Summary:     %s\n", e.Summary)
	}
	if len(e.Discrepancies) == 0 {
		return nil
	}

	t := &cli.Table{Headers: []string{"SEVERITY", "KIND", "PATH", "LEGACY", "REPLACEMENT"}}
	for _, d := range e.Discrepancies {
		t.Rows = append(t.Rows, []string{string(d.Severity), string(d.Kind), d.Path, d.LegacyValue, d.ReplacementValue})
	}
	fmt.Fprintln(out)
	return cli.NewFormatter(cli.FormatText).FormatTo(out, t)
}

func exportAnalyses(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(analysesFlags.format, analysesFlags.pretty)
	if err != nil {
		return err
	}
	q, err := analysesQuery(false)
	if err != nil {
		return err
	}
	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	var w io.Writer = cmd.OutOrStdout()
	var progress cli.ProgressReporter
	if analysesFlags.file != "" {
		f, err := os.Create(analysesFlags.file)
		if err != nil {
			return cli.NewCommandError("analyses export", err)
		}
		defer f.Close()
		w = f

		if analysesFlags.progress {
			total, err := st.Count(cmd.Context(), q)
			if err != nil {
				return cli.NewCommandError("analyses export", err)
			}
			if q.Count > 0 {
				total = min(total, int64(q.Count))
			}
			progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "analyses")
			progress.Start(total)
		}
	}

	written, err := streamExport(cmd.Context(), st, q, exporter, w, progress)
	if err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("analyses export", err)
	}
	if progress != nil {
		progress.Finish()
	}
	if analysesFlags.file != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d analyses to %s\n", written, analysesFlags.file)
	}
	return nil
}

// streamExport pipes the query stream through exporter, counting envelopes
// as they pass.
func streamExport(ctx context.Context, st analysis.Storage, q *analysis.Query, exporter export.StreamExporter, w io.Writer, progress cli.ProgressReporter) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, errCh, err := st.QueryStream(ctx, q)
	if err != nil {
		return 0, err
	}

	var written int64
	counted := make(chan *analysis.Envelope)
	go func() {
		defer close(counted)
		for e := range source {
			select {
			case counted <- e:
				written++
				if progress != nil {
					progress.Increment()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := exporter.ExportStream(ctx, counted, w); err != nil {
		cancel()
		for range counted {
		}
		<-errCh
		return written, err
	}
	return written, <-errCh
}
