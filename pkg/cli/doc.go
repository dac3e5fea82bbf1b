/*
Package cli provides the helpers shared by the parity command: output
formatting, progress reporting, signal handling and exit codes.

Output Formatting:

Listing commands build a Table and let the --output flag pick the renderer:

	formatter := cli.NewFormatter(format)
	table := &cli.Table{Headers: []string{"ID", "MATCH"}, Rows: rows, Data: envelopes}
	if err := formatter.FormatTo(os.Stdout, table); err != nil {
		return err
	}

Text output is column aligned, CSV writes the rows, and JSON writes Data when
set so scripts get the full records.

Progress Reporting:

Exports to a file report progress on stderr:

	progress := cli.NewProgressReporter(nil, "analyses")
	progress.Start(total)
	for e := range envelopes {
		progress.Increment()
	}
	progress.Finish()

Errors:

Configuration failures exit with ExitConfig and list every invalid field via
ConfigErrors; other failures exit with ExitFailure.
*/
package cli
