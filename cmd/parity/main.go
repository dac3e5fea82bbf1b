// Parity is a compatibility-verification proxy for migrating a glucose data
// server. It sits in front of the legacy server and its replacement, answers
// clients from one of them and records how the other one differed.
//
// Usage:
//
//	# Start the proxy
//	parity run --config parity.yaml
//
//	# Check a configuration file
//	parity validate --config parity.yaml
//
//	# Inspect recorded analyses
//	parity analyses list --match MajorDifferences
//	parity analyses export --format csv --file analyses.csv
//
//	# Re-run a recorded request against both servers
//	parity replay --id <analysis-id>
//
//	# Run a maintenance cycle and print compatibility per endpoint
//	parity maintenance run
//	parity compatibility
package main

import "os"

func main() {
	os.Exit(Execute())
}
