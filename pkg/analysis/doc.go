// Package analysis defines the comparison envelope and the persistence
// contract shared by the proxy, the query API and the maintenance worker.
//
// # Envelopes
//
// Every mirrored request that is sampled produces exactly one Envelope. It
// captures the request identity (method, path, fingerprint, templated
// endpoint), both legs' status codes, latencies and transport errors, the
// ordered discrepancy list, severity tallies and the overall classification.
//
// Envelopes are append-only. Once stored they are never updated; only the
// maintenance pruner deletes them, and only after optionally archiving.
//
// # Classification
//
// The overall match is derived from the legs and discrepancies:
//
//	both legs failed            -> BothMissing
//	one leg failed              -> LegacyMissing / ReplacementMissing
//	body could not be compared  -> ComparisonError
//	otherwise                   -> highest severity (or PerfectMatch)
//
// # Subpackages
//
//   - storage:  SQLite (mattn/go-sqlite3) and in-memory backends
//   - recorder: asynchronous, bounded persistence queue
//   - query:    query validation and pagination limits
//   - export:   JSON and CSV exporters
package analysis
