// Package maintenance prunes the analysis history and maintains the
// compatibility rollup.
//
// A Worker runs one cycle at a time: prune expired or excess envelopes
// (optionally archiving them first), recompute per-endpoint metrics from what
// remains, publish the result as an immutable snapshot and persist it to a
// SnapshotStore. The Scheduler drives cycles from a cron expression; the query
// API and CLI trigger them on demand with RunOnce.
package maintenance
