package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the analysis database schema.
// analyzed_at is stored as unix nanoseconds so range filters and ordering are exact.
const Schema = `
CREATE TABLE IF NOT EXISTS analyses (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    correlation_id TEXT NOT NULL,

    -- Request
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    query TEXT,
    fingerprint TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    analyzed_at INTEGER NOT NULL,

    -- Legs
    legacy_status INTEGER,
    replacement_status INTEGER,
    legacy_elapsed_ns INTEGER NOT NULL DEFAULT 0,
    replacement_elapsed_ns INTEGER NOT NULL DEFAULT 0,
    legacy_error TEXT,
    replacement_error TEXT,

    -- Comparison
    discrepancies TEXT NOT NULL,
    critical_count INTEGER NOT NULL DEFAULT 0,
    major_count INTEGER NOT NULL DEFAULT 0,
    minor_count INTEGER NOT NULL DEFAULT 0,
    overall_match TEXT NOT NULL,
    summary TEXT,
    error TEXT,
    patch TEXT,
    selected_target TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_analyses_path ON analyses(path);
CREATE INDEX IF NOT EXISTS idx_analyses_endpoint ON analyses(endpoint);
CREATE INDEX IF NOT EXISTS idx_analyses_overall_match ON analyses(overall_match);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectColumns = `id, correlation_id, method, path, query, fingerprint, endpoint, analyzed_at,
	legacy_status, replacement_status, legacy_elapsed_ns, replacement_elapsed_ns, legacy_error, replacement_error,
	discrepancies, critical_count, major_count, minor_count, overall_match, summary, error, patch, selected_target`
