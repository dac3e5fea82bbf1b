package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"nocturne-hq/parity/pkg/analysis"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/parity.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements analysis.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "analysis.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, analysis.NewStorageError("sqlite", "open", err)
	}

	// An in-memory database exists per connection.
	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return analysis.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return analysis.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return analysis.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return analysis.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return analysis.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return analysis.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store persists an envelope. A second Store with the same id fails with
// analysis.ErrDuplicate.
func (s *SQLiteStorage) Store(ctx context.Context, e *analysis.Envelope) error {
	discrepancies := e.Discrepancies
	if discrepancies == nil {
		discrepancies = []analysis.Discrepancy{}
	}
	discJSON, err := json.Marshal(discrepancies)
	if err != nil {
		return analysis.NewStorageError("sqlite", "store", err)
	}

	const insert = `
		INSERT INTO analyses (
			id, correlation_id, method, path, query, fingerprint, endpoint, analyzed_at,
			legacy_status, replacement_status, legacy_elapsed_ns, replacement_elapsed_ns, legacy_error, replacement_error,
			discrepancies, critical_count, major_count, minor_count, overall_match, summary, error, patch, selected_target
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, insert,
		e.ID, e.CorrelationID, e.Method, e.Path, nullString(e.Query), e.Fingerprint, e.Endpoint, e.AnalyzedAt.UnixNano(),
		nullInt(e.LegacyStatus), nullInt(e.ReplacementStatus), int64(e.LegacyElapsed), int64(e.ReplacementElapsed),
		nullString(e.LegacyError), nullString(e.ReplacementError),
		string(discJSON), e.CriticalCount, e.MajorCount, e.MinorCount, string(e.Match),
		nullString(e.Summary), nullString(e.Error), nullString(string(e.Patch)), string(e.SelectedTarget),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return analysis.NewStorageError("sqlite", "store", fmt.Errorf("%w: %s", analysis.ErrDuplicate, e.ID))
		}
		return analysis.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Get returns a single envelope by id.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*analysis.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM analyses WHERE id = ?", id)
	if err != nil {
		return nil, analysis.NewStorageError("sqlite", "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, analysis.NewStorageError("sqlite", "get", err)
		}
		return nil, analysis.ErrNotFound
	}
	e, err := scanRow(rows)
	if err != nil {
		return nil, analysis.NewStorageError("sqlite", "scan", err)
	}
	return e, nil
}

// Query retrieves envelopes matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *analysis.Query) ([]*analysis.Envelope, error) {
	sqlQuery, args := buildSelect(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, analysis.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	envelopes := []*analysis.Envelope{}
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, analysis.NewStorageError("sqlite", "scan", err)
		}
		envelopes = append(envelopes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, analysis.NewStorageError("sqlite", "query", err)
	}
	return envelopes, nil
}

// QueryStream returns a channel of envelopes for memory-efficient streaming.
// A zero Count streams every match.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *analysis.Query) (<-chan *analysis.Envelope, <-chan error, error) {
	envelopesCh := make(chan *analysis.Envelope, 100)
	errCh := make(chan error, 1)

	sqlQuery, args := buildSelect(query)

	go func() {
		defer close(envelopesCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- analysis.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanRow(rows)
			if err != nil {
				errCh <- analysis.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case envelopesCh <- e:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- analysis.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return envelopesCh, errCh, nil
}

// Count returns the number of envelopes matching the filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *analysis.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM analyses"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, analysis.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes envelopes matching the filters. When the query carries a
// Count, only the oldest Count matching envelopes are removed.
func (s *SQLiteStorage) Delete(ctx context.Context, query *analysis.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM analyses"
	if query != nil && query.Count > 0 {
		inner := "SELECT seq FROM analyses"
		if where != "" {
			inner += " WHERE " + where
		}
		inner += fmt.Sprintf(" ORDER BY analyzed_at ASC, seq ASC LIMIT %d", query.Count)
		sqlQuery += " WHERE seq IN (" + inner + ")"
	} else if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, analysis.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, analysis.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return analysis.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func buildSelect(query *analysis.Query) (string, []interface{}) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT " + selectColumns + " FROM analyses"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	order := "DESC"
	if query != nil && strings.EqualFold(query.SortOrder, "asc") {
		order = "ASC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY analyzed_at %s, seq %s", order, order)

	if query != nil && query.Count > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Count)
		if query.Skip > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", query.Skip)
		}
	} else if query != nil && query.Skip > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", query.Skip)
	}
	return sqlQuery, args
}

// buildWhereClause returns the WHERE clause (without the keyword) and its arguments.
func buildWhereClause(query *analysis.Query) (string, []interface{}) {
	if query == nil {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	if query.From != nil {
		conditions = append(conditions, "analyzed_at >= ?")
		args = append(args, query.From.UnixNano())
	}
	if query.To != nil {
		conditions = append(conditions, "analyzed_at <= ?")
		args = append(args, query.To.UnixNano())
	}
	if query.Path != "" {
		conditions = append(conditions, "substr(path, 1, ?) = ?")
		args = append(args, len(query.Path), query.Path)
	}
	if query.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, strings.ToUpper(query.Method))
	}
	if query.Match != "" {
		conditions = append(conditions, "overall_match = ?")
		args = append(args, string(query.Match))
	}
	if query.Endpoint != "" {
		conditions = append(conditions, "endpoint = ?")
		args = append(args, query.Endpoint)
	}

	return strings.Join(conditions, " AND "), args
}

func scanRow(rows *sql.Rows) (*analysis.Envelope, error) {
	var e analysis.Envelope
	var query, legacyErr, replacementErr, summary, errVal, patch sql.NullString
	var legacyStatus, replacementStatus sql.NullInt64
	var analyzedAt, legacyElapsed, replacementElapsed int64
	var discJSON, match, selected string

	err := rows.Scan(
		&e.ID, &e.CorrelationID, &e.Method, &e.Path, &query, &e.Fingerprint, &e.Endpoint, &analyzedAt,
		&legacyStatus, &replacementStatus, &legacyElapsed, &replacementElapsed, &legacyErr, &replacementErr,
		&discJSON, &e.CriticalCount, &e.MajorCount, &e.MinorCount, &match, &summary, &errVal, &patch, &selected,
	)
	if err != nil {
		return nil, err
	}

	e.Query = query.String
	e.AnalyzedAt = time.Unix(0, analyzedAt).UTC()
	e.LegacyStatus = intPtr(legacyStatus)
	e.ReplacementStatus = intPtr(replacementStatus)
	e.LegacyElapsed = time.Duration(legacyElapsed)
	e.ReplacementElapsed = time.Duration(replacementElapsed)
	e.LegacyError = legacyErr.String
	e.ReplacementError = replacementErr.String
	e.Match = analysis.OverallMatch(match)
	e.Summary = summary.String
	e.Error = errVal.String
	e.SelectedTarget = analysis.Target(selected)
	if patch.Valid && patch.String != "" {
		e.Patch = json.RawMessage(patch.String)
	}
	if err := json.Unmarshal([]byte(discJSON), &e.Discrepancies); err != nil {
		return nil, fmt.Errorf("decode discrepancies: %w", err)
	}

	return &e, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
