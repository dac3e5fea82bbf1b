package maintenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"nocturne-hq/parity/pkg/analysis"
)

// SnapshotStore persists published rollup snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *analysis.Snapshot) error

	// Latest returns the most recently saved snapshot or analysis.ErrNotFound.
	Latest(ctx context.Context) (*analysis.Snapshot, error)

	Close() error
}

// SQLiteSnapshotStoreConfig configures the snapshot store.
type SQLiteSnapshotStoreConfig struct {
	// Path is the SQLite database file.
	Path string

	// Keep is how many snapshots are retained. Default: 96
	Keep int

	// CheckpointInterval is how often the WAL is checkpointed. Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks. Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteSnapshotStore keeps a bounded history of snapshots in a SQLite file
// separate from the analysis store.
type SQLiteSnapshotStore struct {
	db                 *sql.DB
	keep               int
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once

	saveStmt   *sql.Stmt
	latestStmt *sql.Stmt
	trimStmt   *sql.Stmt
}

// NewSQLiteSnapshotStore opens (or creates) the snapshot database.
func NewSQLiteSnapshotStore(cfg SQLiteSnapshotStoreConfig) (*SQLiteSnapshotStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 96
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, analysis.NewStorageError("snapshot", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteSnapshotStore{
		db:                 db,
		keep:               cfg.Keep,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, analysis.NewStorageError("snapshot", "init schema", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, analysis.NewStorageError("snapshot", "prepare", err)
	}

	go s.checkpointLoop()

	return s, nil
}

func (s *SQLiteSnapshotStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		generated_at INTEGER NOT NULL,
		overall_score REAL NOT NULL,
		total INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);
	`)
	return err
}

func (s *SQLiteSnapshotStore) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO snapshots (generated_at, overall_score, total, payload)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.latestStmt, err = s.db.Prepare(`
		SELECT payload FROM snapshots ORDER BY seq DESC LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare latest statement: %w", err)
	}

	s.trimStmt, err = s.db.Prepare(`
		DELETE FROM snapshots
		WHERE seq NOT IN (SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trim statement: %w", err)
	}

	return nil
}

// Save appends snapshot and trims the history to the configured size.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, snapshot *analysis.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return analysis.NewStorageError("snapshot", "marshal", err)
	}

	if _, err := s.saveStmt.ExecContext(ctx,
		snapshot.GeneratedAt.UnixNano(),
		snapshot.Overall.CompatibilityScore,
		snapshot.Overall.Total,
		string(payload),
	); err != nil {
		return analysis.NewStorageError("snapshot", "save", err)
	}

	if _, err := s.trimStmt.ExecContext(ctx, s.keep); err != nil {
		return analysis.NewStorageError("snapshot", "trim", err)
	}
	return nil
}

// Latest returns the most recent snapshot.
func (s *SQLiteSnapshotStore) Latest(ctx context.Context) (*analysis.Snapshot, error) {
	var payload string
	err := s.latestStmt.QueryRowContext(ctx).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, analysis.NewStorageError("snapshot", "latest", err)
	}

	var snap analysis.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, analysis.NewStorageError("snapshot", "unmarshal", err)
	}
	return &snap, nil
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteSnapshotStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// Close stops the checkpoint loop and closes the database. It is idempotent.
func (s *SQLiteSnapshotStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.saveStmt, s.latestStmt, s.trimStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})

	return closeErr
}

// MemorySnapshotStore keeps only the latest snapshot in memory.
type MemorySnapshotStore struct {
	mu     sync.RWMutex
	latest *analysis.Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(_ context.Context, snapshot *analysis.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	m.mu.Lock()
	m.latest = snapshot
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotStore) Latest(_ context.Context) (*analysis.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, analysis.ErrNotFound
	}
	return m.latest, nil
}

func (m *MemorySnapshotStore) Close() error { return nil }
