package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"nocturne-hq/parity/pkg/alert"
	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/storage"
	"nocturne-hq/parity/pkg/compare"
	"nocturne-hq/parity/pkg/config"
	"nocturne-hq/parity/pkg/forward"
	"nocturne-hq/parity/pkg/maintenance"
)

// OpenStorage opens the configured analysis store. The CLI uses it to read
// analyses without starting the proxy.
func OpenStorage(cfg *config.StorageConfig) (analysis.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite", "":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// OpenSnapshotStore opens the rollup snapshot store. Snapshots live in memory
// when analyses do.
func OpenSnapshotStore(cfg *config.Config) (maintenance.SnapshotStore, error) {
	if cfg.Storage.Backend == "memory" {
		return maintenance.NewMemorySnapshotStore(), nil
	}
	if err := ensureDir(cfg.Maintenance.SnapshotPath); err != nil {
		return nil, err
	}
	return maintenance.NewSQLiteSnapshotStore(maintenance.SQLiteSnapshotStoreConfig{
		Path:        cfg.Maintenance.SnapshotPath,
		BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
	})
}

// NewMaintenanceWorker builds the worker over st and loads the latest
// persisted snapshot. observer may be nil.
func NewMaintenanceWorker(ctx context.Context, cfg *config.MaintenanceConfig, st analysis.Storage, snapshots maintenance.SnapshotStore, observer maintenance.Observer) (*maintenance.Worker, error) {
	pruner := maintenance.NewPruner(st, &maintenance.PrunerConfig{
		Retention:           cfg.Retention,
		MaxRecords:          cfg.MaxRecords,
		ArchiveBeforeDelete: cfg.ArchiveBeforeDelete,
		ArchivePath:         cfg.ArchivePath,
	})
	worker := maintenance.NewWorker(st, pruner, snapshots, observer)
	if err := worker.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load compatibility snapshot: %w", err)
	}
	return worker, nil
}

// CompareOptions converts the comparison rules from configuration.
func CompareOptions(cfg *config.CompareConfig) compare.Options {
	return compare.Options{
		IgnoredFields:         cfg.IgnoredFields,
		TimestampFields:       cfg.TimestampFields,
		CriticalFields:        cfg.CriticalFields,
		ComparedHeaders:       cfg.ComparedHeaders,
		NumericEpsilon:        cfg.NumericEpsilon,
		PerformanceMultiplier: cfg.PerformanceMultiplier,
		PerformanceMinDelta:   cfg.PerformanceMinDelta,
	}
}

// TargetConfig converts one target's client settings.
func TargetConfig(target analysis.Target, cfg *config.TargetConfig) forward.TargetConfig {
	return forward.TargetConfig{
		Target:       target,
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		MaxIdleConns: cfg.MaxIdleConns,
	}
}

// AlertConfig converts the alert forwarder settings.
func AlertConfig(cfg *config.AlertsConfig) (alert.Config, error) {
	threshold, err := alert.ParseThreshold(cfg.Threshold)
	if err != nil {
		return alert.Config{}, err
	}
	return alert.Config{
		Endpoint:      cfg.Endpoint,
		Threshold:     threshold,
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		QueueSize:     cfg.QueueSize,
		RatePerSecond: cfg.RatePerSecond,
	}, nil
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory for %s: %w", path, err)
	}
	return nil
}
