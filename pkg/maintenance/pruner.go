package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/analysis/export"
)

// PrunerConfig contains configuration for envelope retention.
type PrunerConfig struct {
	// Retention is how long envelopes are kept. 0 keeps them forever.
	Retention time.Duration

	// MaxRecords caps the number of stored envelopes. 0 means unlimited.
	MaxRecords int64

	// ArchiveBeforeDelete exports pruned envelopes to ArchivePath first.
	ArchiveBeforeDelete bool
	ArchivePath         string
}

// DefaultPrunerConfig returns the default retention configuration.
func DefaultPrunerConfig() *PrunerConfig {
	return &PrunerConfig{
		Retention:   720 * time.Hour,
		ArchivePath: "data/archives/",
	}
}

// Pruner enforces retention on stored envelopes.
type Pruner struct {
	storage analysis.Storage
	config  *PrunerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a pruner over storage.
func NewPruner(storage analysis.Storage, config *PrunerConfig) *Pruner {
	if config == nil {
		config = DefaultPrunerConfig()
	}
	return &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "maintenance.pruner"),
		now:     time.Now,
	}
}

// Prune deletes envelopes older than the retention window, then the oldest
// envelopes beyond MaxRecords. It returns the total number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	byAge, err := p.pruneByAge(ctx)
	total += byAge
	if err != nil {
		return total, err
	}

	byCount, err := p.pruneByCount(ctx)
	total += byCount
	if err != nil {
		return total, err
	}

	if total > 0 {
		p.logger.Info("pruned envelopes", "by_age", byAge, "by_count", byCount)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	if p.config.Retention <= 0 {
		return 0, nil
	}

	// To is inclusive; step back so an envelope exactly at the cutoff survives.
	cutoff := p.now().Add(-p.config.Retention).Add(-time.Nanosecond)
	query := &analysis.Query{To: &cutoff, SortOrder: "asc"}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, query, "age"); err != nil {
			return 0, err
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired envelopes: %w", err)
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	if p.config.MaxRecords <= 0 {
		return 0, nil
	}

	total, err := p.storage.Count(ctx, &analysis.Query{})
	if err != nil {
		return 0, fmt.Errorf("count envelopes: %w", err)
	}
	excess := total - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	query := &analysis.Query{SortOrder: "asc", Count: int(excess)}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, query, "count"); err != nil {
			return 0, err
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete excess envelopes: %w", err)
	}
	return deleted, nil
}

// archive streams the envelopes selected by query into a timestamped JSON file.
func (p *Pruner) archive(ctx context.Context, query *analysis.Query, reason string) error {
	n, err := p.storage.Count(ctx, query)
	if err != nil {
		return fmt.Errorf("count envelopes for archive: %w", err)
	}
	if query.Count > 0 && int64(query.Count) < n {
		n = int64(query.Count)
	}
	if n == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("analyses-%s-%s.json", reason, p.now().UTC().Format("2006-01-02-150405.000000000"))
	archiveFile := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(archiveFile)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	envelopes, errs, err := p.storage.QueryStream(ctx, query)
	if err != nil {
		return fmt.Errorf("stream envelopes for archive: %w", err)
	}
	if err := export.NewJSONExporter(true).ExportStream(ctx, envelopes, f); err != nil {
		return fmt.Errorf("archive envelopes: %w", err)
	}
	if err := <-errs; err != nil {
		return fmt.Errorf("stream envelopes for archive: %w", err)
	}

	p.logger.Info("envelopes archived", "archive_file", archiveFile, "record_count", n)
	return nil
}
