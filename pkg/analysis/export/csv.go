package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// CSVExporter exports envelopes one row each. Discrepancies are flattened to
// "Kind@path(Severity)" entries joined by ';'.
type CSVExporter struct {
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "correlation_id", "analyzed_at",
	"method", "path", "query", "endpoint", "fingerprint",
	"legacy_status", "replacement_status", "legacy_elapsed_ms", "replacement_elapsed_ms",
	"legacy_error", "replacement_error",
	"overall_match", "critical_count", "major_count", "minor_count",
	"selected_target", "summary", "error", "discrepancies",
}

// Export writes all envelopes as CSV.
func (e *CSVExporter) Export(ctx context.Context, envelopes []*analysis.Envelope, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return analysis.NewExportError("csv", len(envelopes), err)
		}
	}
	for _, envelope := range envelopes {
		if err := writer.Write(toRow(envelope)); err != nil {
			return analysis.NewExportError("csv", len(envelopes), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return analysis.NewExportError("csv", len(envelopes), err)
	}
	return nil
}

// ExportStream writes envelopes from a channel as CSV, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, envelopesCh <-chan *analysis.Envelope, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return analysis.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case envelope, ok := <-envelopesCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return analysis.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(toRow(envelope)); err != nil {
				return analysis.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return analysis.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func toRow(e *analysis.Envelope) []string {
	status := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	ms := func(d time.Duration) string {
		return strconv.FormatInt(d.Milliseconds(), 10)
	}

	discrepancies := make([]string, 0, len(e.Discrepancies))
	for _, d := range e.Discrepancies {
		discrepancies = append(discrepancies, string(d.Kind)+"@"+d.Path+"("+string(d.Severity)+")")
	}

	return []string{
		e.ID, e.CorrelationID, e.AnalyzedAt.UTC().Format(time.RFC3339Nano),
		e.Method, e.Path, e.Query, e.Endpoint, e.Fingerprint,
		status(e.LegacyStatus), status(e.ReplacementStatus), ms(e.LegacyElapsed), ms(e.ReplacementElapsed),
		e.LegacyError, e.ReplacementError,
		string(e.Match), strconv.Itoa(e.CriticalCount), strconv.Itoa(e.MajorCount), strconv.Itoa(e.MinorCount),
		string(e.SelectedTarget), e.Summary, e.Error, strings.Join(discrepancies, ";"),
	}
}
