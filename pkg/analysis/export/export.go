// Package export writes stored envelopes as JSON or CSV for offline review.
package export

import (
	"context"
	"fmt"
	"io"

	"nocturne-hq/parity/pkg/analysis"
)

// StreamExporter is implemented by exporters that can consume a stream.
type StreamExporter interface {
	analysis.Exporter
	ExportStream(ctx context.Context, envelopesCh <-chan *analysis.Envelope, w io.Writer) error
}

// New returns the exporter for a format name ("json" or "csv").
func New(format string, pretty bool) (StreamExporter, error) {
	switch format {
	case "json", "":
		return NewJSONExporter(pretty), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want json or csv)", format)
	}
}
