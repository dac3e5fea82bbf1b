package export

import (
	"context"
	"encoding/json"
	"io"

	"nocturne-hq/parity/pkg/analysis"
)

// JSONExporter exports envelopes as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes all envelopes as one JSON array.
func (e *JSONExporter) Export(ctx context.Context, envelopes []*analysis.Envelope, w io.Writer) error {
	if envelopes == nil {
		envelopes = []*analysis.Envelope{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(envelopes, "", "  ")
	} else {
		data, err = json.Marshal(envelopes)
	}
	if err != nil {
		return analysis.NewExportError("json", len(envelopes), err)
	}

	if _, err := w.Write(data); err != nil {
		return analysis.NewExportError("json", len(envelopes), err)
	}
	return nil
}

// ExportStream writes envelopes from a channel as a JSON array without
// buffering the whole result set.
func (e *JSONExporter) ExportStream(ctx context.Context, envelopesCh <-chan *analysis.Envelope, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return analysis.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case envelope, ok := <-envelopesCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return analysis.NewExportError("json", count, err)
				}
				return nil
			}

			if count > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := io.WriteString(w, sep); err != nil {
					return analysis.NewExportError("json", count, err)
				}
			}

			var data []byte
			var err error
			if e.Pretty {
				data, err = json.MarshalIndent(envelope, "  ", "  ")
			} else {
				data, err = json.Marshal(envelope)
			}
			if err != nil {
				return analysis.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return analysis.NewExportError("json", count, err)
			}
			count++
		}
	}
}
