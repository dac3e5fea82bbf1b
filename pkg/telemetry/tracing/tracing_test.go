package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"nocturne-hq/parity/pkg/analysis"
	"nocturne-hq/parity/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{"nil config", nil, true, false},
		{"disabled", &config.TracingConfig{Enabled: false}, false, false},
		{"bad sampler", &config.TracingConfig{Enabled: true, Sampler: "sometimes"}, true, false},
		{"bad ratio", &config.TracingConfig{Enabled: true, Sampler: "ratio", SampleRatio: 2}, true, false},
		{"bad exporter", &config.TracingConfig{Enabled: true, Sampler: "always", Exporter: "zipkin"}, true, false},
		{
			"otlp",
			&config.TracingConfig{Enabled: true, Sampler: "always", Endpoint: "localhost:4317", ServiceName: "parity", Insecure: true},
			false, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer tracer.Shutdown(context.Background())
			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.wantEnabled)
			}
		})
	}
}

func TestCreateSampler(t *testing.T) {
	for _, s := range []string{SamplerAlways, SamplerNever, SamplerRatio, ""} {
		if _, err := createSampler(s, 0.5); err != nil {
			t.Errorf("createSampler(%q) failed: %v", s, err)
		}
	}
	if _, err := createSampler(SamplerRatio, -0.1); err == nil {
		t.Error("negative ratio accepted")
	}
}

func TestPropagationRoundTrip(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "inbound")
	defer span.End()

	headers := http.Header{}
	Inject(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("traceparent not injected")
	}

	var seen string
	handler := HTTPMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries", nil)
	req.Header = headers
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen == "" || seen != TraceID(ctx) {
		t.Errorf("extracted trace id = %q, want %q", seen, TraceID(ctx))
	}
}

func TestSetEnvelopeAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer tracer.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "compare")
	SetEnvelopeAttributes(span, &analysis.Envelope{
		CorrelationID:  "corr-1",
		Endpoint:       "GET /api/v1/entries",
		SelectedTarget: analysis.TargetReplacement,
		Match:          analysis.MatchBothMissing,
	})
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	got := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["parity.overall_match"] != "BothMissing" || got["parity.correlation_id"] != "corr-1" {
		t.Errorf("attributes = %v", got)
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status())
	}
}

func TestTraceID_Empty(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID() = %q, want empty", id)
	}
}
