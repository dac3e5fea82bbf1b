package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"nocturne-hq/parity/pkg/analysis"
)

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveAlert(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.results...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func critical(id string) *analysis.Envelope {
	return &analysis.Envelope{
		ID:            id,
		Match:         analysis.MatchCriticalDifferences,
		CriticalCount: 1,
		Discrepancies: []analysis.Discrepancy{
			{Kind: analysis.KindHeader, Severity: analysis.SeverityMinor},
			{Kind: analysis.KindNumericValue, Path: "sgv", Severity: analysis.SeverityCritical},
		},
	}
}

func TestThreshold_Reaches(t *testing.T) {
	tests := []struct {
		threshold Threshold
		match     analysis.OverallMatch
		want      bool
	}{
		{ThresholdCritical, analysis.MatchCriticalDifferences, true},
		{ThresholdCritical, analysis.MatchMajorDifferences, false},
		{ThresholdMajor, analysis.MatchMajorDifferences, true},
		{ThresholdMajor, analysis.MatchMinorDifferences, false},
		{ThresholdMajor, analysis.MatchBothMissing, false},
	}
	for _, tt := range tests {
		if got := tt.threshold.Reaches(tt.match); got != tt.want {
			t.Errorf("%s.Reaches(%s) = %v, want %v", tt.threshold, tt.match, got, tt.want)
		}
	}
}

func TestNewPayload_OrdersBySeverity(t *testing.T) {
	p := NewPayload(critical("a"))
	if len(p.Discrepancies) != 2 || p.Discrepancies[0].Severity != analysis.SeverityCritical {
		t.Errorf("Discrepancies = %+v, want critical first", p.Discrepancies)
	}
}

func TestForwarder_Delivers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var got atomic.Value
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		json.NewDecoder(r.Body).Decode(&p)
		got.Store(p)
	}))
	defer sink.Close()

	obs := &recordingObserver{}
	f := NewForwarder(Config{Endpoint: sink.URL, RatePerSecond: 100}, obs)
	defer f.Close()

	if f.Notify(&analysis.Envelope{ID: "minor", Match: analysis.MatchMinorDifferences}) {
		t.Error("minor envelope queued under critical threshold")
	}
	if !f.Notify(critical("crit")) {
		t.Fatal("critical envelope not queued")
	}

	waitFor(t, func() bool { return len(obs.snapshot()) == 1 })
	if obs.snapshot()[0] != "sent" {
		t.Errorf("result = %q, want sent", obs.snapshot()[0])
	}
	if p, _ := got.Load().(Payload); p.ID != "crit" {
		t.Errorf("sink received %+v", p)
	}
}

func TestForwarder_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sink.Close()

	obs := &recordingObserver{}
	f := NewForwarder(Config{Endpoint: sink.URL, MaxRetries: 2, RetryBackoff: time.Millisecond, RatePerSecond: 100}, obs)
	defer f.Close()

	f.Notify(critical("x"))
	waitFor(t, func() bool { return len(obs.snapshot()) == 1 })

	if obs.snapshot()[0] != "failed" {
		t.Errorf("result = %q, want failed", obs.snapshot()[0])
	}
	if calls.Load() != 3 {
		t.Errorf("sink called %d times, want 3", calls.Load())
	}
}

func TestForwarder_FullQueueDrops(t *testing.T) {
	release := make(chan struct{})
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer sink.Close()
	defer close(release)

	obs := &recordingObserver{}
	f := NewForwarder(Config{Endpoint: sink.URL, QueueSize: 1, RatePerSecond: 100, Timeout: time.Second}, obs)
	defer f.Close()

	f.Notify(critical("1"))
	waitFor(t, func() bool { return len(f.queue) == 0 })
	f.Notify(critical("2"))

	if f.Notify(critical("3")) {
		t.Error("Notify() queued beyond capacity")
	}
	if res := obs.snapshot(); len(res) != 1 || res[0] != "dropped" {
		t.Errorf("results = %v, want [dropped]", res)
	}
}
