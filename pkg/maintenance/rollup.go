package maintenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// accumulator sums one endpoint's envelopes.
type accumulator struct {
	metric                analysis.EndpointMetric
	legacySum, replSum    time.Duration
	legacyN, replacementN int64
}

func (a *accumulator) add(e *analysis.Envelope) {
	m := &a.metric
	m.Total++
	switch e.Match {
	case analysis.MatchPerfect:
		m.PerfectMatches++
	case analysis.MatchMinorDifferences:
		m.MinorDifferences++
	case analysis.MatchMajorDifferences:
		m.MajorDifferences++
	case analysis.MatchCriticalDifferences:
		m.CriticalDifferences++
	case analysis.MatchLegacyMissing:
		m.LegacyMissing++
	case analysis.MatchReplacementMissing:
		m.ReplacementMissing++
	case analysis.MatchBothMissing:
		m.BothMissing++
	case analysis.MatchComparisonError:
		m.ComparisonErrors++
	}
	if e.LegacyStatus != nil {
		a.legacySum += e.LegacyElapsed
		a.legacyN++
	}
	if e.ReplacementStatus != nil {
		a.replSum += e.ReplacementElapsed
		a.replacementN++
	}
	if e.AnalyzedAt.After(m.LastSeen) {
		m.LastSeen = e.AnalyzedAt
	}
}

func (a *accumulator) finish() analysis.EndpointMetric {
	m := a.metric
	m.Scored = m.Total - m.BothMissing - m.ComparisonErrors
	m.CompatibilityScore = Score(m.PerfectMatches+m.MinorDifferences, m.Scored)
	if a.legacyN > 0 {
		m.AvgLegacyLatency = a.legacySum / time.Duration(a.legacyN)
	}
	if a.replacementN > 0 {
		m.AvgReplacementLatency = a.replSum / time.Duration(a.replacementN)
	}
	return m
}

// Score returns compatible/scored as a percentage, or 0 when nothing was scored.
func Score(compatible, scored int64) float64 {
	if scored <= 0 {
		return 0
	}
	return float64(compatible) / float64(scored) * 100
}

// Rollup streams every stored envelope and aggregates per-endpoint metrics.
func Rollup(ctx context.Context, storage analysis.Storage, now time.Time) (*analysis.Snapshot, error) {
	envelopes, errs, err := storage.QueryStream(ctx, &analysis.Query{SortOrder: "asc"})
	if err != nil {
		return nil, fmt.Errorf("stream analyses: %w", err)
	}

	overall := &accumulator{metric: analysis.EndpointMetric{Endpoint: "*"}}
	byEndpoint := make(map[string]*accumulator)

	for e := range envelopes {
		overall.add(e)
		acc, ok := byEndpoint[e.Endpoint]
		if !ok {
			acc = &accumulator{metric: analysis.EndpointMetric{Endpoint: e.Endpoint}}
			byEndpoint[e.Endpoint] = acc
		}
		acc.add(e)
	}
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("stream analyses: %w", err)
	}

	snap := &analysis.Snapshot{
		GeneratedAt: now.UTC(),
		Overall:     overall.finish(),
		Endpoints:   make([]analysis.EndpointMetric, 0, len(byEndpoint)),
	}
	for _, acc := range byEndpoint {
		snap.Endpoints = append(snap.Endpoints, acc.finish())
	}
	sort.Slice(snap.Endpoints, func(i, j int) bool {
		return snap.Endpoints[i].Endpoint < snap.Endpoints[j].Endpoint
	})
	return snap, nil
}
