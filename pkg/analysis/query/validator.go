// Package query validates and normalizes analysis queries.
package query

import (
	"fmt"
	"strings"

	"nocturne-hq/parity/pkg/analysis"
)

const (
	// DefaultCount is used when a query does not specify a page size.
	DefaultCount = 100

	// MaxCount is the largest page a single query may request.
	MaxCount = 1000
)

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate returns a QueryError describing the first invalid parameter.
func Validate(q *analysis.Query) error {
	if q.Count < 0 {
		return analysis.NewQueryError(q, fmt.Errorf("count must be >= 0, got %d", q.Count))
	}
	if q.Count > MaxCount {
		return analysis.NewQueryError(q, fmt.Errorf("count must be <= %d, got %d", MaxCount, q.Count))
	}
	if q.Skip < 0 {
		return analysis.NewQueryError(q, fmt.Errorf("skip must be >= 0, got %d", q.Skip))
	}
	if q.SortOrder != "" && !ValidSortOrders[strings.ToLower(q.SortOrder)] {
		return analysis.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return analysis.NewQueryError(q, fmt.Errorf("from must not be after to"))
	}
	if q.Match != "" {
		if _, ok := analysis.ParseMatch(string(q.Match)); !ok {
			return analysis.NewQueryError(q, fmt.Errorf("invalid overall match: %s", q.Match))
		}
	}
	return nil
}

// ApplyDefaults fills in the page size and sort order.
func ApplyDefaults(q *analysis.Query) {
	if q.Count == 0 {
		q.Count = DefaultCount
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
	q.SortOrder = strings.ToLower(q.SortOrder)
	if m, ok := analysis.ParseMatch(string(q.Match)); ok {
		q.Match = m
	}
	q.Method = strings.ToUpper(q.Method)
}
