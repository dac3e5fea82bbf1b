package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nocturne-hq/parity/pkg/analysis"
)

// MemoryStorage implements analysis.Storage in memory. Envelopes are lost on
// restart; it backs tests and the "memory" storage backend.
type MemoryStorage struct {
	mu        sync.RWMutex
	envelopes []*analysis.Envelope
	byID      map[string]*analysis.Envelope
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID: make(map[string]*analysis.Envelope),
	}
}

// Store persists a copy of the envelope.
func (s *MemoryStorage) Store(ctx context.Context, e *analysis.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[e.ID]; ok {
		return analysis.NewStorageError("memory", "store", fmt.Errorf("%w: %s", analysis.ErrDuplicate, e.ID))
	}

	c := e.Clone()
	s.envelopes = append(s.envelopes, c)
	s.byID[c.ID] = c
	return nil
}

// Get returns a copy of the envelope with the given id.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*analysis.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	return e.Clone(), nil
}

// Query retrieves envelopes matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *analysis.Query) ([]*analysis.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.sorted(query)
	matched = paginate(matched, query)

	results := make([]*analysis.Envelope, 0, len(matched))
	for _, e := range matched {
		results = append(results, e.Clone())
	}
	return results, nil
}

// QueryStream streams envelopes matching the query filters.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *analysis.Query) (<-chan *analysis.Envelope, <-chan error, error) {
	envelopes, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	envelopesCh := make(chan *analysis.Envelope, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(envelopesCh)
		defer close(errCh)

		for _, e := range envelopes {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case envelopesCh <- e:
			}
		}
	}()

	return envelopesCh, errCh, nil
}

// Count returns the number of envelopes matching the filters.
func (s *MemoryStorage) Count(ctx context.Context, query *analysis.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.envelopes {
		if matchesQuery(e, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes matching envelopes. A positive Count limits deletion to the
// oldest Count matches.
func (s *MemoryStorage) Delete(ctx context.Context, query *analysis.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := -1
	if query != nil && query.Count > 0 {
		limit = query.Count
	}

	oldest := make([]*analysis.Envelope, len(s.envelopes))
	copy(oldest, s.envelopes)
	sort.SliceStable(oldest, func(i, j int) bool {
		return oldest[i].AnalyzedAt.Before(oldest[j].AnalyzedAt)
	})

	doomed := make(map[string]struct{})
	for _, e := range oldest {
		if limit >= 0 && len(doomed) >= limit {
			break
		}
		if matchesQuery(e, query) {
			doomed[e.ID] = struct{}{}
		}
	}

	kept := s.envelopes[:0]
	for _, e := range s.envelopes {
		if _, ok := doomed[e.ID]; ok {
			delete(s.byID, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.envelopes); i++ {
		s.envelopes[i] = nil
	}
	s.envelopes = kept

	return int64(len(doomed)), nil
}

// Close is a no-op for memory storage.
func (s *MemoryStorage) Close() error {
	return nil
}

// Clear removes every envelope.
func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envelopes = nil
	s.byID = make(map[string]*analysis.Envelope)
}

// sorted returns the matching envelopes in the query's order. Callers hold the read lock.
func (s *MemoryStorage) sorted(query *analysis.Query) []*analysis.Envelope {
	var matched []*analysis.Envelope
	for _, e := range s.envelopes {
		if matchesQuery(e, query) {
			matched = append(matched, e)
		}
	}

	asc := query != nil && strings.EqualFold(query.SortOrder, "asc")

	// Insertion order breaks ties, so the stable sort keeps it.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AnalyzedAt.Before(matched[j].AnalyzedAt)
	})
	if !asc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return matched
}

func paginate(envelopes []*analysis.Envelope, query *analysis.Query) []*analysis.Envelope {
	if query == nil {
		return envelopes
	}
	if query.Skip > 0 {
		if query.Skip >= len(envelopes) {
			return nil
		}
		envelopes = envelopes[query.Skip:]
	}
	if query.Count > 0 && query.Count < len(envelopes) {
		envelopes = envelopes[:query.Count]
	}
	return envelopes
}

func matchesQuery(e *analysis.Envelope, query *analysis.Query) bool {
	if query == nil {
		return true
	}
	if query.From != nil && e.AnalyzedAt.Before(*query.From) {
		return false
	}
	if query.To != nil && e.AnalyzedAt.After(*query.To) {
		return false
	}
	if query.Path != "" && !strings.HasPrefix(e.Path, query.Path) {
		return false
	}
	if query.Method != "" && !strings.EqualFold(e.Method, query.Method) {
		return false
	}
	if query.Match != "" && e.Match != query.Match {
		return false
	}
	if query.Endpoint != "" && e.Endpoint != query.Endpoint {
		return false
	}
	return true
}
