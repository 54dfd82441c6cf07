// Package memstore is an in-memory session table with the same paging
// contract as the SQL store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/aatumaykin/botsweep/internal/session"
)

// Store holds records keyed by ID. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]session.Record
}

// New returns a store seeded with records.
func New(records ...session.Record) *Store {
	s := &Store{records: make(map[string]session.Record, len(records))}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

// Put inserts or replaces a record.
func (s *Store) Put(r session.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// IDs returns all stored ids in ascending order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedIDs()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) FetchBatch(ctx context.Context, afterID *string, limit int) ([]session.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDs()
	start := 0
	if afterID != nil {
		start = sort.Search(len(ids), func(i int) bool { return ids[i] > *afterID })
	}

	var batch []session.Record
	for _, id := range ids[start:] {
		if len(batch) >= limit {
			break
		}
		batch = append(batch, s.records[id])
	}
	return batch, nil
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return 0, nil
	}
	delete(s.records, id)
	return 1, nil
}

func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
