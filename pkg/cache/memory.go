package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Entries are never evicted.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return e.clone(), nil
}

func (s *MemoryStore) IncrementCapped(_ context.Context, key, queryText string, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = Entry{Key: key}
	}
	e.QueryText = queryText
	e.UseCount = min(e.UseCount+1, limit)
	s.entries[key] = e
	return e.UseCount, nil
}

func (s *MemoryStore) SaveResult(_ context.Context, key, queryText string, rows []byte, at time.Time, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = Entry{Key: key}
	}
	blob := string(rows)
	ts := at
	e.QueryText = queryText
	e.SerializedRows = &blob
	e.LastUpdated = &ts
	e.UseCount = limit
	s.entries[key] = e
	return nil
}

func (e Entry) clone() *Entry {
	out := e
	if e.SerializedRows != nil {
		v := *e.SerializedRows
		out.SerializedRows = &v
	}
	if e.LastUpdated != nil {
		v := *e.LastUpdated
		out.LastUpdated = &v
	}
	return &out
}
