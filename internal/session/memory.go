package session

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests. Records are
// deep-copied through JSON so callers never share a live pointer with the
// store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Load returns (nil, nil) for an unknown session.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	data, ok := s.records[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Save stores a copy of the record.
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[record.SessionID] = data
	s.mu.Unlock()
	return nil
}

// Delete removes the record if present.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.records, sessionID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
