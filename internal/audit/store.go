// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory. Used in tests and for the
// orchestrator's unit tests that don't need a real DuckDB handle; the
// running server always uses DuckDBStore.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

// Save persists an event, returning ErrDuplicateEvalID and the existing
// record if EvalID was already saved.
func (s *MemoryStore) Save(ctx context.Context, event *Event) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.events[event.EvalID]; ok {
		return existing, ErrDuplicateEvalID
	}

	stored := *event
	s.events[event.EvalID] = &stored
	return &stored, nil
}

// Get retrieves an event by eval_id.
func (s *MemoryStore) Get(ctx context.Context, evalID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[evalID]
	if !ok {
		return nil, nil
	}
	stored := *event
	return &stored, nil
}
