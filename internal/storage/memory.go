package storage

import (
	"errors"
	"sync"

	"github.com/getmockd/mockserver/pkg/mock"
)

// ErrNilExpectation is returned when adding a nil expectation.
var ErrNilExpectation = errors.New("expectation is nil")

// InMemoryExpectationStore is a thread-safe in-memory implementation of ExpectationStore.
type InMemoryExpectationStore struct {
	mu    sync.RWMutex
	items []*mock.Expectation
}

// NewInMemoryExpectationStore creates a new InMemoryExpectationStore.
func NewInMemoryExpectationStore() *InMemoryExpectationStore {
	return &InMemoryExpectationStore{}
}

// Get retrieves an expectation by ID. Returns nil if not found.
func (s *InMemoryExpectationStore) Get(id string) *mock.Expectation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.items {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Add appends an expectation, replacing one with the same ID in place.
func (s *InMemoryExpectationStore) Add(e *mock.Expectation) error {
	if e == nil {
		return ErrNilExpectation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID != "" {
		for i, existing := range s.items {
			if existing.ID == e.ID {
				s.items[i] = e
				return nil
			}
		}
	}
	s.items = append(s.items, e)
	return nil
}

// Delete removes an expectation by ID. Returns true if deleted, false if not found.
func (s *InMemoryExpectationStore) Delete(id string) bool {
	return s.RemoveIf(func(e *mock.Expectation) bool { return e.ID == id }) > 0
}

// List returns a snapshot of all expectations in registration order.
func (s *InMemoryExpectationStore) List() []*mock.Expectation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mock.Expectation, len(s.items))
	copy(out, s.items)
	return out
}

// RemoveIf removes every expectation for which fn returns true.
func (s *InMemoryExpectationStore) RemoveIf(fn func(*mock.Expectation) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, e := range s.items {
		if fn(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// Drop references held by the tail of the backing array.
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	return removed
}

// Count returns the number of stored expectations.
func (s *InMemoryExpectationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes all stored expectations.
func (s *InMemoryExpectationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Ensure InMemoryExpectationStore implements ExpectationStore.
var _ ExpectationStore = (*InMemoryExpectationStore)(nil)
