package storage

import (
	"github.com/getmockd/mockserver/pkg/mock"
)

// ExpectationStore defines the interface for storing expectations in
// registration order.
type ExpectationStore interface {
	// Get retrieves an expectation by ID. Returns nil if not found.
	Get(id string) *mock.Expectation

	// Add appends an expectation. An expectation with the same ID is
	// replaced in place and keeps its position.
	Add(e *mock.Expectation) error

	// Delete removes an expectation by ID. Returns true if deleted.
	Delete(id string) bool

	// List returns a snapshot of all expectations in registration order.
	List() []*mock.Expectation

	// RemoveIf removes every expectation for which fn returns true and
	// returns how many were removed.
	RemoveIf(fn func(*mock.Expectation) bool) int

	// Count returns the number of stored expectations.
	Count() int

	// Clear removes all stored expectations.
	Clear()
}
