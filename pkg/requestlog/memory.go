package requestlog

import (
	"sync"
	"time"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/pkg/mock"
)

// MemoryStore is an in-memory Store. Appends go through a single lock, so
// entry order equals the order in which Log was called.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []*Entry
	nextSeq    uint64
	maxEntries int
	matcher    *matching.Matcher
	now        func() time.Time
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithMaxEntries bounds the log; the oldest entries are evicted first.
// Zero or less means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *MemoryStore) {
		s.maxEntries = n
	}
}

// WithMatcher sets the matcher used by Retrieve and Clear.
func WithMatcher(m *matching.Matcher) Option {
	return func(s *MemoryStore) {
		if m != nil {
			s.matcher = m
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty, unbounded MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		matcher: matching.New(matching.Options{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log records req and returns its entry. A nil request is ignored.
func (s *MemoryStore) Log(req *mock.HTTPRequest) *Entry {
	if req == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	entry := &Entry{
		ID:        entryID(s.nextSeq),
		Sequence:  s.nextSeq,
		Timestamp: s.now(),
		Request:   req,
	}

	// FIFO eviction: remove oldest if at capacity
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.entries[0] = nil
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, entry)
	return entry
}

// Entries returns all entries in arrival order.
func (s *MemoryStore) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Requests returns all recorded requests in arrival order.
func (s *MemoryStore) Requests() []*mock.HTTPRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mock.HTTPRequest, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Request
	}
	return out
}

// Retrieve returns the recorded requests matching pattern.
func (s *MemoryStore) Retrieve(pattern *mock.HTTPRequest) ([]*mock.HTTPRequest, error) {
	requests := s.Requests()
	if pattern == nil {
		return requests, nil
	}
	out := make([]*mock.HTTPRequest, 0, len(requests))
	for _, req := range requests {
		ok, err := s.matcher.Match(pattern, req)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, req)
		}
	}
	return out, nil
}

// Clear removes the entries matching pattern.
func (s *MemoryStore) Clear(pattern *mock.HTTPRequest) (int, error) {
	if pattern == nil {
		s.mu.Lock()
		n := len(s.entries)
		s.entries = nil
		s.mu.Unlock()
		return n, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make([]bool, len(s.entries))
	n := 0
	for i, e := range s.entries {
		ok, err := s.matcher.Match(pattern, e.Request)
		if err != nil {
			return 0, err
		}
		if ok {
			remove[i] = true
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}

	kept := make([]*Entry, 0, len(s.entries)-n)
	for i, e := range s.entries {
		if !remove[i] {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return n, nil
}

// Reset removes all entries. Sequence numbers keep increasing.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Count returns the number of entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
