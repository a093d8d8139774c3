package requestlog

import (
	"github.com/getmockd/mockserver/pkg/mock"
)

// Logger is the minimal interface for recording requests.
type Logger interface {
	Log(req *mock.HTTPRequest) *Entry
}

// Store defines the interface for request history storage.
type Store interface {
	Logger

	// Entries returns all entries in arrival order.
	Entries() []*Entry

	// Requests returns all recorded requests in arrival order.
	Requests() []*mock.HTTPRequest

	// Retrieve returns the recorded requests matching pattern in arrival
	// order. A nil pattern matches every request.
	Retrieve(pattern *mock.HTTPRequest) ([]*mock.HTTPRequest, error)

	// Clear removes the entries matching pattern and returns how many were
	// removed. A nil pattern removes everything. On error nothing is removed.
	Clear(pattern *mock.HTTPRequest) (int, error)

	// Reset removes all entries.
	Reset()

	// Count returns the number of entries.
	Count() int
}
