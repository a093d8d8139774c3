package requestlog

import (
	"strconv"
	"time"

	"github.com/getmockd/mockserver/pkg/mock"
)

// Entry is one recorded request.
type Entry struct {
	// ID is a unique identifier for the entry, e.g. "req-1a".
	ID string `json:"id"`

	// Sequence increases by one per entry and reflects arrival order.
	Sequence uint64 `json:"sequence"`

	// Timestamp is when the request was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Request is the decoded request. It must not be modified.
	Request *mock.HTTPRequest `json:"httpRequest"`
}

func entryID(seq uint64) string {
	return "req-" + strconv.FormatUint(seq, 36)
}
