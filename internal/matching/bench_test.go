package matching

import (
	"testing"

	"github.com/getmockd/mockserver/pkg/mock"
)

func benchMatch(b *testing.B, pattern, req *mock.HTTPRequest) {
	b.Helper()
	m := New(Options{})
	b.ReportAllocs()
	for b.Loop() {
		if ok, err := m.Match(pattern, req); !ok || err != nil {
			b.Fatalf("no match: %v", err)
		}
	}
}

func BenchmarkMatch_Path(b *testing.B) {
	benchMatch(b,
		mock.NewRequest().WithMethod("GET").WithPath("/api/users"),
		mock.NewRequest().WithMethod("GET").WithPath("/api/users"))
}

func BenchmarkMatch_PathRegex(b *testing.B) {
	benchMatch(b,
		mock.NewRequest().WithPath("/api/users/[0-9]+"),
		mock.NewRequest().WithMethod("GET").WithPath("/api/users/12345"))
}

func BenchmarkMatch_Headers(b *testing.B) {
	benchMatch(b,
		mock.NewRequest().WithHeader("Accept", "application/json").WithHeader("X-Trace", ".*"),
		mock.NewRequest().WithPath("/").
			WithHeader("Accept", "text/html", "application/json").
			WithHeader("X-Trace", "abc123").
			WithHeader("User-Agent", "bench"))
}

func BenchmarkMatch_JSONBody(b *testing.B) {
	benchMatch(b,
		mock.NewRequest().WithBody(mock.JSONBody(`{"user":{"name":"alice"}}`, mock.JSONOnlyMatchingFields)),
		mock.NewRequest().WithBody(mock.StringBody(`{"user":{"name":"alice","age":30},"tags":["a","b"]}`)))
}

func BenchmarkMatch_JSONPathBody(b *testing.B) {
	benchMatch(b,
		mock.NewRequest().WithBody(mock.JSONPathBody("$.items[*].price")),
		mock.NewRequest().WithBody(mock.StringBody(`{"items":[{"price":5},{"price":15}]}`)))
}
