package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/requestlog"
)

func registryWith(n int) *Registry {
	r := NewRegistry()
	for i := range n {
		r.When(mock.NewRequest().WithMethod("GET").WithPath(fmt.Sprintf("/items/%d", i)),
			mock.TimesUnlimited(), mock.TTLUnlimited()).
			ThenRespond(mock.NewResponse())
	}
	return r
}

func BenchmarkRegistry_Match(b *testing.B) {
	for _, n := range []int{1, 100, 1000} {
		b.Run(fmt.Sprintf("expectations_%d", n), func(b *testing.B) {
			r := registryWith(n)
			req := get(fmt.Sprintf("/items/%d", n-1))
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				if exp, _ := r.Match(ctx, req); exp == nil {
					b.Fatal("no match")
				}
			}
		})
	}
}

func BenchmarkRegistry_MatchParallel(b *testing.B) {
	r := registryWith(100)
	req := get("/items/50")
	ctx := context.Background()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = r.Match(ctx, req)
		}
	})
}

func BenchmarkHandler_ServeHTTP(b *testing.B) {
	registry := registryWith(100)
	h := NewHandler(registry, requestlog.NewMemoryStore(requestlog.WithMaxEntries(1000)), nil)

	b.Run("matched", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
			if rec.Code != http.StatusOK {
				b.Fatalf("status %d", rec.Code)
			}
		}
	})

	b.Run("unmatched", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing", nil))
		}
	})

	b.Run("verify", func(b *testing.B) {
		body := `{"httpRequest":{"path":"/items/42"},"times":{"atLeast":1}}`
		b.ReportAllocs()
		for b.Loop() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/verify", strings.NewReader(body)))
		}
	})
}
