// Package requestlog records every data-plane request the server receives,
// in arrival order, for later retrieval and verification.
//
// It is distinct from operational logging, which uses log/slog.
//
//	store := requestlog.NewMemoryStore()
//	store.Log(req)
//	matched, err := store.Retrieve(mock.NewRequest().WithPath("/api/users"))
package requestlog
