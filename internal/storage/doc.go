// Package storage provides expectation storage abstractions and implementations.
//
// It defines the ExpectationStore interface for keeping registered
// expectations in registration order, along with a thread-safe in-memory
// implementation. Order matters: matching walks the store first-registered
// first.
package storage
