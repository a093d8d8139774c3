package engine

import "errors"

var (
	// ErrMatching is returned when a stored pattern cannot be evaluated
	// against a request. Registry state is left untouched.
	ErrMatching = errors.New("matching failed")

	// ErrForwardFailed is returned when a forward target is unreachable or
	// does not answer in time.
	ErrForwardFailed = errors.New("forward failed")

	// ErrCallbackFailed is returned when a callback cannot produce a response.
	ErrCallbackFailed = errors.New("callback failed")

	// ErrNoAction is returned when a matched expectation has no action.
	ErrNoAction = errors.New("expectation has no action")

	// ErrPortInUse is returned when a port cannot be bound.
	ErrPortInUse = errors.New("port unavailable")

	// ErrServerStopped is returned when binding on a stopped server.
	ErrServerStopped = errors.New("server stopped")
)
