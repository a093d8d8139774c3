package cli

import "errors"

// Common CLI errors
var (
	ErrServerNotRunning = errors.New("server not reachable - start with: mockserver serve")
	ErrNothingToExpect  = errors.New("no expectation given: pass files or --path/--status flags")
)
