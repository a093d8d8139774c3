// Package cli provides the command-line interface for mockserver.
//
// The serve command runs a server in the foreground. Every other command
// talks to a running server over its control plane:
//   - status, bind, stop: manage listeners
//   - expect: register expectations from files or flags
//   - retrieve: list recorded requests or active expectations
//   - verify, verify-sequence: check recorded traffic
//   - clear, reset, dump: manage server state
//
// Usage:
//
//	mockserver serve --port 1080 --init 'expectations/*.json'
//	mockserver expect --path /hello --status 200 --response-body world
//	mockserver verify --path /hello --exactly 1
//	mockserver stop
package cli
