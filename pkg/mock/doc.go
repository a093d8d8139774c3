// Package mock provides the data model shared by every part of the server:
// requests and responses in normalized form, request bodies and body
// matchers, expectations with their repeat counts and time-to-live, the
// actions an expectation can trigger, and the verification descriptors used
// to assert on recorded traffic.
//
// A request value plays two roles. Decoded from the wire it describes a
// concrete request; registered in an expectation it is a pattern in which
// every unset field is a wildcard.
package mock
