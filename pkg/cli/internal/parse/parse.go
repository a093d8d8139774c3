// Package parse provides string parsing utilities for CLI commands.
package parse

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// KeyValue parses a "key:value" or "key=value" string.
// If delimiters are provided, uses the first one found; otherwise defaults to ':'.
// Returns the key, value, and a boolean indicating success.
func KeyValue(s string, delimiters ...rune) (key, value string, ok bool) {
	if len(delimiters) == 0 {
		delimiters = []rune{':'}
	}

	for i, c := range s {
		for _, d := range delimiters {
			if c == d {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// Headers parses "Name: value" strings. Repeated names keep every value.
func Headers(pairs []string) (http.Header, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	h := http.Header{}
	for _, p := range pairs {
		key, value, ok := KeyValue(p, ':')
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q, want name:value", p)
		}
		h.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return h, nil
}

// Query parses "name=value" strings into query parameters.
func Query(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, p := range pairs {
		key, value, ok := KeyValue(p, '=')
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q, want name=value", p)
		}
		q.Add(key, value)
	}
	return q, nil
}
