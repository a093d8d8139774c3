// Package flags provides reusable flag types for CLI commands.
package flags

import "strings"

// StringSlice is a repeatable string flag. Unlike pflag's string slice it
// never splits a value on commas, so header values keep theirs.
type StringSlice []string

// String returns the string representation of the flag value.
func (s *StringSlice) String() string {
	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *StringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Type specifies the type label for Cobra flags.
func (s *StringSlice) Type() string {
	return "stringSlice"
}
