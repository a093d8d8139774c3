// Package verify checks recorded traffic against verification descriptors.
//
// A passing verification yields an empty string. A failing one yields a
// human-readable description of what was expected and what was observed.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/pkg/mock"
)

// ErrInvalidVerification is returned for a nil or malformed descriptor.
var ErrInvalidVerification = errors.New("invalid verification")

// RequestSource supplies recorded requests in arrival order.
type RequestSource interface {
	Requests() []*mock.HTTPRequest
}

// Verifier evaluates verifications against a request source.
type Verifier struct {
	source  RequestSource
	matcher *matching.Matcher
}

// New creates a Verifier. A nil matcher uses default matching options.
func New(source RequestSource, matcher *matching.Matcher) *Verifier {
	if matcher == nil {
		matcher = matching.New(matching.Options{})
	}
	return &Verifier{source: source, matcher: matcher}
}

// Verify counts the recorded requests matching the pattern and checks the
// count against the bounds.
func (v *Verifier) Verify(ver *mock.Verification) (string, error) {
	if ver == nil {
		return "", ErrInvalidVerification
	}
	times := ver.Times
	if times.AtLeast < 0 || (times.AtMost >= 0 && times.AtMost < times.AtLeast) {
		return "", fmt.Errorf("%w: atLeast=%d atMost=%d", ErrInvalidVerification, times.AtLeast, times.AtMost)
	}

	requests := v.source.Requests()
	count := 0
	for _, req := range requests {
		ok, err := v.matcher.Match(ver.HTTPRequest, req)
		if err != nil {
			return "", err
		}
		if ok {
			count++
		}
	}
	if times.Matches(count) {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Request not found %s, found %s, expected:<%s> but was:<%s>",
		times, foundText(count), render(ver.HTTPRequest), render(requests))
	if count == 0 {
		if reason := v.closest(ver.HTTPRequest, requests); reason != "" {
			fmt.Fprintf(&b, "; closest request differs in %s", reason)
		}
	}
	return b.String(), nil
}

// VerifySequence checks that the patterns match recorded requests in this
// relative order. Other requests may be interleaved.
func (v *Verifier) VerifySequence(seq *mock.VerificationSequence) (string, error) {
	if seq == nil {
		return "", ErrInvalidVerification
	}

	requests := v.source.Requests()
	next := 0
	for _, pattern := range seq.HTTPRequests {
		found := false
		for next < len(requests) {
			ok, err := v.matcher.Match(pattern, requests[next])
			if err != nil {
				return "", err
			}
			next++
			if ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("Request sequence not found, expected:<%s> but was:<%s>",
				render(seq.HTTPRequests), render(requests)), nil
		}
	}
	return "", nil
}

// closest reports the mismatched fields of the request that matched the
// most pattern fields.
func (v *Verifier) closest(pattern *mock.HTTPRequest, requests []*mock.HTTPRequest) string {
	var best *matching.NearMiss
	for _, req := range requests {
		nm := v.matcher.Breakdown(pattern, req)
		if best == nil || nm.Matched > best.Matched {
			best = nm
		}
	}
	if best == nil {
		return ""
	}
	return best.Reason()
}

func foundText(n int) string {
	switch n {
	case 0:
		return "none"
	case 1:
		return "1 time"
	default:
		return fmt.Sprintf("%d times", n)
	}
}

func render(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
