package mock

import (
	"encoding/json"
	"fmt"
)

// VerificationTimes bounds how often a pattern must appear in the request
// log. AtMost < 0 means no upper bound.
type VerificationTimes struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

// VerifyOnce requires exactly one occurrence.
func VerifyOnce() VerificationTimes { return VerificationTimes{AtLeast: 1, AtMost: 1} }

// VerifyExactly requires exactly n occurrences.
func VerifyExactly(n int) VerificationTimes { return VerificationTimes{AtLeast: n, AtMost: n} }

// VerifyAtLeast requires n or more occurrences.
func VerifyAtLeast(n int) VerificationTimes { return VerificationTimes{AtLeast: n, AtMost: -1} }

// VerifyAtMost allows up to n occurrences.
func VerifyAtMost(n int) VerificationTimes { return VerificationTimes{AtLeast: 0, AtMost: n} }

// VerifyNever forbids any occurrence.
func VerifyNever() VerificationTimes { return VerificationTimes{AtLeast: 0, AtMost: 0} }

// Matches reports whether count satisfies the bounds.
func (t VerificationTimes) Matches(count int) bool {
	if count < t.AtLeast {
		return false
	}
	return t.AtMost < 0 || count <= t.AtMost
}

// String describes the bounds, e.g. "exactly 2 times".
func (t VerificationTimes) String() string {
	switch {
	case t.AtLeast == t.AtMost:
		return "exactly " + plural(t.AtLeast)
	case t.AtMost < 0:
		return "at least " + plural(t.AtLeast)
	case t.AtLeast == 0:
		return "at most " + plural(t.AtMost)
	default:
		return fmt.Sprintf("between %d and %s", t.AtLeast, plural(t.AtMost))
	}
}

func plural(n int) string {
	if n == 1 {
		return "once"
	}
	return fmt.Sprintf("%d times", n)
}

// UnmarshalJSON reads {"atLeast": n, "atMost": m} where a missing atMost
// means unbounded, and also the older {"count": n, "exact": bool} form.
func (t *VerificationTimes) UnmarshalJSON(data []byte) error {
	var in struct {
		AtLeast *int  `json:"atLeast"`
		AtMost  *int  `json:"atMost"`
		Count   *int  `json:"count"`
		Exact   *bool `json:"exact"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	if in.Count != nil && in.AtLeast == nil && in.AtMost == nil {
		if in.Exact != nil && *in.Exact {
			*t = VerifyExactly(*in.Count)
		} else {
			*t = VerifyAtLeast(*in.Count)
		}
		return nil
	}

	out := VerificationTimes{AtMost: -1}
	if in.AtLeast != nil {
		out.AtLeast = *in.AtLeast
	}
	if in.AtMost != nil {
		out.AtMost = *in.AtMost
	}
	if out.AtLeast < 0 || (out.AtMost >= 0 && out.AtMost < out.AtLeast) {
		return fmt.Errorf("invalid verification times: atLeast=%d atMost=%d", out.AtLeast, out.AtMost)
	}
	*t = out
	return nil
}

// Verification asserts how many logged requests match a pattern.
type Verification struct {
	HTTPRequest *HTTPRequest      `json:"httpRequest"`
	Times       VerificationTimes `json:"times"`
}

// NewVerification returns a verification for pattern with the given bounds.
func NewVerification(pattern *HTTPRequest, times VerificationTimes) *Verification {
	return &Verification{HTTPRequest: pattern, Times: times}
}

// UnmarshalJSON defaults absent times to at least once.
func (v *Verification) UnmarshalJSON(data []byte) error {
	var in struct {
		HTTPRequest *HTTPRequest       `json:"httpRequest"`
		Times       *VerificationTimes `json:"times"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v.HTTPRequest = in.HTTPRequest
	v.Times = VerifyAtLeast(1)
	if in.Times != nil {
		v.Times = *in.Times
	}
	return nil
}

// VerificationSequence asserts that the patterns appear in the request log
// in this relative order.
type VerificationSequence struct {
	HTTPRequests []*HTTPRequest `json:"httpRequests"`
}

// NewVerificationSequence returns a sequence of patterns.
func NewVerificationSequence(patterns ...*HTTPRequest) *VerificationSequence {
	return &VerificationSequence{HTTPRequests: patterns}
}
