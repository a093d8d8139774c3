package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getmockd/mockserver/pkg/mock"
)

// FieldResult describes whether a single pattern field matched the request.
type FieldResult struct {
	Field    string `json:"field"`
	Matched  bool   `json:"matched"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// NearMiss is a pattern evaluated field by field against one request.
type NearMiss struct {
	Fields  []FieldResult `json:"fields"`
	Matched int           `json:"matched"`
}

// Reason summarizes the mismatched fields, e.g. "path: expected /a, got /b".
func (n *NearMiss) Reason() string {
	var parts []string
	for _, f := range n.Fields {
		if !f.Matched {
			parts = append(parts, fmt.Sprintf("%s: expected %s, got %s", f.Field, f.Expected, f.Actual))
		}
	}
	return strings.Join(parts, "; ")
}

// Breakdown evaluates every field the pattern sets without short-circuiting.
// Only set fields are reported.
func (m *Matcher) Breakdown(pattern, req *mock.HTTPRequest) *NearMiss {
	out := &NearMiss{}
	if pattern == nil {
		return out
	}
	if req == nil {
		req = mock.NewRequest()
	}

	add := func(field string, matched bool, expected, actual string) {
		out.Fields = append(out.Fields, FieldResult{Field: field, Matched: matched, Expected: expected, Actual: actual})
		if matched {
			out.Matched++
		}
	}

	if pattern.Method != "" {
		add("method", m.matchString(pattern.Method, req.Method, m.opts.CaseInsensitive), pattern.Method, req.Method)
	}
	if pattern.Path != "" {
		add("path", m.matchString(pattern.Path, req.Path, m.opts.CaseInsensitive), pattern.Path, req.Path)
	}
	for _, name := range sortedNames(pattern.QueryStringParameters) {
		want := map[string][]string{name: pattern.QueryStringParameters[name]}
		add("query "+name, m.matchMultiValues(want, req.QueryStringParameters, false),
			strings.Join(want[name], ","), strings.Join(req.QueryStringParameters[name], ","))
	}
	for _, name := range sortedNames(pattern.Headers) {
		want := map[string][]string{name: pattern.Headers[name]}
		add("header "+name, m.matchMultiValues(want, req.Headers, true),
			strings.Join(want[name], ","), strings.Join(req.Headers.Values(name), ","))
	}
	for _, name := range sortedCookieNames(pattern.Cookies) {
		want := map[string]string{name: pattern.Cookies[name]}
		add("cookie "+name, m.matchCookies(want, req.Cookies), pattern.Cookies[name], req.Cookies[name])
	}
	if pattern.Body != nil {
		ok, err := m.MatchBody(pattern.Body, req.Body)
		expected := string(pattern.Body.Type) + " " + pattern.Body.String()
		if err != nil {
			expected += " (" + err.Error() + ")"
		}
		add("body", ok && err == nil, expected, req.Body.String())
	}
	return out
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedCookieNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
