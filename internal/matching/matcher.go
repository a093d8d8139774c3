package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getmockd/mockserver/pkg/mock"
)

// ErrInvalidPattern is returned when a pattern cannot be evaluated.
var ErrInvalidPattern = errors.New("invalid pattern")

// Options configures a Matcher.
type Options struct {
	// CaseInsensitive compares method and path ignoring case.
	CaseInsensitive bool
}

// Matcher evaluates request patterns. Compiled regular expressions and
// schemas are cached, so one Matcher should be shared.
type Matcher struct {
	opts    Options
	regexes sync.Map // string -> *regexp.Regexp, nil when the source does not compile
	schemas sync.Map // string -> *jsonschema.Schema
}

// New creates a Matcher.
func New(opts Options) *Matcher {
	return &Matcher{opts: opts}
}

// Match reports whether req satisfies pattern. A nil pattern matches everything.
func (m *Matcher) Match(pattern, req *mock.HTTPRequest) (bool, error) {
	if pattern == nil {
		return true, nil
	}
	if req == nil {
		req = mock.NewRequest()
	}

	if !m.matchString(pattern.Method, req.Method, m.opts.CaseInsensitive) {
		return false, nil
	}
	if !m.matchString(pattern.Path, req.Path, m.opts.CaseInsensitive) {
		return false, nil
	}
	if !m.matchMultiValues(pattern.QueryStringParameters, req.QueryStringParameters, false) {
		return false, nil
	}
	if !m.matchMultiValues(pattern.Headers, req.Headers, true) {
		return false, nil
	}
	if !m.matchCookies(pattern.Cookies, req.Cookies) {
		return false, nil
	}
	if !matchFlag(pattern.KeepAlive, req.KeepAlive) || !matchFlag(pattern.Secure, req.Secure) {
		return false, nil
	}
	return m.MatchBody(pattern.Body, req.Body)
}

// matchString compares a pattern value to an actual value: empty patterns
// match anything, otherwise equality or a full regex match.
func (m *Matcher) matchString(pattern, actual string, foldCase bool) bool {
	if pattern == "" {
		return true
	}
	if pattern == actual || (foldCase && strings.EqualFold(pattern, actual)) {
		return true
	}
	re := m.regex(pattern, foldCase)
	return re != nil && re.MatchString(actual)
}

// regex returns the anchored, cached form of src, or nil when it does not compile.
func (m *Matcher) regex(src string, foldCase bool) *regexp.Regexp {
	key := src
	if foldCase {
		key = "(?i)" + src
	}
	if v, ok := m.regexes.Load(key); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("^(?:" + key + ")$")
	if err != nil {
		m.regexes.Store(key, (*regexp.Regexp)(nil))
		return nil
	}
	m.regexes.Store(key, re)
	return re
}

// strictRegex is like regex but reports compile failures.
func (m *Matcher) strictRegex(src string) (*regexp.Regexp, error) {
	if re := m.regex(src, false); re != nil {
		return re, nil
	}
	if _, err := regexp.Compile(src); err != nil {
		return nil, fmt.Errorf("%w: regex %q: %v", ErrInvalidPattern, src, err)
	}
	return nil, fmt.Errorf("%w: regex %q", ErrInvalidPattern, src)
}

// matchMultiValues requires every pattern key to be present and every
// pattern value to match at least one actual value. Header names are
// case-insensitive.
func (m *Matcher) matchMultiValues(pattern, actual map[string][]string, foldKeys bool) bool {
	for name, want := range pattern {
		got := lookup(actual, name, foldKeys)
		if got == nil {
			return false
		}
		for _, w := range want {
			if !m.anyValueMatches(w, got) {
				return false
			}
		}
	}
	return true
}

func lookup(m map[string][]string, name string, foldKeys bool) []string {
	if v, ok := m[name]; ok {
		if v == nil {
			return []string{}
		}
		return v
	}
	if !foldKeys {
		return nil
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			if v == nil {
				return []string{}
			}
			return v
		}
	}
	return nil
}

func (m *Matcher) anyValueMatches(pattern string, values []string) bool {
	for _, v := range values {
		if pattern == v || m.matchString(pattern, v, false) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchCookies(pattern, actual map[string]string) bool {
	for name, want := range pattern {
		got, ok := actual[name]
		if !ok {
			return false
		}
		if want != "" && !m.matchString(want, got, false) {
			return false
		}
	}
	return true
}

func matchFlag(pattern, actual *bool) bool {
	if pattern == nil {
		return true
	}
	return *pattern == (actual != nil && *actual)
}
