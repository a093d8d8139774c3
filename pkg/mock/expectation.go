package mock

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Expectation pairs a request pattern with an action, limited by a repeat
// count and a time-to-live. Expectations are shared between goroutines and
// must be handled by pointer.
type Expectation struct {
	ID          string
	HTTPRequest *HTTPRequest
	Times       Times
	TimeToLive  TimeToLive

	mu        sync.RWMutex
	action    Action
	expiresAt time.Time
	remaining atomic.Int64
}

// NewExpectation returns an expectation without an action. A nil pattern
// matches every request.
func NewExpectation(pattern *HTTPRequest, times Times, ttl TimeToLive) *Expectation {
	if pattern == nil {
		pattern = NewRequest()
	}
	e := &Expectation{
		HTTPRequest: pattern,
		Times:       times,
		TimeToLive:  ttl,
	}
	e.remaining.Store(int64(times.RemainingTimes))
	return e
}

// ThenRespond sets the action to a canned response, replacing any earlier action.
func (e *Expectation) ThenRespond(resp *HTTPResponse) *Expectation {
	return e.setAction(resp)
}

// ThenForward sets the action to a forward, replacing any earlier action.
func (e *Expectation) ThenForward(fwd *HTTPForward) *Expectation {
	return e.setAction(fwd)
}

// ThenError sets the action to a transport fault, replacing any earlier action.
func (e *Expectation) ThenError(herr *HTTPError) *Expectation {
	return e.setAction(herr)
}

// ThenCallback sets the action to a callback, replacing any earlier action.
func (e *Expectation) ThenCallback(cb *HTTPCallback) *Expectation {
	return e.setAction(cb)
}

func (e *Expectation) setAction(a Action) *Expectation {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.action = a
	return e
}

// Action returns the configured action, or nil when none was set.
func (e *Expectation) Action() Action {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.action
}

// Start fixes the absolute expiry relative to the registration instant.
func (e *Expectation) Start(now time.Time) error {
	expiresAt, err := e.TimeToLive.ExpiresAt(now)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.expiresAt = expiresAt
	e.mu.Unlock()
	return nil
}

// ExpiresAt returns the expiry instant. The zero time means never.
func (e *Expectation) ExpiresAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expiresAt
}

// Expired reports whether the time-to-live has elapsed at now.
func (e *Expectation) Expired(now time.Time) bool {
	exp := e.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// HasRemaining reports whether the expectation may still match.
func (e *Expectation) HasRemaining() bool {
	return e.Times.Unlimited || e.remaining.Load() > 0
}

// Consume takes one use of the expectation. It returns false when the count
// is already exhausted; concurrent callers never take the same use twice.
func (e *Expectation) Consume() bool {
	if e.Times.Unlimited {
		return true
	}
	for {
		n := e.remaining.Load()
		if n <= 0 {
			return false
		}
		if e.remaining.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// RemainingTimes returns a snapshot of the remaining count.
func (e *Expectation) RemainingTimes() Times {
	if e.Times.Unlimited {
		return TimesUnlimited()
	}
	return Times{RemainingTimes: int(e.remaining.Load())}
}

type expectationJSON struct {
	ID           string        `json:"id,omitempty"`
	HTTPRequest  *HTTPRequest  `json:"httpRequest,omitempty"`
	Times        *Times        `json:"times,omitempty"`
	TimeToLive   *TimeToLive   `json:"timeToLive,omitempty"`
	HTTPResponse *HTTPResponse `json:"httpResponse,omitempty"`
	HTTPForward  *HTTPForward  `json:"httpForward,omitempty"`
	HTTPError    *HTTPError    `json:"httpError,omitempty"`
	HTTPCallback *HTTPCallback `json:"httpCallback,omitempty"`
}

// MarshalJSON renders the expectation with its current remaining count.
func (e *Expectation) MarshalJSON() ([]byte, error) {
	times := e.RemainingTimes()
	ttl := e.TimeToLive
	out := expectationJSON{
		ID:          e.ID,
		HTTPRequest: e.HTTPRequest,
		Times:       &times,
		TimeToLive:  &ttl,
	}
	switch a := e.Action().(type) {
	case *HTTPResponse:
		out.HTTPResponse = a
	case *HTTPForward:
		out.HTTPForward = a
	case *HTTPError:
		out.HTTPError = a
	case *HTTPCallback:
		out.HTTPCallback = a
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads an expectation. Absent times and timeToLive mean
// unlimited. When several actions are present they are applied in the
// order response, forward, error, callback, so the last one present wins.
func (e *Expectation) UnmarshalJSON(data []byte) error {
	var in expectationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	times := TimesUnlimited()
	if in.Times != nil {
		times = *in.Times
	}
	ttl := TTLUnlimited()
	if in.TimeToLive != nil {
		ttl = *in.TimeToLive
	}
	pattern := in.HTTPRequest
	if pattern == nil {
		pattern = NewRequest()
	}

	e.ID = in.ID
	e.HTTPRequest = pattern
	e.Times = times
	e.TimeToLive = ttl
	e.remaining.Store(int64(times.RemainingTimes))

	if in.HTTPResponse != nil {
		e.ThenRespond(in.HTTPResponse)
	}
	if in.HTTPForward != nil {
		e.ThenForward(in.HTTPForward)
	}
	if in.HTTPError != nil {
		e.ThenError(in.HTTPError)
	}
	if in.HTTPCallback != nil {
		e.ThenCallback(in.HTTPCallback)
	}
	return nil
}
