package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/internal/storage"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
)

// ExpectationRegistry is the view of the registry used by the dispatcher.
type ExpectationRegistry interface {
	Add(exp *mock.Expectation) error
	Match(ctx context.Context, req *mock.HTTPRequest) (*mock.Expectation, error)
	Clear(pattern *mock.HTTPRequest) (int, error)
	Reset()
	Retrieve(pattern *mock.HTTPRequest) ([]*mock.Expectation, error)
	DumpToLog(pattern *mock.HTTPRequest) error
}

// Registry holds expectations in registration order and resolves requests
// to the first eligible one.
type Registry struct {
	store   storage.ExpectationStore
	matcher *matching.Matcher
	now     func() time.Time
	log     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryStore sets the backing store.
func WithRegistryStore(s storage.ExpectationStore) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.store = s
		}
	}
}

// WithRegistryMatcher sets the matcher.
func WithRegistryMatcher(m *matching.Matcher) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.matcher = m
		}
	}
}

// WithRegistryClock sets the clock used for time-to-live.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistryLogger sets the operational logger.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		store:   storage.NewInMemoryExpectationStore(),
		matcher: matching.New(matching.Options{}),
		now:     time.Now,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// When registers an expectation for pattern and returns it so an action can
// be attached with one of its Then methods.
func (r *Registry) When(pattern *mock.HTTPRequest, times mock.Times, ttl mock.TimeToLive) *mock.Expectation {
	exp := mock.NewExpectation(pattern, times, ttl)
	if err := r.Add(exp); err != nil {
		// Only an invalid TTL unit fails here. The handle stays usable but
		// is never consulted.
		r.log.Warn("expectation not registered", "error", err)
	}
	return exp
}

// Add registers exp. Its time-to-live starts now and it is given an ID if
// it has none. An expectation carrying the ID of a registered one replaces
// it in place.
func (r *Registry) Add(exp *mock.Expectation) error {
	if exp == nil {
		return storage.ErrNilExpectation
	}
	if err := exp.Start(r.now()); err != nil {
		return err
	}
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if err := r.store.Add(exp); err != nil {
		return err
	}
	r.log.Debug("expectation registered", "id", exp.ID, "path", exp.HTTPRequest.Path)
	return nil
}

// eligible reports whether exp may serve a match at now.
func eligible(exp *mock.Expectation, now time.Time) bool {
	return exp.HasRemaining() && !exp.Expired(now)
}

// Match returns the first registered expectation, in registration order,
// that is eligible and whose pattern matches req, consuming one of its uses.
// A nil expectation and nil error means nothing matched. If a stored pattern
// cannot be evaluated the error wraps ErrMatching and nothing is consumed.
func (r *Registry) Match(ctx context.Context, req *mock.HTTPRequest) (*mock.Expectation, error) {
	now := r.now()
	for _, exp := range r.store.List() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !eligible(exp, now) {
			r.remove(exp)
			continue
		}

		ok, err := r.match(exp.HTTPRequest, req)
		if err != nil {
			return nil, fmt.Errorf("%w: expectation %s: %w", ErrMatching, exp.ID, err)
		}
		if !ok {
			continue
		}
		// Another request may have taken the last use since the snapshot.
		if !exp.Consume() {
			r.remove(exp)
			continue
		}
		if !exp.HasRemaining() {
			r.remove(exp)
		}
		return exp, nil
	}
	return nil, nil
}

// remove deletes exp itself. An expectation registered since under the
// same ID is left alone.
func (r *Registry) remove(exp *mock.Expectation) {
	r.store.RemoveIf(func(e *mock.Expectation) bool { return e == exp })
}

// match evaluates a pattern, turning a panic inside a body matcher into an error.
func (r *Registry) match(pattern, req *mock.HTTPRequest) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("panic while matching: %v", p)
		}
	}()
	return r.matcher.Match(pattern, req)
}

// selectMatching returns the registered expectations whose stored
// request is matched by pattern. A nil pattern selects everything.
func (r *Registry) selectMatching(pattern *mock.HTTPRequest) ([]*mock.Expectation, error) {
	var out []*mock.Expectation
	for _, exp := range r.store.List() {
		ok, err := r.match(pattern, exp.HTTPRequest)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMatching, err)
		}
		if ok {
			out = append(out, exp)
		}
	}
	return out, nil
}

// Clear removes every expectation whose stored request is matched by
// pattern, and returns how many were removed. A nil pattern removes all.
// On error nothing is removed.
func (r *Registry) Clear(pattern *mock.HTTPRequest) (int, error) {
	if pattern == nil {
		n := r.store.Count()
		r.store.Clear()
		return n, nil
	}
	selected, err := r.selectMatching(pattern)
	if err != nil {
		return 0, err
	}
	chosen := make(map[*mock.Expectation]bool, len(selected))
	for _, exp := range selected {
		chosen[exp] = true
	}
	return r.store.RemoveIf(func(e *mock.Expectation) bool { return chosen[e] }), nil
}

// Reset removes every expectation.
func (r *Registry) Reset() {
	r.store.Clear()
}

// Retrieve returns the eligible expectations whose stored request is matched
// by pattern, in registration order. Nothing is consumed.
func (r *Registry) Retrieve(pattern *mock.HTTPRequest) ([]*mock.Expectation, error) {
	selected, err := r.selectMatching(pattern)
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := selected[:0]
	for _, exp := range selected {
		if eligible(exp, now) {
			out = append(out, exp)
		}
	}
	return out, nil
}

// DumpToLog writes the expectations selected by pattern to the operational
// log at INFO, one record per expectation.
func (r *Registry) DumpToLog(pattern *mock.HTTPRequest) error {
	exps, err := r.Retrieve(pattern)
	if err != nil {
		return err
	}
	for _, exp := range exps {
		data, err := exp.MarshalJSON()
		if err != nil {
			return fmt.Errorf("rendering expectation %s: %w", exp.ID, err)
		}
		r.log.Info("active expectation", "id", exp.ID, "expectation", string(data))
	}
	return nil
}

// Count returns the number of stored expectations, including ones that
// have expired but not yet been swept.
func (r *Registry) Count() int {
	return r.store.Count()
}

var _ ExpectationRegistry = (*Registry)(nil)
