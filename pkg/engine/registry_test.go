package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/internal/storage"
	"github.com/getmockd/mockserver/pkg/mock"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func get(path string) *mock.HTTPRequest {
	return mock.NewRequest().WithMethod("GET").WithPath(path)
}

func TestRegistry_FirstMatchInRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := r.When(mock.NewRequest().WithPath("/a"), mock.TimesUnlimited(), mock.TTLUnlimited()).
		ThenRespond(mock.NewResponse().WithStatusCode(201))
	r.When(mock.NewRequest().WithPath("/a"), mock.TimesUnlimited(), mock.TTLUnlimited()).
		ThenRespond(mock.NewResponse().WithStatusCode(202))

	exp, err := r.Match(context.Background(), get("/a"))
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Same(t, first, exp)
	assert.NotEmpty(t, exp.ID)

	exp, err = r.Match(context.Background(), get("/other"))
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestRegistry_ExhaustedExpectationFallsThrough(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	once := r.When(mock.NewRequest().WithPath("/a"), mock.TimesOnce(), mock.TTLUnlimited())
	always := r.When(mock.NewRequest().WithPath("/a"), mock.TimesUnlimited(), mock.TTLUnlimited())

	exp, err := r.Match(context.Background(), get("/a"))
	require.NoError(t, err)
	assert.Same(t, once, exp)
	assert.Equal(t, 1, r.Count(), "exhausted expectation is removed")

	exp, err = r.Match(context.Background(), get("/a"))
	require.NoError(t, err)
	assert.Same(t, always, exp)
}

func TestRegistry_TimesOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.When(mock.NewRequest().WithPath("/race"), mock.TimesOnce(), mock.TTLUnlimited()).
		ThenRespond(mock.NewResponse())

	const n = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			exp, err := r.Match(context.Background(), get("/race"))
			assert.NoError(t, err)
			if exp != nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_TimesExactlyN(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.When(mock.NewRequest().WithPath("/n"), mock.TimesExactly(3), mock.TTLUnlimited())

	for i := range 3 {
		exp, err := r.Match(context.Background(), get("/n"))
		require.NoError(t, err)
		require.NotNil(t, exp, "match %d", i)
	}
	exp, err := r.Match(context.Background(), get("/n"))
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestRegistry_TimeToLive(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := NewRegistry(WithRegistryClock(clock.Now))
	r.When(mock.NewRequest().WithPath("/ttl"), mock.TimesUnlimited(), mock.TTLExactly(mock.Seconds, 10))

	clock.Advance(9 * time.Second)
	exp, err := r.Match(context.Background(), get("/ttl"))
	require.NoError(t, err)
	assert.NotNil(t, exp, "still alive before expiry")

	clock.Advance(time.Second)
	exp, err = r.Match(context.Background(), get("/ttl"))
	require.NoError(t, err)
	assert.Nil(t, exp, "expired at the deadline")
	assert.Equal(t, 0, r.Count(), "expired expectation is swept")
}

func TestRegistry_MatchingErrorLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	broken := r.When(mock.NewRequest().WithPath("/x").WithBody(mock.RegexBody("([")), mock.TimesOnce(), mock.TTLUnlimited())
	r.When(mock.NewRequest().WithPath("/x"), mock.TimesUnlimited(), mock.TTLUnlimited())

	req := mock.NewRequest().WithPath("/x").WithBody(mock.StringBody("payload"))
	exp, err := r.Match(context.Background(), req)
	assert.ErrorIs(t, err, ErrMatching)
	assert.Nil(t, exp)
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, 1, broken.RemainingTimes().RemainingTimes)
}

func TestRegistry_ClearByPattern(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.When(mock.NewRequest().WithMethod("GET").WithPath("/users"), mock.TimesUnlimited(), mock.TTLUnlimited())
	r.When(mock.NewRequest().WithMethod("POST").WithPath("/users"), mock.TimesUnlimited(), mock.TTLUnlimited())
	keep := r.When(mock.NewRequest().WithPath("/orders"), mock.TimesUnlimited(), mock.TTLUnlimited())

	n, err := r.Clear(mock.NewRequest().WithPath("/users"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := r.Retrieve(nil)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Same(t, keep, left[0])

	// clearing again is a no-op
	n, err = r.Clear(mock.NewRequest().WithPath("/users"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = r.Clear(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RetrieveDoesNotConsume(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	exp := r.When(mock.NewRequest().WithPath("/a"), mock.TimesOnce(), mock.TTLUnlimited())

	for range 3 {
		got, err := r.Retrieve(mock.NewRequest().WithPath("/a"))
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, 1, exp.RemainingTimes().RemainingTimes)
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.When(nil, mock.TimesUnlimited(), mock.TTLUnlimited())
	r.Reset()
	r.Reset()
	assert.Equal(t, 0, r.Count())

	exp, err := r.Match(context.Background(), get("/anything"))
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestRegistry_AddKeepsGivenID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	exp := mock.NewExpectation(mock.NewRequest().WithPath("/a"), mock.TimesUnlimited(), mock.TTLUnlimited())
	exp.ID = "fixed"
	require.NoError(t, r.Add(exp))

	replacement := mock.NewExpectation(mock.NewRequest().WithPath("/b"), mock.TimesUnlimited(), mock.TTLUnlimited())
	replacement.ID = "fixed"
	require.NoError(t, r.Add(replacement))

	assert.Equal(t, 1, r.Count())
	got, err := r.Match(context.Background(), get("/b"))
	require.NoError(t, err)
	assert.Same(t, replacement, got)

	assert.Error(t, r.Add(nil))
}

func TestRegistry_InvalidTimeToLiveIsNotRegistered(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	exp := mock.NewExpectation(nil, mock.TimesUnlimited(), mock.TimeToLive{TimeUnit: "FORTNIGHTS", TimeToLive: 1})
	assert.Error(t, r.Add(exp))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_DumpToLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewRegistry(WithRegistryLogger(log))
	r.When(mock.NewRequest().WithPath("/dumped"), mock.TimesUnlimited(), mock.TTLUnlimited()).
		ThenRespond(mock.NewResponse().WithStatusCode(200))
	r.When(mock.NewRequest().WithPath("/hidden"), mock.TimesUnlimited(), mock.TTLUnlimited())

	require.NoError(t, r.DumpToLog(mock.NewRequest().WithPath("/dumped")))
	out := buf.String()
	assert.Contains(t, out, "active expectation")
	assert.Contains(t, out, "/dumped")
	assert.NotContains(t, out, "/hidden")
}

// listHookStore runs afterList once, after the first snapshot is taken.
type listHookStore struct {
	storage.ExpectationStore
	once      sync.Once
	afterList func()
}

func (s *listHookStore) List() []*mock.Expectation {
	list := s.ExpectationStore.List()
	s.once.Do(s.afterList)
	return list
}

func TestRegistry_MatchKeepsReplacementRegisteredMeanwhile(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := &listHookStore{ExpectationStore: storage.NewInMemoryExpectationStore()}
	r := NewRegistry(WithRegistryStore(store), WithRegistryClock(clock.Now))

	stale := mock.NewExpectation(mock.NewRequest().WithPath("/a"), mock.TimesUnlimited(), mock.TTLExactly(mock.Seconds, 1))
	stale.ID = "shared"
	require.NoError(t, r.Add(stale))
	clock.Advance(2 * time.Second)

	fresh := mock.NewExpectation(mock.NewRequest().WithPath("/a"), mock.TimesUnlimited(), mock.TTLUnlimited())
	fresh.ID = "shared"
	store.afterList = func() { require.NoError(t, r.Add(fresh)) }

	// The snapshot still holds the expired entry; removing it must not
	// take the replacement with it.
	exp, err := r.Match(context.Background(), get("/a"))
	require.NoError(t, err)
	assert.Nil(t, exp)
	assert.Same(t, fresh, store.Get("shared"))

	exp, err = r.Match(context.Background(), get("/a"))
	require.NoError(t, err)
	assert.Same(t, fresh, exp)
}
