package traveltime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	calls   atomic.Int32
	minutes int
	err     error
	release chan struct{}
}

func (p *fakeProvider) TravelMinutes(_ context.Context, _, _ string) (int, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	return p.minutes, p.err
}

func newMock() *clock.Mock {
	m := clock.NewMock()
	m.Set(time.Date(2026, 5, 9, 7, 0, 0, 0, time.UTC))
	return m
}

func TestFailedEntryIsShortLivedNegativeCache(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	p := &fakeProvider{err: errors.New("boom")}
	c := New(NewMemoryStore(), p, mock, Options{}, zap.NewNop())

	est := c.Estimate(ctx, "Seoul Mapo-gu 1", "Grand Hall 2")
	assert.Equal(t, SourceFallback, est.Source)
	assert.Equal(t, 75, est.Or(75))
	assert.EqualValues(t, 1, p.calls.Load())

	mock.Add(59 * time.Minute)
	est = c.Estimate(ctx, "Seoul Mapo-gu 1", "Grand Hall 2")
	assert.Equal(t, SourceFallback, est.Source)
	assert.EqualValues(t, 1, p.calls.Load(), "provider must not be called inside the failure window")

	mock.Add(2 * time.Minute)
	p.err = nil
	p.minutes = 35
	est = c.Estimate(ctx, "Seoul Mapo-gu 1", "Grand Hall 2")
	assert.Equal(t, Estimate{Minutes: 35, Source: SourceFresh}, est)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestOKEntryReusedUntilStale(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	p := &fakeProvider{minutes: 40}
	c := New(NewMemoryStore(), p, mock, Options{}, zap.NewNop())

	assert.Equal(t, Estimate{Minutes: 40, Source: SourceFresh}, c.Estimate(ctx, "A  street", "B road"))
	assert.Equal(t, Estimate{Minutes: 40, Source: SourceCache}, c.Estimate(ctx, "a street", " B ROAD "))
	assert.Equal(t, 40, c.Estimate(ctx, "a street", "b road").Or(99))
	assert.EqualValues(t, 1, p.calls.Load())

	mock.Add(30 * 24 * time.Hour)
	p.minutes = 45
	assert.Equal(t, Estimate{Minutes: 45, Source: SourceFresh}, c.Estimate(ctx, "a street", "b road"))
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestMissingAddressFallsBackWithoutProvider(t *testing.T) {
	p := &fakeProvider{minutes: 10}
	c := New(NewMemoryStore(), p, newMock(), Options{}, zap.NewNop())

	assert.Equal(t, SourceFallback, c.Estimate(context.Background(), "", "Grand Hall").Source)
	assert.Equal(t, SourceFallback, c.Estimate(context.Background(), "home", "   ").Source)
	assert.EqualValues(t, 0, p.calls.Load())
}

func TestConcurrentMissesShareOneProviderCall(t *testing.T) {
	p := &fakeProvider{minutes: 25, release: make(chan struct{})}
	c := New(NewMemoryStore(), p, newMock(), Options{Timeout: 5 * time.Second}, zap.NewNop())

	const callers = 10
	results := make([]Estimate, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Estimate(context.Background(), "origin", "destination")
		}(i)
	}

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.EqualValues(t, 1, p.calls.Load())
	for _, r := range results {
		assert.Equal(t, 25, r.Minutes)
		assert.NotEqual(t, SourceFallback, r.Source)
	}
}

func TestLateResultIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := &fakeProvider{minutes: 10, release: make(chan struct{})}
	c := New(store, p, newMock(), Options{Timeout: 30 * time.Millisecond}, zap.NewNop())

	est := c.Estimate(ctx, "origin", "destination")
	assert.Equal(t, SourceFallback, est.Source)

	close(p.release)
	time.Sleep(50 * time.Millisecond)

	e, ok, err := store.Get(ctx, Key("origin", "destination"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Zero(t, e.Minutes)
}

func TestCallerCancellationFallsBack(t *testing.T) {
	p := &fakeProvider{minutes: 10, release: make(chan struct{})}
	defer close(p.release)
	c := New(NewMemoryStore(), p, newMock(), Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, SourceFallback, c.Estimate(ctx, "origin", "destination").Source)
}

// heldStore pauses the first Get after it has read the underlying store.
type heldStore struct {
	*MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *heldStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.MemoryStore.Get(ctx, key)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return e, ok, err
}

func TestMissAfterFinishedFlightReusesItsEntry(t *testing.T) {
	ctx := context.Background()
	store := &heldStore{MemoryStore: NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	p := &fakeProvider{minutes: 25}
	c := New(store, p, newMock(), Options{}, zap.NewNop())

	late := make(chan Estimate, 1)
	go func() { late <- c.Estimate(ctx, "origin", "destination") }()
	<-store.entered

	assert.Equal(t, Estimate{Minutes: 25, Source: SourceFresh}, c.Estimate(ctx, "origin", "destination"))
	close(store.release)

	select {
	case est := <-late:
		assert.Equal(t, Estimate{Minutes: 25, Source: SourceCache}, est)
	case <-time.After(time.Second):
		t.Fatal("estimate did not return")
	}
	assert.EqualValues(t, 1, p.calls.Load())
}

type downStore struct{}

func (downStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("dial tcp: connection refused")
}

func (downStore) PutIfNewer(context.Context, string, Entry, time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func TestFailureRememberedWhileStoreIsDown(t *testing.T) {
	ctx := context.Background()
	mock := newMock()
	p := &fakeProvider{err: errors.New("boom")}
	c := New(downStore{}, p, mock, Options{FailedTTL: time.Hour}, zap.NewNop())

	assert.Equal(t, SourceFallback, c.Estimate(ctx, "origin", "destination").Source)
	mock.Add(30 * time.Minute)
	assert.Equal(t, SourceFallback, c.Estimate(ctx, "origin", "destination").Source)
	assert.EqualValues(t, 1, p.calls.Load())

	mock.Add(30 * time.Minute)
	p.err = nil
	p.minutes = 20
	assert.Equal(t, Estimate{Minutes: 20, Source: SourceFresh}, c.Estimate(ctx, "origin", "destination"))
	assert.EqualValues(t, 2, p.calls.Load())
}

func testStores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}
}

func TestStoresRejectOlderWrites(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 9, 7, 0, 0, 0, time.UTC)

	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			wrote, err := s.PutIfNewer(ctx, "k", Entry{Minutes: 30, ComputedAt: t0.Add(time.Minute), Status: StatusOK}, time.Hour)
			require.NoError(t, err)
			assert.True(t, wrote)

			wrote, err = s.PutIfNewer(ctx, "k", Entry{ComputedAt: t0, Status: StatusFailed}, time.Hour)
			require.NoError(t, err)
			assert.False(t, wrote, "a stale attempt must not overwrite a newer entry")

			e, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, StatusOK, e.Status)
			assert.Equal(t, 30, e.Minutes)
			assert.True(t, e.ComputedAt.Equal(t0.Add(time.Minute)))

			wrote, err = s.PutIfNewer(ctx, "k", Entry{Minutes: 33, ComputedAt: t0.Add(2 * time.Minute), Status: StatusOK}, time.Hour)
			require.NoError(t, err)
			assert.True(t, wrote)
		})
	}
}

func TestRedisStoreExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client)

	_, err := s.PutIfNewer(ctx, "k", Entry{ComputedAt: time.Now(), Status: StatusFailed}, time.Hour)
	require.NoError(t, err)
	mr.FastForward(time.Hour + time.Second)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyNormalization(t *testing.T) {
	assert.Equal(t, Key("Seoul  Mapo-gu", "Grand\tHall"), Key(" seoul mapo-gu", "grand hall "))
	assert.NotEqual(t, Key("a", "b"), Key("b", "a"))
}
