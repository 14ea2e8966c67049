package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalcache/pkg/cache/client"
)

var errUpstream = errors.New("upstream unavailable")

type fakeUserAPI struct {
	calls int64
	fail  bool
	delay time.Duration
}

func (f *fakeUserAPI) FetchUser(ctx context.Context, id int64) (*User, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return nil, errUpstream
	}
	return &User{ID: id, Name: "Ann"}, nil
}

type fakeWeatherAPI struct{ calls int64 }

func (f *fakeWeatherAPI) FetchWeather(ctx context.Context, city, country string) (*Weather, error) {
	atomic.AddInt64(&f.calls, 1)
	return &Weather{City: city, Country: country, TempCelsius: 21.5, Condition: "sunny"}, nil
}

type fakeMessageAPI struct{ calls int64 }

func (f *fakeMessageAPI) FetchMessage(ctx context.Context, id string) (*Message, error) {
	atomic.AddInt64(&f.calls, 1)
	return &Message{ID: id, Subject: "Excursion", Body: "Bring a hat."}, nil
}

// failingStore 写入总是失败的缓存
type failingStore struct{}

func (failingStore) Get(string) (any, bool) { return nil, false }
func (failingStore) SetWithTTL(string, any, int) error { return errors.New("serialize failed") }
func (failingStore) Delete(string) {}

func newTestClientCache(t *testing.T) (*client.Cache, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	c := client.New(client.Config{Clock: mock})
	t.Cleanup(func() { c.Close() })
	return c, mock
}

func TestUserService_CachesForMediumTTL(t *testing.T) {
	store, mock := newTestClientCache(t)
	api := &fakeUserAPI{}
	svc := NewUserService(api, NewMemoizer(store, DefaultBreakerConfig()))
	ctx := context.Background()

	u, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)

	_, err = svc.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&api.calls))
	assert.True(t, store.Has("user_1"))

	mock.Add(16 * time.Minute)

	_, err = svc.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&api.calls), "expired entry must be refetched")
}

func TestUserService_ForgetUser(t *testing.T) {
	store, _ := newTestClientCache(t)
	api := &fakeUserAPI{}
	svc := NewUserService(api, NewMemoizer(store, DefaultBreakerConfig()))

	_, err := svc.GetUser(context.Background(), 7)
	require.NoError(t, err)

	svc.ForgetUser(7)
	assert.False(t, store.Has("user_7"))
}

func TestWeatherService_KeyAndTTL(t *testing.T) {
	store, mock := newTestClientCache(t)
	api := &fakeWeatherAPI{}
	svc := NewWeatherService(api, NewMemoizer(store, DefaultBreakerConfig()))
	ctx := context.Background()

	w, err := svc.GetWeather(ctx, "Sydney", "Australia")
	require.NoError(t, err)
	assert.Equal(t, "sunny", w.Condition)
	assert.True(t, store.Has("weather_Sydney_Australia"))

	mock.Add(4 * time.Minute)
	_, err = svc.GetWeather(ctx, "Sydney", "Australia")
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&api.calls))

	mock.Add(time.Minute)
	_, err = svc.GetWeather(ctx, "Sydney", "Australia")
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&api.calls))
}

func TestMessageService_GetAndForget(t *testing.T) {
	store, _ := newTestClientCache(t)
	api := &fakeMessageAPI{}
	svc := NewMessageService(api, NewMemoizer(store, DefaultBreakerConfig()))
	ctx := context.Background()

	m, err := svc.GetMessage(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Excursion", m.Subject)
	assert.True(t, store.Has("message_42"))

	svc.Forget("42")
	assert.False(t, store.Has("message_42"))

	_, err = svc.GetMessage(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&api.calls))
}

func TestMemoizer_ConcurrentMissesFetchOnce(t *testing.T) {
	store, _ := newTestClientCache(t)
	api := &fakeUserAPI{delay: 20 * time.Millisecond}
	svc := NewUserService(api, NewMemoizer(store, DefaultBreakerConfig()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := svc.GetUser(context.Background(), 3)
			assert.NoError(t, err)
			assert.Equal(t, int64(3), u.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&api.calls))
}

func TestMemoizer_FetchErrorIsNotCached(t *testing.T) {
	store, _ := newTestClientCache(t)
	api := &fakeUserAPI{fail: true}
	memo := NewMemoizer(store, DefaultBreakerConfig())
	svc := NewUserService(api, memo)

	_, err := svc.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, errUpstream)
	assert.False(t, store.Has("user_1"))

	api.fail = false
	u, err := svc.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)

	stats := memo.Stats()
	assert.Equal(t, int64(2), stats.Fetches)
	assert.Equal(t, int64(1), stats.FetchFailures)
}

func TestMemoizer_StoreFailureStillReturnsValue(t *testing.T) {
	api := &fakeUserAPI{}
	memo := NewMemoizer(failingStore{}, DefaultBreakerConfig())
	svc := NewUserService(api, memo)

	u, err := svc.GetUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.ID)
	assert.Equal(t, int64(1), memo.Stats().StoreFailures)
}

func TestMemoizer_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store, _ := newTestClientCache(t)
	api := &fakeUserAPI{fail: true}
	memo := NewMemoizer(store, BreakerConfig{
		Name:        "test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: 2,
	})
	svc := NewUserService(api, memo)
	ctx := context.Background()

	_, err := svc.GetUser(ctx, 1)
	assert.ErrorIs(t, err, errUpstream)
	_, err = svc.GetUser(ctx, 1)
	assert.ErrorIs(t, err, errUpstream)

	_, err = svc.GetUser(ctx, 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int64(2), atomic.LoadInt64(&api.calls), "open breaker must not call upstream")
	assert.Equal(t, gobreaker.StateOpen.String(), memo.Stats().BreakerState)
}

func TestFetch_TypeMismatchRefetchesThroughCache(t *testing.T) {
	store, _ := newTestClientCache(t)
	memo := NewMemoizer(store, DefaultBreakerConfig())

	require.NoError(t, store.SetWithTTL("user_9", "not a user", 5))

	var calls int
	fetch := func(ctx context.Context) (*User, error) {
		calls++
		return &User{ID: 9}, nil
	}

	u, err := Fetch(context.Background(), memo, "user_9", 5, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(9), u.ID)
	assert.Equal(t, 1, calls)

	cached, ok := store.Get("user_9")
	require.True(t, ok)
	assert.IsType(t, &User{}, cached, "mismatched value must be replaced")

	_, err = Fetch(context.Background(), memo, "user_9", 5, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call must hit the cache")
	assert.Equal(t, int64(1), memo.Stats().Fetches)
}

func TestMemoizer_WaiterSurvivesLeaderCancel(t *testing.T) {
	store, _ := newTestClientCache(t)
	memo := NewMemoizer(store, DefaultBreakerConfig())

	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-release:
			return "fresh", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := memo.Do(leaderCtx, "weather_Oslo_Norway", 5, fetch)
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   any
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		v, err := memo.Do(context.Background(), "weather_Oslo_Norway", 5, func(ctx context.Context) (any, error) {
			return "duplicate", nil
		})
		waiter <- result{v, err}
	}()

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	res := <-waiter
	require.NoError(t, res.err)
	assert.Equal(t, "fresh", res.v)
	assert.True(t, store.Has("weather_Oslo_Norway"))
}
