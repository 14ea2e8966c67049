package backend

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalcache/pkg/cache"
)

func newTestCache() (*Cache, *clock.Mock) {
	mock := clock.NewMock()
	return New(Config{Clock: mock}), mock
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache()

	require.NoError(t, c.Set("session", `{"token":"abc"}`, 0))

	data, ok, err := c.Get("session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"token":"abc"}`, data)

	data, ok, err = c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, data)
}

func TestCache_DefaultTTL(t *testing.T) {
	c, mock := newTestCache()

	require.NoError(t, c.Set("k", "v", 0))

	mock.Add(299 * time.Second)
	_, ok, _ := c.Get("k")
	assert.True(t, ok)

	mock.Add(time.Second)
	_, ok, _ = c.Get("k")
	assert.False(t, ok, "entry must be dead once now reaches expiresAt")

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "expired entry must be removed on read")
}

func TestCache_PerCallTTL(t *testing.T) {
	c, mock := newTestCache()

	require.NoError(t, c.Set("short", "1", 10*time.Second))
	require.NoError(t, c.Set("long", "2", time.Hour))

	mock.Add(11 * time.Second)

	_, ok, _ := c.Get("short")
	assert.False(t, ok)
	data, ok, _ := c.Get("long")
	assert.True(t, ok)
	assert.Equal(t, "2", data)
}

func TestCache_Overwrite(t *testing.T) {
	c, mock := newTestCache()

	require.NoError(t, c.Set("k", "v1", time.Minute))
	mock.Add(50 * time.Second)
	require.NoError(t, c.Set("k", "v2", time.Minute))
	mock.Add(50 * time.Second)

	data, ok, _ := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", data)

	n, _ := c.Len()
	assert.Equal(t, 1, n)
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c, _ := newTestCache()

	require.NoError(t, c.Invalidate("never-set"))

	require.NoError(t, c.Set("a", "1", 0))
	require.NoError(t, c.Set("b", "2", 0))

	require.NoError(t, c.Invalidate("a"))
	_, ok, _ := c.Get("a")
	assert.False(t, ok)

	require.NoError(t, c.Clear())
	_, ok, _ = c.Get("b")
	assert.False(t, ok)

	n, _ := c.Len()
	assert.Equal(t, 0, n)
}

func TestCache_Purge(t *testing.T) {
	c, mock := newTestCache()

	require.NoError(t, c.Set("a", "1", time.Minute))
	require.NoError(t, c.Set("b", "2", time.Minute))
	require.NoError(t, c.Set("c", "3", time.Hour))

	mock.Add(2 * time.Minute)

	removed, err := c.Purge()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Bytes)
	assert.Equal(t, int64(2), stats.Expirations)
	assert.Equal(t, mock.Now(), stats.LastCleanup)
}

func TestCache_Stats(t *testing.T) {
	c, _ := newTestCache()

	require.NoError(t, c.Set("a", "hello", 0))
	c.Get("a")
	c.Get("a")
	c.Get("zzz")

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.Equal(t, int64(5), stats.Bytes)
	assert.Equal(t, cache.DefaultBackendTTL, stats.DefaultTTL)
}

func TestCache_StatsBytesTracksMutations(t *testing.T) {
	c, mock := newTestCache()

	bytesNow := func() int64 {
		stats, err := c.Stats()
		require.NoError(t, err)
		return stats.Bytes
	}

	require.NoError(t, c.Set("a", "12345", time.Minute))
	require.NoError(t, c.Set("b", "123", time.Hour))
	assert.Equal(t, int64(8), bytesNow())

	require.NoError(t, c.Set("a", "12", time.Minute))
	assert.Equal(t, int64(5), bytesNow(), "overwrite must replace the old length")

	require.NoError(t, c.Invalidate("b"))
	require.NoError(t, c.Invalidate("b"))
	assert.Equal(t, int64(2), bytesNow())

	require.NoError(t, c.Set("c", "1234", time.Hour))
	mock.Add(2 * time.Minute)
	_, ok, _ := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, int64(4), bytesNow(), "lazy expiry must release bytes")

	require.NoError(t, c.Set("d", "xy", time.Minute))
	mock.Add(2 * time.Minute)
	_, err := c.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(4), bytesNow())

	require.NoError(t, c.Clear())
	assert.Equal(t, int64(0), bytesNow())
}

func TestCache_PoisonedLock(t *testing.T) {
	c, _ := newTestCache()
	require.NoError(t, c.Set("k", "v", 0))

	assert.Panics(t, func() {
		_ = c.withLock("test", func() { panic("boom") })
	})
	assert.True(t, c.Poisoned())

	_, _, err := c.Get("k")
	assert.True(t, errors.Is(err, cache.ErrPoisonedLock))
	assert.True(t, errors.Is(c.Set("k", "v2", 0), cache.ErrPoisonedLock))
	assert.True(t, errors.Is(c.Invalidate("k"), cache.ErrPoisonedLock))
	assert.True(t, errors.Is(c.Clear(), cache.ErrPoisonedLock))

	_, err = c.Purge()
	assert.Error(t, err)
}

// TestCache_ConcurrentAccess 在 -race 下运行时校验没有撕裂读和丢失条目
func TestCache_ConcurrentAccess(t *testing.T) {
	c, _ := newTestCache()

	const (
		writers = 8
		keys    = 16
		rounds  = 500
	)

	// 每个值由同一字符重复组成，撕裂读会表现为混合字符
	valueFor := func(g, i int) string {
		return strings.Repeat(string(rune('a'+(g+i)%26)), 64)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("k%d", i%keys)
				switch i % 3 {
				case 0:
					if err := c.Set(key, valueFor(g, i), time.Minute); err != nil {
						errCh <- err
						return
					}
				case 1:
					data, ok, err := c.Get(key)
					if err != nil {
						errCh <- err
						return
					}
					if ok && strings.Trim(data, data[:1]) != "" {
						errCh <- fmt.Errorf("torn read for %s: %q", key, data)
						return
					}
				case 2:
					if g == 0 {
						_ = c.Invalidate(key)
					}
				}
			}
		}(g)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}

	// 只写不删的键必须全部存在
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("stable%d", i)
		require.NoError(t, c.Set(key, "x", 0))
	}
	var wg2 sync.WaitGroup
	for g := 0; g < writers; g++ {
		wg2.Add(1)
		go func() {
			defer wg2.Done()
			for i := 0; i < keys; i++ {
				_, ok, err := c.Get(fmt.Sprintf("stable%d", i))
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}()
	}
	wg2.Wait()
}
