// Package service 包含使用客户端缓存的服务层函数：
// 缓存命中直接返回，未命中时调用上游接口获取并写回缓存。
//
// 缓存始终只是优化手段，写缓存失败只记录日志，不影响返回值。
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"portalcache/pkg/logger"
)

// Store 服务层需要的缓存操作，*client.Cache 满足此接口
type Store interface {
	Get(key string) (any, bool)
	SetWithTTL(key string, value any, ttlMinutes int) error
	Delete(key string)
}

// FetchFunc 在缓存未命中时获取值
type FetchFunc func(ctx context.Context) (any, error)

// BreakerConfig 上游接口熔断器配置
type BreakerConfig struct {
	Name        string        `yaml:"name"`          // 熔断器名称
	MaxRequests uint32        `yaml:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval"`      // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip"` // 触发熔断的连续失败次数
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "portal-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
	}
}

// MemoStats 记忆化统计
type MemoStats struct {
	Hits          int64  `json:"hits"`
	Fetches       int64  `json:"fetches"`
	FetchFailures int64  `json:"fetch_failures"`
	StoreFailures int64  `json:"store_failures"`
	BreakerState  string `json:"breaker_state"`
}

// Memoizer 把上游获取函数包装成带缓存的调用。
// 同一个键的并发未命中只触发一次获取，获取经过熔断器。
type Memoizer struct {
	store Store
	group singleflight.Group
	cb    *gobreaker.CircuitBreaker
	log   *logrus.Entry

	hits          int64
	fetches       int64
	fetchFailures int64
	storeFailures int64
}

// NewMemoizer 创建 Memoizer
func NewMemoizer(store Store, config BreakerConfig) *Memoizer {
	if config.ReadyToTrip == 0 {
		config = DefaultBreakerConfig()
	}

	log := logger.WithComponent("memoizer")
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &Memoizer{
		store: store,
		cb:    gobreaker.NewCircuitBreaker(settings),
		log:   log,
	}
}

// Do 返回 key 对应的缓存值，未命中时调用 fetch 并以 ttlMinutes 写入缓存。
// fetch 的错误原样返回且不会被缓存。
func (m *Memoizer) Do(ctx context.Context, key string, ttlMinutes int, fetch FetchFunc) (any, error) {
	if v, ok := m.store.Get(key); ok {
		atomic.AddInt64(&m.hits, 1)
		return v, nil
	}

	// 获取与发起者的取消解耦，每个调用方只按自己的 ctx 放弃等待
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		// 等待期间其他调用可能已经写入
		if v, ok := m.store.Get(key); ok {
			atomic.AddInt64(&m.hits, 1)
			return v, nil
		}

		atomic.AddInt64(&m.fetches, 1)
		result, err := m.cb.Execute(func() (interface{}, error) {
			return fetch(fetchCtx)
		})
		if err != nil {
			atomic.AddInt64(&m.fetchFailures, 1)
			m.log.WithError(err).WithFields(logrus.Fields{
				"key":   key,
				"level": Classify(err).String(),
			}).Debug("fetch failed")
			return nil, err
		}

		if setErr := m.store.SetWithTTL(key, result, ttlMinutes); setErr != nil {
			atomic.AddInt64(&m.storeFailures, 1)
			m.log.WithError(setErr).WithField("key", key).Warn("value not cached")
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Forget 删除缓存中的 key
func (m *Memoizer) Forget(key string) {
	m.store.Delete(key)
}

// Stats 获取统计信息
func (m *Memoizer) Stats() MemoStats {
	return MemoStats{
		Hits:          atomic.LoadInt64(&m.hits),
		Fetches:       atomic.LoadInt64(&m.fetches),
		FetchFailures: atomic.LoadInt64(&m.fetchFailures),
		StoreFailures: atomic.LoadInt64(&m.storeFailures),
		BreakerState:  m.cb.State().String(),
	}
}

// Fetch 是 Do 的类型化版本
func Fetch[T any](ctx context.Context, m *Memoizer, key string, ttlMinutes int, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := m.Do(ctx, key, ttlMinutes, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	// 同一个键下存了其他类型的值，删除后重新经过 Do 获取
	m.log.WithField("key", key).Warnf("cached value has unexpected type %T", v)
	m.Forget(key)
	v, err = m.Do(ctx, key, ttlMinutes, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cached value for %s has type %T", key, v)
	}
	return typed, nil
}
