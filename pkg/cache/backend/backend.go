// Package backend 实现后端进程内的线程安全缓存：键到预序列化字符串的映射，
// 每个条目有独立的过期时间，没有容量上限和 LRU。
//
// 所有操作在同一把互斥锁内完成“检查过期 + 修改映射”，不区分读写锁。
package backend

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"portalcache/pkg/cache"
	"portalcache/pkg/logger"
)

// Config 后端缓存配置
type Config struct {
	DefaultTTL time.Duration `yaml:"default_ttl"` // 调用方未指定TTL时使用
	Clock      clock.Clock   `yaml:"-"`
	Logger     *logrus.Entry `yaml:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{DefaultTTL: cache.DefaultBackendTTL}
}

type entry struct {
	data      string
	expiresAt time.Time
}

// Cache 互斥锁保护的TTL缓存
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	bytes    int64 // 所有条目数据长度之和
	poisoned bool  // 持锁期间发生过 panic

	defaultTTL time.Duration
	clock      clock.Clock
	log        *logrus.Entry

	hitCount    int64
	missCount   int64
	expirations int64
	lastCleanup time.Time
}

// New 创建后端缓存
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = cache.DefaultBackendTTL
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logger.WithComponent("backend_cache")
	}

	return &Cache{
		entries:     make(map[string]entry),
		defaultTTL:  config.DefaultTTL,
		clock:       config.Clock,
		log:         config.Logger,
		lastCleanup: config.Clock.Now(),
	}
}

// Get 返回未过期的数据副本；过期条目在读取时被删除
func (c *Cache) Get(key string) (string, bool, error) {
	var (
		data  string
		found bool
	)
	err := c.withLock("get", func() {
		e, ok := c.entries[key]
		if !ok {
			c.missCount++
			return
		}
		if !c.clock.Now().Before(e.expiresAt) {
			c.removeLocked(key, e)
			c.expirations++
			c.missCount++
			return
		}
		c.hitCount++
		data, found = e.data, true
	})
	if err != nil {
		return "", false, err
	}
	return data, found, nil
}

// Set 写入或覆盖条目，ttl <= 0 时使用默认TTL
func (c *Cache) Set(key, data string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.withLock("set", func() {
		if old, ok := c.entries[key]; ok {
			c.removeLocked(key, old)
		}
		c.entries[key] = entry{
			data:      data,
			expiresAt: c.clock.Now().Add(ttl),
		}
		c.bytes += int64(len(data))
	})
}

// Invalidate 删除条目，键不存在时什么也不做
func (c *Cache) Invalidate(key string) error {
	return c.withLock("invalidate", func() {
		if e, ok := c.entries[key]; ok {
			c.removeLocked(key, e)
		}
	})
}

// Clear 清空所有条目
func (c *Cache) Clear() error {
	return c.withLock("clear", func() {
		c.entries = make(map[string]entry)
		c.bytes = 0
	})
}

// Purge 删除所有已过期的条目，返回删除数量
func (c *Cache) Purge() (int, error) {
	removed := 0
	err := c.withLock("purge", func() {
		now := c.clock.Now()
		for key, e := range c.entries {
			if !now.Before(e.expiresAt) {
				c.removeLocked(key, e)
				removed++
			}
		}
		c.expirations += int64(removed)
		c.lastCleanup = now
	})
	return removed, err
}

// Len 返回当前条目数（可能包含尚未清理的过期条目）
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.withLock("len", func() {
		n = len(c.entries)
	})
	return n, err
}

// Stats 获取缓存统计信息
func (c *Cache) Stats() (cache.Stats, error) {
	var stats cache.Stats
	err := c.withLock("stats", func() {
		stats = cache.Stats{
			Entries:     int64(len(c.entries)),
			Bytes:       c.bytes,
			HitCount:    c.hitCount,
			MissCount:   c.missCount,
			HitRate:     cache.HitRatio(c.hitCount, c.missCount),
			Expirations: c.expirations,
			DefaultTTL:  c.defaultTTL,
			LastCleanup: c.lastCleanup,
		}
	})
	return stats, err
}

// removeLocked 删除条目并扣减字节数。调用方必须持有锁。
func (c *Cache) removeLocked(key string, e entry) {
	delete(c.entries, key)
	c.bytes -= int64(len(e.data))
}

// Poisoned 报告锁是否已中毒
func (c *Cache) Poisoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}

// withLock 在互斥锁内执行 fn。fn 发生 panic 时缓存被标记为中毒并继续向上 panic，
// 之后的所有操作都返回 LOCK_POISONED。
func (c *Cache) withLock(op string, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return cache.NewPoisonedError(op)
	}

	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			c.log.WithFields(logrus.Fields{
				"op":    op,
				"panic": r,
			}).Error("panic while holding cache lock, cache poisoned")
			panic(r)
		}
	}()

	fn()
	return nil
}
