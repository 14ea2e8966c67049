// Package client 实现 UI 侧使用的进程内缓存：按条目 TTL 过期，
// 按序列化字节数限制总容量，超出时按 LRU 顺序淘汰。
//
// 条目映射、访问顺序和累计大小三者总是在同一把锁下一起修改，
// 后台清扫协程与显式 Delete 共用同一套删除逻辑。
package client

import (
	"container/list"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"portalcache/pkg/cache"
	"portalcache/pkg/logger"
)

// Config 客户端缓存配置
type Config struct {
	DefaultTTLMinutes int              `yaml:"default_ttl_minutes"` // 默认TTL（分钟）
	MaxSizeBytes      int64            `yaml:"max_size_bytes"`      // 序列化字节总量上限
	SweepInterval     time.Duration    `yaml:"sweep_interval"`      // 后台清扫间隔，<=0 时不启动清扫
	RejectOversized   bool             `yaml:"reject_oversized"`    // 单个值超过上限时是否拒绝写入
	Serializer        cache.Serializer `yaml:"-"`                   // 用于计算条目大小
	Clock             clock.Clock      `yaml:"-"`                   // 时间来源，测试时可替换为 mock
	Logger            *logrus.Entry    `yaml:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DefaultTTLMinutes: cache.DefaultTTLMinutes,
		MaxSizeBytes:      cache.DefaultMaxSizeBytes,
		SweepInterval:     cache.DefaultSweepInterval,
	}
}

// entry 缓存条目
type entry struct {
	key       string
	value     any
	expiresAt time.Time
	sizeBytes int64
	elem      *list.Element // 在访问顺序中的位置
}

// Cache 带 TTL 和容量上限的 LRU 缓存，可安全地被多个协程共享
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       *list.List // 访问顺序，Front 为最久未使用，Back 为最近使用
	runningSize int64

	defaultTTL      time.Duration
	maxSize         int64
	rejectOversized bool
	serializer      cache.Serializer
	clock           clock.Clock
	log             *logrus.Entry

	hitCount    int64
	missCount   int64
	evictions   int64
	expirations int64
	lastCleanup time.Time

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
	sweepDone     chan struct{}
}

// New 创建客户端缓存，SweepInterval > 0 时同时启动后台清扫
func New(config Config) *Cache {
	if config.DefaultTTLMinutes <= 0 {
		config.DefaultTTLMinutes = cache.DefaultTTLMinutes
	}
	if config.MaxSizeBytes <= 0 {
		config.MaxSizeBytes = cache.DefaultMaxSizeBytes
	}
	if config.Serializer == nil {
		config.Serializer = cache.JSONSerializer{}
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logger.WithComponent("client_cache")
	}

	c := &Cache{
		entries:         make(map[string]*entry),
		order:           list.New(),
		defaultTTL:      minutes(config.DefaultTTLMinutes),
		maxSize:         config.MaxSizeBytes,
		rejectOversized: config.RejectOversized,
		serializer:      config.Serializer,
		clock:           config.Clock,
		log:             config.Logger,
		lastCleanup:     config.Clock.Now(),
		sweepInterval:   config.SweepInterval,
		stopSweep:       make(chan struct{}),
		sweepDone:       make(chan struct{}),
	}

	if c.sweepInterval > 0 {
		// 定时器必须在返回前创建
		timer := c.clock.Timer(c.sweepInterval)
		go c.sweepLoop(timer)
	} else {
		close(c.sweepDone)
	}

	return c
}

// Set 使用默认TTL写入
func (c *Cache) Set(key string, value any) error {
	return c.SetWithTTL(key, value, 0)
}

// SetWithTTL 写入一个条目，ttlMinutes <= 0 时使用默认TTL。
// 序列化失败时返回错误且不修改缓存。
func (c *Cache) SetWithTTL(key string, value any, ttlMinutes int) error {
	data, err := c.serializer.Serialize(value)
	if err != nil {
		return cache.NewSerializeError(key, err)
	}
	size := int64(len(data))

	if size > c.maxSize && c.rejectOversized {
		return cache.NewTooLargeError(key, size, c.maxSize)
	}

	ttl := c.defaultTTL
	if ttlMinutes > 0 {
		ttl = minutes(ttlMinutes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	for c.runningSize+size > c.maxSize && len(c.entries) > 0 {
		oldest := c.order.Front().Value.(*entry)
		c.removeLocked(oldest)
		c.evictions++
		c.log.WithFields(logrus.Fields{
			"key":  oldest.key,
			"size": oldest.sizeBytes,
		}).Debug("evicted least recently used entry")
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
		sizeBytes: size,
	}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e
	c.runningSize += size

	if size > c.maxSize {
		c.log.WithFields(logrus.Fields{
			"key":      key,
			"size":     size,
			"max_size": c.maxSize,
		}).Warn("cached value larger than cache capacity")
	}

	return nil
}

// Get 读取条目。未命中或已过期时返回 false；过期条目会被立即删除。
// 命中的条目被移动到最近使用的位置。
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key)
	if !ok {
		c.missCount++
		return nil, false
	}

	c.order.MoveToBack(e.elem)
	c.hitCount++
	return e.value, true
}

// Has 与 Get 采用相同的存活判断（包括惰性删除），但只返回是否存在
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.liveLocked(key)
	return ok
}

// Delete 删除条目，键不存在时什么也不做
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Clear 清空所有条目
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.order.Init()
	c.runningSize = 0
}

// Sweep 删除所有已过期的条目，返回删除数量
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for _, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(e)
			removed++
		}
	}
	c.expirations += int64(removed)
	c.lastCleanup = now

	if removed > 0 {
		c.log.WithField("removed", removed).Debug("swept expired entries")
	}
	return removed
}

// Len 返回当前条目数（可能包含尚未被清扫的过期条目）
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size 返回当前累计的序列化字节数
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningSize
}

// Keys 按访问顺序返回所有键，最久未使用的在前
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Stats 获取缓存统计信息
func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cache.Stats{
		Entries:     int64(len(c.entries)),
		Bytes:       c.runningSize,
		MaxBytes:    c.maxSize,
		HitCount:    c.hitCount,
		MissCount:   c.missCount,
		HitRate:     cache.HitRatio(c.hitCount, c.missCount),
		Evictions:   c.evictions,
		Expirations: c.expirations,
		DefaultTTL:  c.defaultTTL,
		LastCleanup: c.lastCleanup,
	}
}

// Close 停止后台清扫，可重复调用
func (c *Cache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
	})
	<-c.sweepDone
	return nil
}

// liveLocked 返回存活条目；过期条目按 Delete 的方式删除。调用方必须持有锁。
func (c *Cache) liveLocked(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.removeLocked(e)
		c.expirations++
		return nil, false
	}
	return e, true
}

// removeLocked 从映射、访问顺序和累计大小中同时移除条目。调用方必须持有锁。
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.order.Remove(e.elem)
	c.runningSize -= e.sizeBytes
}

// sweepLoop 周期性清扫，每次触发后重新创建定时器
func (c *Cache) sweepLoop(timer *clock.Timer) {
	defer close(c.sweepDone)

	for {
		select {
		case <-c.stopSweep:
			timer.Stop()
			return
		case <-timer.C:
			c.Sweep()
			timer = c.clock.Timer(c.sweepInterval)
		}
	}
}

// maxTTLMinutes 是 time.Duration 能表示的最大分钟数
const maxTTLMinutes = math.MaxInt64 / int64(time.Minute)

// minutes 把分钟数转换为时长，超出范围的值截断为最大值
func minutes(n int) time.Duration {
	if int64(n) > maxTTLMinutes {
		return time.Duration(maxTTLMinutes) * time.Minute
	}
	return time.Duration(n) * time.Minute
}
