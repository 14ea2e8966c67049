// Package command 把后端缓存暴露为请求/响应式命令，供 UI 进程跨进程调用。
package command

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"portalcache/pkg/cache"
	"portalcache/pkg/cache/backend"
	"portalcache/pkg/logger"
)

// Commands 后端缓存命令集合
type Commands struct {
	cache *backend.Cache
	log   *logrus.Entry
}

// New 创建命令集合
func New(c *backend.Cache, log *logrus.Entry) *Commands {
	if log == nil {
		log = logger.WithComponent("command")
	}
	return &Commands{cache: c, log: log}
}

// GetCachedData 返回未过期的数据，不存在、已过期或出错时返回 nil。该命令从不返回错误。
func (c *Commands) GetCachedData(key string) *string {
	data, ok, err := c.cache.Get(key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Error("get_cached_data failed")
		return nil
	}
	if !ok {
		return nil
	}
	return &data
}

// SetCachedData 写入数据，ttlSeconds 为 nil 时使用默认TTL。
// 只有锁失败会返回错误，错误信息为字符串。
func (c *Commands) SetCachedData(key, data string, ttlSeconds *int64) error {
	var ttl time.Duration
	if ttlSeconds != nil {
		ttl = secondsToTTL(*ttlSeconds)
	}
	if err := c.cache.Set(key, data, ttl); err != nil {
		return errors.New(err.Error())
	}
	return nil
}

// maxTTLSeconds 是 time.Duration 能表示的最大秒数
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// secondsToTTL 把秒数转换为 TTL，超出 time.Duration 范围的值截断为最大值
func secondsToTTL(seconds int64) time.Duration {
	if seconds > maxTTLSeconds {
		seconds = maxTTLSeconds
	}
	return time.Duration(seconds) * time.Second
}

// InvalidateCachedData 删除条目
func (c *Commands) InvalidateCachedData(key string) error {
	if err := c.cache.Invalidate(key); err != nil {
		return errors.New(err.Error())
	}
	return nil
}

// ClearCachedData 清空后端缓存
func (c *Commands) ClearCachedData() error {
	if err := c.cache.Clear(); err != nil {
		return errors.New(err.Error())
	}
	return nil
}

// Stats 返回后端缓存统计信息
func (c *Commands) Stats() (cache.Stats, error) {
	return c.cache.Stats()
}

// Healthy 锁未中毒时返回 true
func (c *Commands) Healthy() bool {
	return !c.cache.Poisoned()
}
