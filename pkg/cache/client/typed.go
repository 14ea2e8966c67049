package client

import (
	"portalcache/pkg/apperr"
	"portalcache/pkg/cache"
)

// GetAs 读取条目并断言为 T。类型不匹配按未命中处理，但不会删除条目。
func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Lookup 与 Get 相同，但未命中时返回 CACHE_MISS 错误
func (c *Cache) Lookup(key string) (any, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, apperr.New(cache.ErrCacheMiss, "cache entry not found").WithContext("key", key)
	}
	return v, nil
}
