package cache

import (
	"portalcache/pkg/apperr"
)

const (
	// ErrCacheMiss 表示在缓存中未找到请求的条目（不存在、已删除或已过期）。
	ErrCacheMiss apperr.ErrorCode = "CACHE_MISS"
	// ErrSerializeFailed 表示写入时无法序列化值以计算大小。
	ErrSerializeFailed apperr.ErrorCode = "SERIALIZE_FAILED"
	// ErrCacheFull 表示单个值超过缓存容量且缓存配置为拒绝超大值。
	ErrCacheFull apperr.ErrorCode = "CACHE_FULL"
	// ErrLockPoisoned 表示缓存锁在持有期间发生过 panic，内部状态不再可信。
	ErrLockPoisoned apperr.ErrorCode = "LOCK_POISONED"
)

// 预定义的错误实例，用于 errors.Is 判断
var (
	ErrNotFound     = apperr.New(ErrCacheMiss, "cache entry not found")
	ErrTooLarge     = apperr.New(ErrCacheFull, "value exceeds cache capacity")
	ErrSerialize    = apperr.New(ErrSerializeFailed, "value serialization failed")
	ErrPoisonedLock = apperr.New(ErrLockPoisoned, "cache lock poisoned")
)

// NewSerializeError 包装序列化错误，原始错误保留为 Cause
func NewSerializeError(key string, cause error) error {
	return apperr.Wrap(ErrSerializeFailed, "value serialization failed", cause).
		WithContext("key", key)
}

// NewTooLargeError 创建超大值错误
func NewTooLargeError(key string, size, maxSize int64) error {
	return apperr.New(ErrCacheFull, "value exceeds cache capacity").
		WithContext("key", key).
		WithContext("size", size).
		WithContext("max_size", maxSize)
}

// NewPoisonedError 创建锁中毒错误
func NewPoisonedError(op string) error {
	return apperr.New(ErrLockPoisoned, "cache lock poisoned").
		WithContext("op", op)
}
