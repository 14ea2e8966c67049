// Package cache 定义了客户端缓存与后端缓存共用的常量、统计结构和序列化契约。
package cache

import (
	"encoding/json"
	"time"
)

// TTL 预设（单位：分钟），由调用方在每次 Set 时显式选择，缓存本身不强制。
const (
	TTLShort    = 5
	TTLMedium   = 15
	TTLLong     = 60
	TTLVeryLong = 1440
)

// 默认配置
const (
	DefaultTTLMinutes          = TTLShort
	DefaultMaxSizeBytes  int64 = 100 * 1024 * 1024
	DefaultSweepInterval       = 5 * time.Minute
	DefaultBackendTTL          = 300 * time.Second
)

// Stats 缓存统计信息快照
type Stats struct {
	Entries     int64         `json:"entries"`      // 当前存活条目数
	Bytes       int64         `json:"bytes"`        // 当前累计字节数（后端缓存为数据长度之和）
	MaxBytes    int64         `json:"max_bytes"`    // 容量上限，0 表示不限
	HitCount    int64         `json:"hit_count"`    // 命中次数
	MissCount   int64         `json:"miss_count"`   // 未命中次数
	HitRate     float64       `json:"hit_rate"`     // 命中率
	Evictions   int64         `json:"evictions"`    // LRU 淘汰次数
	Expirations int64         `json:"expirations"`  // 过期删除次数（惰性 + 清扫）
	DefaultTTL  time.Duration `json:"default_ttl"`  // 默认 TTL
	LastCleanup time.Time     `json:"last_cleanup"` // 最后一次清扫时间
}

// HitRatio 根据命中与未命中次数计算命中率
func HitRatio(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}

// Serializer 把值序列化为字节，用于计算条目大小
type Serializer interface {
	Serialize(v any) ([]byte, error)
}

// SerializerFunc 允许普通函数作为 Serializer 使用
type SerializerFunc func(v any) ([]byte, error)

// Serialize 实现 Serializer
func (f SerializerFunc) Serialize(v any) ([]byte, error) {
	return f(v)
}

// JSONSerializer 默认的 JSON 序列化器
type JSONSerializer struct{}

// Serialize 实现 Serializer
func (JSONSerializer) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

var _ Serializer = JSONSerializer{}
