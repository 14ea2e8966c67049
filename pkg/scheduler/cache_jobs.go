package scheduler

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"portalcache/pkg/cache"
)

// 内置任务名称
const (
	JobPurge = "purge"
	JobStats = "stats"
)

// Purger 可以清理过期条目的缓存
type Purger interface {
	Purge() (int, error)
}

// StatsSource 可以提供统计信息的缓存
type StatsSource interface {
	Stats() (cache.Stats, error)
}

// StatsFunc 让普通函数作为 StatsSource 使用
type StatsFunc func() (cache.Stats, error)

// Stats 实现 StatsSource
func (f StatsFunc) Stats() (cache.Stats, error) {
	return f()
}

// RegisterPurge 注册过期条目清理任务
func (s *Scheduler) RegisterPurge(spec string, p Purger) error {
	return s.AddJob(JobPurge, spec, func(ctx context.Context) error {
		removed, err := p.Purge()
		if err != nil {
			return err
		}
		if removed > 0 {
			s.log.WithField("removed", removed).Info("purged expired cache entries")
		}
		return nil
	})
}

// RegisterStats 注册统计输出任务，spec 为空时不注册
func (s *Scheduler) RegisterStats(spec string, sources map[string]StatsSource) error {
	if spec == "" {
		return nil
	}
	return s.AddJob(JobStats, spec, func(ctx context.Context) error {
		for name, src := range sources {
			stats, err := src.Stats()
			if err != nil {
				return err
			}
			s.log.WithFields(statsFields(name, stats)).Info("cache stats")
		}
		return nil
	})
}

func statsFields(name string, stats cache.Stats) logrus.Fields {
	fields := logrus.Fields{
		"cache":       name,
		"entries":     stats.Entries,
		"size":        humanize.IBytes(uint64(stats.Bytes)),
		"hit_rate":    stats.HitRate,
		"evictions":   stats.Evictions,
		"expirations": stats.Expirations,
	}
	if stats.MaxBytes > 0 {
		fields["max_size"] = humanize.IBytes(uint64(stats.MaxBytes))
	}
	return fields
}
