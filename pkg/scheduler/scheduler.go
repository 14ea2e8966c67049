// Package scheduler 基于 robfig/cron 运行后端进程的后台任务，例如清理过期缓存条目。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"portalcache/pkg/logger"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*Job
	mu     sync.RWMutex
	log    *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建调度器，log 为 nil 时使用全局日志器
func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logger.WithComponent("scheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		jobs:   make(map[string]*Job),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob 注册任务，名称不能重复
func (s *Scheduler) AddJob(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return fmt.Errorf("任务名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("任务函数不能为空: %s", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("任务已存在: %s", name)
	}

	job := &Job{
		Name:   name,
		Spec:   spec,
		Status: JobStatusPending,
		run:    fn,
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("无效的调度表达式 %q: %w", spec, err)
	}
	job.EntryID = entryID
	s.jobs[name] = job

	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("job registered")
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop 停止调度器并等待正在运行的任务完成，最长等待到 ctx 结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow 立即同步执行一次任务
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("任务不存在: %s", name)
	}

	return s.execute(job)
}

// GetJob 获取任务状态的副本
func (s *Scheduler) GetJob(name string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[name]
	if !exists {
		return Job{}, fmt.Errorf("任务不存在: %s", name)
	}

	jobCopy := *job
	jobCopy.NextRun = s.cron.Entry(job.EntryID).Next
	return jobCopy, nil
}

// JobNames 返回所有已注册任务的名称
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) execute(job *Job) error {
	s.mu.Lock()
	job.Status = JobStatusRunning
	s.mu.Unlock()

	start := time.Now()
	err := job.run(s.ctx)

	s.mu.Lock()
	job.LastRun = start
	job.RunCount++
	if err != nil {
		job.ErrorCount++
		job.LastError = err
		job.Status = JobStatusError
	} else {
		job.LastError = nil
		job.Status = JobStatusIdle
	}
	s.mu.Unlock()

	entry := s.log.WithFields(logrus.Fields{
		"job":      job.Name,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("job failed")
	} else {
		entry.Debug("job finished")
	}
	return err
}
