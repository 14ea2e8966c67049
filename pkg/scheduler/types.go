package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc 任务执行函数
type JobFunc func(ctx context.Context) error

// Job 表示一个已注册的定时任务
type Job struct {
	Name       string
	Spec       string // cron 表达式，如 "@every 5m"
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    time.Time
	NextRun    time.Time
	RunCount   int64
	ErrorCount int64
	LastError  error

	run JobFunc
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusIdle    JobStatus = "idle"
	JobStatusError   JobStatus = "error"
)
