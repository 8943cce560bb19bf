// Package jobs 负责按 cron 表达式调度后台维护任务。
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StreakRefresher 重新计算所有未归档习惯的连胜
type StreakRefresher interface {
	RefreshAll(ctx context.Context) (refreshed int, failed int, err error)
}

// Pruner 清理长时间未使用的限流器
type Pruner interface {
	Prune(idle time.Duration) int
}

// Scheduler 包装 cron，并把任务执行结果写入日志
type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewScheduler 在 loc 时区下解析标准五段 cron 表达式
func NewScheduler(log logrus.FieldLogger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log}))),
		log:     log,
		timeout: 10 * time.Minute,
	}
}

// AddStreakRefresh 注册夜间连胜刷新，使当天未打卡的连胜归零
func (s *Scheduler) AddStreakRefresh(spec string, refresher StreakRefresher) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.RunStreakRefresh(context.Background(), refresher)
	})
	if err != nil {
		return fmt.Errorf("schedule streak refresh %q: %w", spec, err)
	}
	return nil
}

// RunStreakRefresh 立即执行一次连胜刷新
func (s *Scheduler) RunStreakRefresh(ctx context.Context, refresher StreakRefresher) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	refreshed, failed, err := refresher.RefreshAll(ctx)
	entry := s.log.WithFields(logrus.Fields{
		"job":         "streak_refresh",
		"refreshed":   refreshed,
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return
	}
	if failed > 0 {
		entry.Warn("job finished with failures")
		return
	}
	entry.Info("job finished")
}

// AddLimiterPrune 注册限流器清理
func (s *Scheduler) AddLimiterPrune(spec string, pruner Pruner, idle time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		removed := pruner.Prune(idle)
		s.log.WithFields(logrus.Fields{"job": "limiter_prune", "removed": removed}).Debug("job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule limiter prune %q: %w", spec, err)
	}
	return nil
}

// Len 返回已注册的任务数量
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start 在后台启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在运行的任务结束，ctx 到期则直接返回
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 把 cron 内部日志转给 logrus
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithError(err).WithFields(toFields(keysAndValues)).Error(msg)
}

func toFields(keysAndValues []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
