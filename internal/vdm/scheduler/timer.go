package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Timer 基于 time.AfterFunc 的调度器
// 同时实现 grace.Grace 接口，关停时等待在途任务执行完
type Timer struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	timers map[*time.Timer]struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTimer 创建调度器
func NewTimer() *Timer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Timer{
		timers: make(map[*time.Timer]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule 实现 Scheduler 接口
// 任务 panic 不会打穿进程，记录日志后丢弃
func (t *Timer) Schedule(delay time.Duration, task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx.Err() != nil {
		return
	}

	t.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(t.ctx).Error().
					Interface("panic", r).
					Msg("scheduled task panicked")
			}
		}()
		t.mu.Lock()
		delete(t.timers, timer)
		canceled := t.ctx.Err() != nil
		t.mu.Unlock()
		if canceled {
			return
		}
		task(t.ctx)
	})
	t.timers[timer] = struct{}{}
}

// Name 实现 grace.Grace 接口
func (t *Timer) Name() string {
	return "Workflow Scheduler"
}

// Run 实现 grace.Grace 接口，阻塞到 Shutdown 被调用
func (t *Timer) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-t.ctx.Done():
	}
	return nil
}

// Shutdown 实现 grace.Grace 接口
// 停掉尚未触发的 timer，等待已触发的任务结束
func (t *Timer) Shutdown(ctx context.Context) error {
	t.cancel()

	t.mu.Lock()
	for timer := range t.timers {
		if timer.Stop() {
			t.wg.Done()
		}
		delete(t.timers, timer)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
