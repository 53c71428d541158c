// Package scheduler 提供工作流步骤的延迟调度
package scheduler

import (
	"context"
	"time"
)

// Task 一次被调度执行的工作
type Task func(ctx context.Context)

// Scheduler 延迟调度器
// 工作流步骤通过它安排下一次轮询，而不是自己持有 timer
type Scheduler interface {
	// Schedule 在 delay 之后执行 task
	Schedule(delay time.Duration, task Task)
}
