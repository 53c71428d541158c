package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

type pendingTask struct {
	due  time.Duration
	seq  int
	task Task
}

// Manual 测试用的手工调度器
// 任务进队列不执行，由测试按虚拟时间推进
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []pendingTask
}

// NewManual 创建手工调度器
func NewManual() *Manual {
	return &Manual{}
}

// Schedule 实现 Scheduler 接口
func (m *Manual) Schedule(delay time.Duration, task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.pending = append(m.pending, pendingTask{
		due:  m.now + delay,
		seq:  m.seq,
		task: task,
	})
}

// Len 返回队列中的任务数
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// RunNext 取出最早到期的一个任务并执行，队列空返回 false
func (m *Manual) RunNext(ctx context.Context) bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].due != m.pending[j].due {
			return m.pending[i].due < m.pending[j].due
		}
		return m.pending[i].seq < m.pending[j].seq
	})
	next := m.pending[0]
	m.pending = m.pending[1:]
	if next.due > m.now {
		m.now = next.due
	}
	m.mu.Unlock()

	next.task(ctx)
	return true
}

// RunAll 执行队列中的全部任务（包括执行过程中新入队的），
// maxSteps 防止失控的自我重排无限循环
func (m *Manual) RunAll(ctx context.Context, maxSteps int) int {
	steps := 0
	for steps < maxSteps && m.RunNext(ctx) {
		steps++
	}
	return steps
}

// Elapsed 返回虚拟时钟走过的时间
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}
