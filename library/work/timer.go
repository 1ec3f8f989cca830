package work

import (
	"sync/atomic"
	"time"

	"github.com/yola1107/parlor/library/xgo"
)

// Scheduler 定时器。任务 ID 全局递增，Cancel 已触发或不存在的 ID 无副作用
type Scheduler interface {
	Once(delay time.Duration, f func()) int64
	Forever(interval time.Duration, f func()) int64
	ForeverNow(interval time.Duration, f func()) int64
	Cancel(taskID int64)
	CancelAll()
	Stop()

	Len() int
	Running() int32
	Monitor() Monitor
}

// Executor 回调的执行位置；传 Loop 时所有回调串行在 loop 协程里跑
type Executor interface {
	Post(job func())
}

type Monitor struct {
	Capacity int // 只有堆实现有意义
	Len      int
	Running  int32
}

// 周期任务落后太多时最多补这么多次，超出直接对齐到当前时间
const maxIntervalJumps = 10000

// ExecuteAsync exec 为 nil 时单独起协程
func ExecuteAsync(exec Executor, f func()) {
	job := func() {
		defer xgo.RecoverFromError(nil)
		f()
	}
	if exec == nil {
		go job()
		return
	}
	exec.Post(job)
}

type schedulerBase struct {
	executor Executor
	running  atomic.Int32
	lastID   atomic.Int64
}

func (s *schedulerBase) executeAsync(f func()) { ExecuteAsync(s.executor, f) }

func (s *schedulerBase) newID() int64 { return s.lastID.Add(1) }

func (s *schedulerBase) Running() int32 { return s.running.Load() }
