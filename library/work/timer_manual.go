package work

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler 手动推进时间的调度器，用于确定性测试
type ManualScheduler struct {
	schedulerBase
	mu    sync.Mutex
	now   time.Time
	tasks map[int64]*manualEntry
}

type manualEntry struct {
	id       int64
	at       time.Time
	interval time.Duration
	repeated bool
	task     func()
}

// NewManualScheduler start 为初始时间
func NewManualScheduler(exec Executor, start time.Time) *ManualScheduler {
	s := &ManualScheduler{now: start, tasks: make(map[int64]*manualEntry)}
	s.executor = exec
	return s
}

// Now 当前虚拟时间，可作为时钟注入
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance 推进虚拟时间，按时间顺序触发到期任务
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.earliest(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.at
		task := next.task
		if next.repeated {
			next.at = next.at.Add(next.interval)
		} else {
			delete(s.tasks, next.id)
		}
		s.mu.Unlock()

		s.running.Add(1)
		ExecuteAsync(s.executor, task)
		s.running.Add(-1)
	}
}

func (s *ManualScheduler) earliest(limit time.Time) *manualEntry {
	var due []*manualEntry
	for _, e := range s.tasks {
		if !e.at.After(limit) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

func (s *ManualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *ManualScheduler) Monitor() Monitor {
	return Monitor{Len: s.Len(), Running: s.Running()}
}

func (s *ManualScheduler) Once(delay time.Duration, f func()) int64 {
	return s.add(delay, false, f)
}

func (s *ManualScheduler) Forever(interval time.Duration, f func()) int64 {
	return s.add(interval, true, f)
}

func (s *ManualScheduler) ForeverNow(interval time.Duration, f func()) int64 {
	ExecuteAsync(s.executor, f)
	return s.add(interval, true, f)
}

func (s *ManualScheduler) Cancel(taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

func (s *ManualScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[int64]*manualEntry)
}

func (s *ManualScheduler) Stop() { s.CancelAll() }

func (s *ManualScheduler) add(delay time.Duration, repeated bool, f func()) int64 {
	if repeated && delay <= 0 {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &manualEntry{id: s.newID(), at: s.now.Add(delay), interval: delay, repeated: repeated, task: f}
	s.tasks[e.id] = e
	return e.id
}
