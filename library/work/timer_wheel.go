package work

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultWheelTick = 100 * time.Millisecond // 时间轮默认精度
	defaultWheelSize = 128                    // 时间轮默认槽位数
)

// wheelEvery 周期触发，按上次计划时间推进，防止漂移
type wheelEvery struct {
	interval time.Duration
	last     time.Time
}

func (p *wheelEvery) Next(t time.Time) time.Time {
	if p.last.IsZero() {
		p.last = t
	}
	next := p.last.Add(p.interval)
	for steps := 0; !next.After(t); steps++ {
		if steps > maxIntervalJumps {
			log.Warnf("[wheelScheduler] skipped too many steps: %d", steps)
			break
		}
		next = next.Add(p.interval)
	}
	p.last = next
	return next
}

// WheelSchedulerOption 时间轮选项
type WheelSchedulerOption func(*wheelScheduler)

func WithTick(d time.Duration) WheelSchedulerOption {
	return func(s *wheelScheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithWheelSize(size int64) WheelSchedulerOption {
	return func(s *wheelScheduler) {
		if size > 0 {
			s.wheelSize = size
		}
	}
}

func WithContext(ctx context.Context) WheelSchedulerOption {
	return func(s *wheelScheduler) { s.ctx = ctx }
}

func WithExecutor(exec Executor) WheelSchedulerOption {
	return func(s *wheelScheduler) { s.executor = exec }
}

type wheelEntry struct {
	timer     *timingwheel.Timer
	cancelled atomic.Bool
	repeated  bool
}

// wheelScheduler 基于分层时间轮，适合大量短周期的大厅倒计时
type wheelScheduler struct {
	schedulerBase
	tick      time.Duration
	wheelSize int64
	tw        *timingwheel.TimingWheel
	mu        sync.Mutex
	tasks     map[int64]*wheelEntry
	shutdown  atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	once      sync.Once
}

// NewWheelScheduler 创建时间轮调度器
func NewWheelScheduler(opts ...WheelSchedulerOption) Scheduler {
	s := &wheelScheduler{
		tick:      defaultWheelTick,
		wheelSize: defaultWheelSize,
		tasks:     make(map[int64]*wheelEntry),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		log.Warn("[wheelScheduler] no executor provided, tasks will run in their own goroutines")
	}

	s.ctx, s.cancel = context.WithCancel(s.ctx)
	s.tw = timingwheel.NewTimingWheel(s.tick, s.wheelSize)
	s.tw.Start()
	go func() {
		<-s.ctx.Done()
		s.Stop()
	}()
	return s
}

func (s *wheelScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *wheelScheduler) Monitor() Monitor {
	return Monitor{Len: s.Len(), Running: s.Running()}
}

func (s *wheelScheduler) Once(delay time.Duration, f func()) int64 {
	return s.schedule(delay, false, f)
}

func (s *wheelScheduler) Forever(interval time.Duration, f func()) int64 {
	return s.schedule(interval, true, f)
}

func (s *wheelScheduler) ForeverNow(interval time.Duration, f func()) int64 {
	s.executeAsync(f)
	return s.schedule(interval, true, f)
}

func (s *wheelScheduler) Cancel(taskID int64) {
	s.mu.Lock()
	e, ok := s.tasks[taskID]
	delete(s.tasks, taskID)
	s.mu.Unlock()
	if ok {
		s.stopEntry(e)
	}
}

func (s *wheelScheduler) CancelAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[int64]*wheelEntry)
	s.mu.Unlock()
	for _, e := range tasks {
		s.stopEntry(e)
	}
}

func (s *wheelScheduler) stopEntry(e *wheelEntry) {
	e.cancelled.Store(true)
	s.mu.Lock()
	t := e.timer
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

func (s *wheelScheduler) Stop() {
	s.once.Do(func() {
		s.shutdown.Store(true)
		s.cancel()
		s.CancelAll()
		s.tw.Stop()
		log.Info("[wheelScheduler] stopped")
	})
}

func (s *wheelScheduler) schedule(delay time.Duration, repeated bool, f func()) int64 {
	if s.shutdown.Load() {
		log.Warn("[wheelScheduler] shut down; task rejected")
		return -1
	}
	if repeated && delay <= 0 {
		log.Warnf("[wheelScheduler] invalid interval %v; task rejected", delay)
		return -1
	}

	id := s.newID()
	e := &wheelEntry{repeated: repeated}

	// 先登记再挂到时间轮，防止回调先于登记触发
	s.mu.Lock()
	s.tasks[id] = e
	s.mu.Unlock()

	fire := func() {
		if e.cancelled.Load() {
			return
		}
		if !repeated {
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
		}
		s.running.Add(1)
		s.executeAsync(func() {
			defer s.running.Add(-1)
			if e.cancelled.Load() {
				return
			}
			f()
		})
	}

	var t *timingwheel.Timer
	if repeated {
		t = s.tw.ScheduleFunc(&wheelEvery{interval: delay}, fire)
	} else {
		t = s.tw.AfterFunc(delay, fire)
	}
	s.mu.Lock()
	e.timer = t
	s.mu.Unlock()
	return id
}
