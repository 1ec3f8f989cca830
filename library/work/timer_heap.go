package work

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/parlor/library/xgo"
)

// heapEntry 堆调度器任务
type heapEntry struct {
	id        int64
	execAt    time.Time
	interval  time.Duration
	repeated  bool
	cancelled atomic.Bool
	task      func()
	index     int // 堆索引，用于删除
}

// entryHeap 按 execAt 排序的小顶堆
type entryHeap []*heapEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].execAt.Before(h[j].execAt) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*heapEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// HeapSchedulerOption 堆调度器选项
type HeapSchedulerOption func(*heapScheduler)

// WithHeapExecutor 设置执行器
func WithHeapExecutor(exec Executor) HeapSchedulerOption {
	return func(s *heapScheduler) { s.executor = exec }
}

// WithHeapContext 设置上下文，取消后调度器退出
func WithHeapContext(ctx context.Context) HeapSchedulerOption {
	return func(s *heapScheduler) { s.ctx = ctx }
}

// heapScheduler 最小堆 + 单个复用 timer
type heapScheduler struct {
	schedulerBase
	mu       sync.Mutex
	heap     entryHeap
	tasks    map[int64]*heapEntry
	wakeup   chan struct{}
	shutdown atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewHeapScheduler 创建基于最小堆的调度器
func NewHeapScheduler(opts ...HeapSchedulerOption) Scheduler {
	s := &heapScheduler{
		tasks:  make(map[int64]*heapEntry),
		wakeup: make(chan struct{}, 1),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	go s.loop()
	return s
}

func (s *heapScheduler) loop() {
	defer xgo.RecoverFromError(func(e any) { go s.loop() })

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		for _, e := range s.popExpired(time.Now()) {
			s.fire(e)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextWait(time.Now()))

		select {
		case <-timer.C:
		case <-s.wakeup:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *heapScheduler) fire(e *heapEntry) {
	task := e.task
	if task == nil {
		return
	}
	s.running.Add(1)
	s.wg.Add(1)
	s.executeAsync(func() {
		defer func() {
			s.running.Add(-1)
			s.wg.Done()
		}()
		// 投递后被取消的任务不再执行
		if e.cancelled.Load() {
			return
		}
		task()
	})
}

// popExpired 弹出到期任务，周期任务重新入堆
func (s *heapScheduler) popExpired(now time.Time) []*heapEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*heapEntry
	for len(s.heap) > 0 && !s.heap[0].execAt.After(now) {
		e := heap.Pop(&s.heap).(*heapEntry)
		if e.cancelled.Load() {
			continue
		}
		expired = append(expired, e)
		if !e.repeated {
			delete(s.tasks, e.id)
			continue
		}
		steps := 0
		for e.execAt = e.execAt.Add(e.interval); !e.execAt.After(now); e.execAt = e.execAt.Add(e.interval) {
			if steps++; steps > maxIntervalJumps {
				log.Warnf("[heapScheduler] task %d skipped too many steps", e.id)
				break
			}
		}
		heap.Push(&s.heap, e)
	}
	return expired
}

func (s *heapScheduler) nextWait(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Hour
	}
	return max(s.heap[0].execAt.Sub(now), 0)
}

func (s *heapScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *heapScheduler) Monitor() Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Monitor{Capacity: cap(s.heap), Len: len(s.heap), Running: s.Running()}
}

func (s *heapScheduler) Once(delay time.Duration, f func()) int64 {
	return s.schedule(delay, false, f)
}

func (s *heapScheduler) Forever(interval time.Duration, f func()) int64 {
	return s.schedule(interval, true, f)
}

func (s *heapScheduler) ForeverNow(interval time.Duration, f func()) int64 {
	s.executeAsync(f)
	return s.schedule(interval, true, f)
}

func (s *heapScheduler) Cancel(taskID int64) {
	s.mu.Lock()
	e, ok := s.tasks[taskID]
	if ok {
		e.cancelled.Store(true)
		delete(s.tasks, taskID)
		if e.index >= 0 && e.index < len(s.heap) {
			heap.Remove(&s.heap, e.index)
		}
	}
	s.mu.Unlock()
	if ok {
		s.signalWakeup()
	}
}

func (s *heapScheduler) CancelAll() {
	s.mu.Lock()
	for _, e := range s.tasks {
		e.cancelled.Store(true)
	}
	s.heap = entryHeap{}
	s.tasks = make(map[int64]*heapEntry)
	s.mu.Unlock()
	s.signalWakeup()
}

func (s *heapScheduler) Stop() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.CancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		log.Warn("[heapScheduler] shutdown timed out, some tasks may still be running")
	}
}

func (s *heapScheduler) schedule(delay time.Duration, repeated bool, f func()) int64 {
	if s.shutdown.Load() || s.ctx.Err() != nil {
		log.Warn("[heapScheduler] shut down; task rejected")
		return -1
	}
	if repeated && delay <= 0 {
		log.Warnf("[heapScheduler] invalid interval %v; task rejected", delay)
		return -1
	}
	e := &heapEntry{
		id:       s.newID(),
		execAt:   time.Now().Add(delay),
		interval: delay,
		repeated: repeated,
		task:     f,
	}

	s.mu.Lock()
	earliest := len(s.heap) == 0 || e.execAt.Before(s.heap[0].execAt)
	s.tasks[e.id] = e
	heap.Push(&s.heap, e)
	s.mu.Unlock()

	// 只有新任务更早才唤醒
	if earliest {
		s.signalWakeup()
	}
	return e.id
}

func (s *heapScheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}
