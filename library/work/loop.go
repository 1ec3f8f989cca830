package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/parlor/library/xgo"
)

/*
	串行任务队列: 单协程按投递顺序执行，所有会话状态只在这里被修改
*/

// ErrLoopStopped 队列已停止
var ErrLoopStopped = errors.New("loop stopped")

// Loop 串行执行接口
type Loop interface {
	Start()
	Stop()
	Pending() int
	Post(job func())
	PostAndWait(ctx context.Context, job func() (any, error)) (any, error)
}

type asyncResult struct {
	data any
	err  error
}

// serialLoop 无界队列，Post 永不阻塞，定时器回调在队列内再次投递也不会死锁
type serialLoop struct {
	mu      sync.Mutex
	jobs    []func()
	signal  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

// NewSerialLoop 创建串行队列
func NewSerialLoop() Loop {
	return &serialLoop{
		jobs:   make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (l *serialLoop) Start() {
	if !l.started.CompareAndSwap(false, true) {
		log.Warnf("serial loop already started.")
		return
	}
	l.wg.Add(1)
	go l.run()
	log.Infof("serial loop start ..")
}

func (l *serialLoop) Stop() {
	if !l.stopped.CompareAndSwap(false, true) {
		return
	}
	close(l.done)
	l.wg.Wait()
	log.Infof("serial loop stopped. [dropped:%d]", l.Pending())
}

func (l *serialLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

func (l *serialLoop) Post(job func()) {
	if job == nil {
		return
	}
	if l.stopped.Load() {
		log.Warnf("serial loop stopped, job dropped")
		return
	}
	l.mu.Lock()
	l.jobs = append(l.jobs, job)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// PostAndWait 投递并等待结果。禁止在队列协程内部调用
func (l *serialLoop) PostAndWait(ctx context.Context, job func() (any, error)) (any, error) {
	if l.stopped.Load() {
		return nil, ErrLoopStopped
	}
	ch := make(chan asyncResult, 1)
	l.Post(func() {
		if err := ctx.Err(); err != nil {
			ch <- asyncResult{err: fmt.Errorf("canceled: %w", err)}
			return
		}
		ch <- invoke(job)
	})

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("canceled: %w", ctx.Err())
	}
}

func (l *serialLoop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case <-l.signal:
			for {
				job := l.pop()
				if job == nil {
					break
				}
				exec(job)
				if l.stopped.Load() {
					return
				}
			}
		}
	}
}

func (l *serialLoop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.jobs) == 0 {
		return nil
	}
	job := l.jobs[0]
	l.jobs[0] = nil
	l.jobs = l.jobs[1:]
	return job
}

func exec(job func()) {
	defer xgo.RecoverFromError(nil)
	job()
}

func invoke(job func() (any, error)) (res asyncResult) {
	defer xgo.RecoverFromError(func(e any) {
		res = asyncResult{err: fmt.Errorf("panic: %v", e)}
	})
	data, err := job()
	return asyncResult{data: data, err: err}
}

// inlineLoop 在调用方协程同步执行，执行期间的再次投递排到当前任务之后。单测使用
type inlineLoop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewInlineLoop 同步执行的 Loop
func NewInlineLoop() Loop {
	return &inlineLoop{}
}

func (l *inlineLoop) Start() {}
func (l *inlineLoop) Stop()  {}

func (l *inlineLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *inlineLoop) Post(job func()) {
	if job == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, job)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		exec(next)
	}
}

func (l *inlineLoop) PostAndWait(ctx context.Context, job func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("canceled: %w", err)
	}
	var res asyncResult
	l.Post(func() { res = invoke(job) })
	return res.data, res.err
}
