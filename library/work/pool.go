package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/panjf2000/ants/v2"

	"github.com/yola1107/parlor/library/xgo"
)

// PoolStatus 协程池状态
type PoolStatus struct {
	Capacity int // 池最大容量
	Running  int // 当前运行中协程数
	Free     int // 空闲协程数
}

// Pool IO 协程池: 落库、消息投递、渲染推送等不能阻塞串行队列的工作
type Pool interface {
	Start() error
	Stop()
	Status() PoolStatus
	Post(job func())
	PostCtx(ctx context.Context, job func())
}

type PoolOption func(*antsPool)

// WithFallback 自定义任务提交失败处理策略
func WithFallback(fallback func(ctx context.Context, fn func())) PoolOption {
	return func(p *antsPool) { p.fallback = fallback }
}

// WithPoolOptions 自定义ants池选项
func WithPoolOptions(opts ...ants.Option) PoolOption {
	return func(p *antsPool) { p.poolOptions = append(p.poolOptions, opts...) }
}

type antsPool struct {
	mu          sync.RWMutex
	pool        *ants.Pool
	size        int
	fallback    func(context.Context, func())
	poolOptions []ants.Option
}

// NewAntsPool 创建协程池实例
func NewAntsPool(size int, opts ...PoolOption) Pool {
	p := &antsPool{
		size: size,
		fallback: func(ctx context.Context, fn func()) {
			xgo.SafeGo(func() { safeRun(ctx, fn) })
		},
		poolOptions: []ants.Option{
			ants.WithExpiryDuration(60 * time.Second), // 每60s清理一次闲置 worker
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *antsPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		log.Warnf("antsPool already started.")
		return nil
	}
	pool, err := ants.NewPool(p.size, p.poolOptions...)
	if err != nil {
		return fmt.Errorf("pool init failed: %w", err)
	}
	p.pool = pool
	log.Infof("antsPool start... [size:%d]", p.size)
	return nil
}

func (p *antsPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == nil {
		return
	}
	pool := p.pool
	p.pool = nil
	if err := pool.ReleaseTimeout(3 * time.Second); err != nil {
		log.Warnf("antsPool release timeout. running=%d err=%v", pool.Running(), err)
	}
	log.Infof("antsPool stopped")
}

func (p *antsPool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pool == nil {
		return PoolStatus{}
	}
	capacity, running := p.pool.Cap(), p.pool.Running()
	return PoolStatus{
		Capacity: capacity,
		Running:  running,
		Free:     max(capacity-running, 0),
	}
}

func (p *antsPool) Post(job func()) {
	p.PostCtx(context.Background(), job)
}

func (p *antsPool) PostCtx(ctx context.Context, job func()) {
	if ctx.Err() != nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pool == nil || p.pool.IsClosed() {
		p.triggerFallback(ctx, job, "pool not started or closed")
		return
	}
	if err := p.pool.Submit(func() { safeRun(ctx, job) }); err != nil {
		p.triggerFallback(ctx, job, err.Error())
	}
}

func (p *antsPool) triggerFallback(ctx context.Context, fn func(), reason string) {
	log.Warnf("antsPool fallback. reason=%s", reason)
	p.fallback(ctx, fn)
}

func safeRun(ctx context.Context, fn func()) {
	defer xgo.RecoverFromError(nil)
	if ctx.Err() == nil {
		fn()
	}
}

// inlinePool 在调用方协程同步执行。单测使用
type inlinePool struct{}

// NewInlinePool 同步执行的 Pool
func NewInlinePool() Pool { return inlinePool{} }

func (inlinePool) Start() error       { return nil }
func (inlinePool) Stop()              {}
func (inlinePool) Status() PoolStatus { return PoolStatus{} }
func (p inlinePool) Post(job func())  { p.PostCtx(context.Background(), job) }

func (inlinePool) PostCtx(ctx context.Context, job func()) {
	if job != nil {
		safeRun(ctx, job)
	}
}
