package work

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

/*
	串行队列 + 定时器 + IO 协程池
*/

const (
	SchedulerHeap  = "heap"
	SchedulerWheel = "wheel"

	defaultPoolSize = 100 // 默认 IO 协程池大小
)

// Options WorkStore 构造参数
type Options struct {
	Scheduler string        // heap | wheel
	Tick      time.Duration // 时间轮精度
	WheelSize int64         // 时间轮槽位
	PoolSize  int           // IO 协程池大小
}

// WorkStore 引擎运行时: 定时器回调都投递到 Loop
type WorkStore struct {
	Loop  Loop
	Timer Scheduler
	IO    Pool
}

// NewWorkStore 按配置组装
func NewWorkStore(ctx context.Context, opts Options) *WorkStore {
	loop := NewSerialLoop()

	var timer Scheduler
	switch opts.Scheduler {
	case SchedulerWheel:
		timer = NewWheelScheduler(
			WithContext(ctx),
			WithExecutor(loop),
			WithTick(opts.Tick),
			WithWheelSize(opts.WheelSize),
		)
	default:
		timer = NewHeapScheduler(WithHeapContext(ctx), WithHeapExecutor(loop))
	}

	size := opts.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	return &WorkStore{
		Loop:  loop,
		Timer: timer,
		IO:    NewAntsPool(size),
	}
}

func (w *WorkStore) Start() error {
	w.Loop.Start()
	if err := w.IO.Start(); err != nil {
		w.Loop.Stop()
		return err
	}
	log.Infof("work store started. %+v", w.Timer.Monitor())
	return nil
}

// Stop 先停定时器，再停队列，最后等 IO 收尾
func (w *WorkStore) Stop() {
	w.Timer.Stop()
	w.Loop.Stop()
	w.IO.Stop()
}
