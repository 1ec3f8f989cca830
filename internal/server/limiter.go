package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type actorLimit struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter 每个玩家一个令牌桶，长时间不活跃的回收
type limiter struct {
	mu     sync.Mutex
	every  rate.Limit
	burst  int
	idle   time.Duration
	actors map[string]*actorLimit
	now    func() time.Time
}

func newLimiter(perSec float64, burst int) *limiter {
	return &limiter{
		every:  rate.Limit(perSec),
		burst:  burst,
		idle:   10 * time.Minute,
		actors: make(map[string]*actorLimit),
		now:    time.Now,
	}
}

func (l *limiter) allow(actor string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	a, ok := l.actors[actor]
	if !ok {
		a = &actorLimit{lim: rate.NewLimiter(l.every, l.burst)}
		l.actors[actor] = a
	}
	a.seen = now
	return a.lim.AllowN(now, 1)
}

// gc 清理空闲桶，返回清理数量
func (l *limiter) gc() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for id, a := range l.actors {
		if now.Sub(a.seen) > l.idle {
			delete(l.actors, id)
			n++
		}
	}
	return n
}
