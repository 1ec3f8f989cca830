package settle

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/work"
	"github.com/yola1107/parlor/pkg/codes"
)

// Result 一次结算的产出
type Result struct {
	Lines   []game.SettleLine
	Outcome game.Outcome
}

// Credited 实际入账总额
func (r Result) Credited() int64 {
	return lo.SumBy(r.Lines, func(l game.SettleLine) int64 { return l.Payout })
}

// Settler 结算。先标记终局再入账，账本调用交给 IO 执行器
type Settler struct {
	ledger    economy.Gateway
	recorders []game.Recorder
	io        work.Executor
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Settler)

// WithRecorder 对局结果落地，可多次调用
func WithRecorder(r game.Recorder) Option {
	return func(s *Settler) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Settler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Settler) { s.now = now }
}

// New io 为空时在调用方协程同步执行
func New(ledger economy.Gateway, io work.Executor, opts ...Option) *Settler {
	s := &Settler{ledger: ledger, io: io, timeout: 5 * time.Second, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Settle 只在串行队列内调用；同一会话第二次调用返回 false 且不产生任何入账
func (st *Settler) Settle(s *session.Session, def game.Definition) (Result, bool) {
	if !s.MarkSettled() {
		log.Warnf("duplicate settlement ignored. %s", s.Desc())
		return Result{}, false
	}
	if err := s.Advance(session.PhaseEnded); err != nil {
		log.Errorf("settle advance failed. %s err=%v", s.Desc(), err)
	}

	now := st.now()
	o := def.Outcome(s)
	o.ID = uuid.NewString()
	o.Server = s.Server
	o.Channel = s.Channel
	o.Kind = string(s.Kind)
	o.Mode = s.Mode
	o.Participants = s.IDs()
	o.DurationSeconds = int64(now.Sub(s.CreatedAt) / time.Second)
	o.EndedAt = now
	res := Result{Lines: def.Settle(s), Outcome: o}

	st.post(func() {
		for _, l := range res.Lines {
			st.credit(s, l.ParticipantID, l.Payout, economy.ReasonPayout)
			if l.Net < 0 {
				st.recordLoss(s, l.ParticipantID)
			}
		}
		for _, r := range st.recorders {
			st.record(s, r, res.Outcome)
		}
	})
	return res, true
}

// Abort 未正常结束的会话全额退款，不记录输赢
func (st *Settler) Abort(s *session.Session, reason string) ([]game.SettleLine, bool) {
	if !s.MarkSettled() {
		return nil, false
	}
	if err := s.Advance(session.PhaseEnded); err != nil {
		log.Errorf("abort advance failed. %s err=%v", s.Desc(), err)
	}
	lines := game.RefundAll(s.IDs(), s.Bets)
	log.Infof("session aborted. %s reason=%s", s.Desc(), reason)
	st.post(func() {
		for _, l := range lines {
			st.credit(s, l.ParticipantID, l.Payout, economy.ReasonRefund)
		}
	})
	return lines, true
}

func (st *Settler) post(job func()) {
	if st.io == nil {
		job()
		return
	}
	st.io.Post(job)
}

// credit 入账失败不能重试结算，只能记录人工对账
func (st *Settler) credit(s *session.Session, id string, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), st.timeout)
	defer cancel()
	if _, err := st.ledger.Credit(ctx, id, amount, reason); err != nil {
		log.Errorf("%s: reconcile manually. %s id=%s amount=%d reason=%s err=%v",
			codes.ReasonSettlement, s.Desc(), id, amount, reason, err)
	}
}

func (st *Settler) record(s *session.Session, r game.Recorder, o game.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), st.timeout)
	defer cancel()
	if err := r.Record(ctx, o); err != nil {
		log.Warnf("record outcome failed. %s err=%v", s.Desc(), err)
	}
}

func (st *Settler) recordLoss(s *session.Session, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), st.timeout)
	defer cancel()
	if res, err := st.ledger.RecordLoss(ctx, id, string(s.Kind)); err != nil {
		log.Warnf("record loss failed. id=%s err=%v", id, err)
	} else if res.ShieldUsed {
		log.Infof("loss shield used. id=%s left=%d", id, res.Shields)
	}
}
