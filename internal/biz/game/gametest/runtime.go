// Package gametest 玩法单测用的假运行时
package gametest

import (
	"time"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/xrand"
)

type pending struct {
	id int64
	s  *session.Session
	fn func()
}

// Runtime 定时回调不自动执行，调用 Flush 才按注册顺序跑完
type Runtime struct {
	Clock     time.Time
	Src       xrand.Source
	Renders   int
	Completed int
	Debits    map[string]int64
	DebitErr  error

	nextID  int64
	pending []pending
}

var _ game.Runtime = (*Runtime)(nil)

func New(src xrand.Source) *Runtime {
	return &Runtime{
		Clock:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Src:    src,
		Debits: map[string]int64{},
	}
}

func (r *Runtime) Now() time.Time     { return r.Clock }
func (r *Runtime) Rand() xrand.Source { return r.Src }

func (r *Runtime) After(s *session.Session, d time.Duration, fn func()) int64 {
	r.nextID++
	r.pending = append(r.pending, pending{id: r.nextID, s: s, fn: fn})
	return r.nextID
}

func (r *Runtime) Cancel(id int64) {
	for i, p := range r.pending {
		if p.id == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

func (r *Runtime) Render(*session.Session) { r.Renders++ }

func (r *Runtime) Complete(*session.Session) { r.Completed++ }

func (r *Runtime) Debit(s *session.Session, id string, amount int64, _ string) error {
	if r.DebitErr != nil {
		return r.DebitErr
	}
	r.Debits[id] += amount
	return nil
}

// Pending 尚未执行的定时回调数
func (r *Runtime) Pending() int { return len(r.pending) }

// Flush 执行所有定时回调，包括执行过程中新注册的
func (r *Runtime) Flush() {
	for len(r.pending) > 0 {
		p := r.pending[0]
		r.pending = r.pending[1:]
		p.fn()
	}
}

// NewSession 按 entries 组装一个 Active 会话
func NewSession(kind session.Kind, entries ...game.Entry) *session.Session {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := session.New("test", kind, "chan", now)
	for _, e := range entries {
		s.Join(e.ParticipantID, e.Name, now)
		s.Bets[e.ParticipantID] = e.Amount
	}
	s.Phase = session.PhaseActive
	return s
}

// Entries 快捷构造 entries: id, amount, id, amount...
func Entries(pairs ...any) []game.Entry {
	var out []game.Entry
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, game.Entry{ParticipantID: pairs[i].(string), Name: pairs[i].(string), Amount: int64(pairs[i+1].(int))})
	}
	return out
}
