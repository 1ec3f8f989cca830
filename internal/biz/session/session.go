package session

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/yola1107/parlor/pkg/codes"
)

// Kind 游戏类型
type Kind string

// Phase 会话阶段，只能前进
type Phase int32

const (
	PhaseWaiting Phase = iota
	PhaseBetting
	PhaseActive
	PhaseResolving
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "Waiting"
	case PhaseBetting:
		return "Betting"
	case PhaseActive:
		return "Active"
	case PhaseResolving:
		return "Resolving"
	case PhaseEnded:
		return "Ended"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Participant 参与者
type Participant struct {
	ID       string
	Name     string
	JoinedAt time.Time
}

// Session 一局游戏。只允许在引擎串行队列内读写
type Session struct {
	Key          string
	Kind         Kind
	Phase        Phase
	Channel      string
	Server       string
	Mode         string
	Participants []*Participant
	CreatedAt    time.Time
	Bets         map[string]int64 // 已扣款的押注
	State        any              // 游戏私有状态
	Turn         int64            // 每次成功操作 +1，定时器用它判断回合是否已过期

	settled bool
}

// New 创建会话，初始阶段为 Waiting
func New(key string, kind Kind, channel string, now time.Time) *Session {
	return &Session{
		Key:       key,
		Kind:      kind,
		Phase:     PhaseWaiting,
		Channel:   channel,
		CreatedAt: now,
		Bets:      make(map[string]int64),
	}
}

// Join 追加参与者，重复加入忽略
func (s *Session) Join(id, name string, now time.Time) *Participant {
	if p := s.Participant(id); p != nil {
		return p
	}
	p := &Participant{ID: id, Name: name, JoinedAt: now}
	s.Participants = append(s.Participants, p)
	return p
}

func (s *Session) Participant(id string) *Participant {
	p, _ := lo.Find(s.Participants, func(p *Participant) bool { return p.ID == id })
	return p
}

func (s *Session) Has(id string) bool { return s.Participant(id) != nil }

// IDs 按加入顺序返回参与者ID
func (s *Session) IDs() []string {
	return lo.Map(s.Participants, func(p *Participant, _ int) string { return p.ID })
}

// Name 参与者昵称，找不到时返回ID
func (s *Session) Name(id string) string {
	if p := s.Participant(id); p != nil && p.Name != "" {
		return p.Name
	}
	return id
}

// Pot 已扣款总额
func (s *Session) Pot() int64 {
	return lo.Sum(lo.Values(s.Bets))
}

// Advance 阶段前进，禁止回退
func (s *Session) Advance(to Phase) error {
	if to < s.Phase {
		return fmt.Errorf("%w: %s -> %s", codes.ErrPhaseRegression, s.Phase, to)
	}
	s.Phase = to
	return nil
}

// Restart 显式重开，回到 Betting 并清空押注与结算标记
func (s *Session) Restart() {
	s.Phase = PhaseBetting
	s.Bets = make(map[string]int64)
	s.settled = false
}

// MarkSettled 只有第一次调用返回 true
func (s *Session) MarkSettled() bool {
	if s.settled {
		return false
	}
	s.settled = true
	return true
}

func (s *Session) Settled() bool { return s.settled }

// Terminal 已进入结算或结束
func (s *Session) Terminal() bool {
	return s.settled || s.Phase >= PhaseEnded
}

func (s *Session) Desc() string {
	return fmt.Sprintf("%s[%s] ch=%s phase=%s players=%d turn=%d", s.Kind, s.Key, s.Channel, s.Phase, len(s.Participants), s.Turn)
}
