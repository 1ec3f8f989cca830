package game

import (
	"context"
	"slices"
	"time"

	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/xrand"
	"github.com/yola1107/parlor/pkg/codes"
)

// Routing 操作ID定位会话的方式
type Routing int

const (
	RouteByKey         Routing = iota // <kind>:<key>:<action>
	RouteByChannel                    // <kind>:<action>，频道内唯一
	RouteByParticipant                // <kind>:<action>，按操作者查找
)

// StartMode 开局方式
type StartMode int

const (
	StartDirect    StartMode = iota // 直接开局
	StartLobby                      // 大厅倒计时凑人
	StartChallenge                  // 指定对手，对方接受后开局
)

// Rules 开局规则
type Rules struct {
	Start       StartMode
	MinPlayers  int
	MaxPlayers  int
	MinBet      int64
	MaxBet      int64
	BetRequired bool
	Selections  []string // 押注时可选的选项，为空表示无需选择
}

// CheckBet 校验金额与选项，不扣款
func (r Rules) CheckBet(amount int64, selection string) error {
	switch {
	case amount < 0:
		return codes.Validation("bet can't be negative")
	case r.BetRequired && amount == 0:
		return codes.Validation("a bet is required")
	case amount > 0 && amount < r.MinBet:
		return codes.Validation("minimum bet is %d", r.MinBet)
	case r.MaxBet > 0 && amount > r.MaxBet:
		return codes.Validation("maximum bet is %d", r.MaxBet)
	case len(r.Selections) > 0 && !slices.Contains(r.Selections, selection):
		return codes.Validation("choose one of %v", r.Selections)
	}
	return nil
}

// Entry 开局时的参与者与押注（已扣款）
type Entry struct {
	ParticipantID string
	Name          string
	Amount        int64
	Selection     string
}

// Runtime 引擎提供给玩法的能力，全部在串行队列内调用
type Runtime interface {
	Now() time.Time
	Rand() xrand.Source
	// After d 后在队列内执行 fn，届时会话已被移除或替换则跳过
	After(s *session.Session, d time.Duration, fn func()) int64
	Cancel(taskID int64)
	// Render 推送当前画面
	Render(s *session.Session)
	// Complete 收尾动画结束，进入结算
	Complete(s *session.Session)
	// Debit 局内追加扣款（加倍、买入）
	Debit(s *session.Session, participantID string, amount int64, reason string) error
}

// Definition 一种游戏的规则
type Definition interface {
	Kind() session.Kind
	Title() string
	Routing() Routing
	Rules(mode string) Rules
	// Setup 初始化局内状态，调用时会话已是 Active
	Setup(rt Runtime, s *session.Session, entries []Entry) error
	LegalActions(s *session.Session, actor string) []Choice
	// ApplyAction 只在校验通过后修改状态
	ApplyAction(rt Runtime, s *session.Session, actor, action string) error
	IsTerminal(s *session.Session) bool
	NextActor(s *session.Session) (string, bool)
	// Resolve 无人可操作时的收尾（庄家补牌、转盘），最终必须调用 rt.Complete
	Resolve(rt Runtime, s *session.Session)
	Render(s *session.Session) View
	Settle(s *session.Session) []SettleLine
	Outcome(s *session.Session) Outcome
}

// Timed 回合超时自动操作
type Timed interface {
	// TurnTimeout 为 0 时使用引擎默认值
	TurnTimeout() time.Duration
	AutoAction(s *session.Session, actor string) string
}

// ActHand 查看自己手牌的操作，由引擎统一处理，不计回合
const ActHand = "hand"

// Private 有暗牌的玩法：频道画面不带手牌，本人通过 ActHand 私下查看并出牌
type Private interface {
	PrivateView(s *session.Session, actor string) View
}

// Record 持久化记录
type Record struct {
	Key           string
	Kind          string
	ParticipantID string
	Channel       string
	Server        string
	Data          []byte
	UpdatedAt     time.Time
}

// Persistent 可恢复的玩法，每次变更后写库，启动时加载
type Persistent interface {
	Snapshot(s *session.Session) ([]byte, error)
	Restore(rec Record, now time.Time) (*session.Session, error)
}

// SessionRepo 可恢复会话的存储
type SessionRepo interface {
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key string) error
	LoadAll(ctx context.Context, kind string) ([]Record, error)
}

// Outcome 对局结果
type Outcome struct {
	ID              string    `json:"id"`
	Server          string    `json:"server"`
	Channel         string    `json:"channel"`
	Kind            string    `json:"kind"`
	Mode            string    `json:"mode"`
	Participants    []string  `json:"participants"`
	WinnerID        string    `json:"winner_id,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`
	FinalScore      string    `json:"final_score"`
	EndedAt         time.Time `json:"ended_at"`
}

// Recorder 结果落地
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}
