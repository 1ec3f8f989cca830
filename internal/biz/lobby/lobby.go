package lobby

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
)

// Lobby 开局前的报名窗口，每个频道同时只有一个
type Lobby struct {
	ID        string
	Channel   string
	Server    string
	Kind      session.Kind
	Title     string
	Mode      string
	CreatorID string
	Wait      time.Duration
	StartedAt time.Time
	Rules     game.Rules
	Entries   []game.Entry

	ticker    int64 // 1Hz 倒计时任务
	lastShown int   // 上次推送时的剩余秒数
}

func (l *Lobby) Has(id string) bool {
	return lo.ContainsBy(l.Entries, func(e game.Entry) bool { return e.ParticipantID == id })
}

func (l *Lobby) Full() bool {
	return l.Rules.MaxPlayers > 0 && len(l.Entries) >= l.Rules.MaxPlayers
}

// Quorum 人数达到开局下限
func (l *Lobby) Quorum() bool { return len(l.Entries) >= max(l.Rules.MinPlayers, 1) }

// Remaining max(0, wait - elapsed)
func (l *Lobby) Remaining(now time.Time) time.Duration {
	return max(l.Wait-now.Sub(l.StartedAt), 0)
}

// Total 已扣款总额
func (l *Lobby) Total() int64 {
	return lo.SumBy(l.Entries, func(e game.Entry) int64 { return e.Amount })
}

func (l *Lobby) Desc() string {
	return fmt.Sprintf("lobby[%s] %s ch=%s entries=%d wait=%s", l.ID, l.Kind, l.Channel, len(l.Entries), l.Wait)
}

// View 大厅画面，操作ID均为 lobby:*
func (l *Lobby) View(now time.Time) game.View {
	v := game.View{Title: l.Title + " lobby"}
	secs := int(l.Remaining(now).Round(time.Second) / time.Second)
	v.Body = fmt.Sprintf("Starting in %ds (%d/%d players, need %d)", secs, len(l.Entries), l.Rules.MaxPlayers, max(l.Rules.MinPlayers, 1))
	for _, e := range l.Entries {
		switch {
		case e.Selection != "":
			v.AddField(e.Name, "%d on %s", e.Amount, e.Selection)
		case e.Amount > 0:
			v.AddField(e.Name, "%d", e.Amount)
		default:
			v.AddField(e.Name, "joined")
		}
	}
	if total := l.Total(); total > 0 {
		v.Footer = "Total staked: " + strconv.FormatInt(total, 10)
	}
	v.Choices = []game.Choice{
		{ID: "lobby:join", Label: "Join"},
		{ID: "lobby:start", Label: "Start now"},
		{ID: "lobby:cancel", Label: "Cancel"},
	}
	return v
}

// Prompt 未带金额的报名弹出的临时下注选项
type Prompt struct {
	Channel       string
	ParticipantID string
	Selection     string
	Presets       []int64
	CreatedAt     time.Time
}

func (p *Prompt) View() game.View {
	v := game.View{Title: "Choose your bet"}
	v.Choices = lo.Map(p.Presets, func(amt int64, _ int) game.Choice {
		id := "lobby:bet:" + strconv.FormatInt(amt, 10)
		if p.Selection != "" {
			id += ":" + p.Selection
		}
		return game.Choice{ID: id, Label: strconv.FormatInt(amt, 10)}
	})
	return v
}
