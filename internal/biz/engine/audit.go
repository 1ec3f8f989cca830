package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/log/file"
)

// Audit 对局流水，一个玩法一个文件
type Audit struct {
	dir  string
	mu   sync.Mutex
	logs map[session.Kind]*file.Log
}

// NewAudit dir 为空时不落盘
func NewAudit(dir string) *Audit {
	return &Audit{dir: dir, logs: make(map[session.Kind]*file.Log)}
}

func (a *Audit) write(kind session.Kind, msg string, args ...any) {
	if a == nil || a.dir == "" {
		return
	}
	a.mu.Lock()
	l, ok := a.logs[kind]
	if !ok {
		l = file.NewFileLog(filepath.Join(a.dir, string(kind)+".log"))
		a.logs[kind] = l
	}
	a.mu.Unlock()
	l.Printf(msg, args...)
}

func (a *Audit) begin(s *session.Session) {
	logs := []string{fmt.Sprintf("[开局] %s mode=%q", s.Desc(), s.Mode)}
	for _, p := range s.Participants {
		logs = append(logs, fmt.Sprintf("玩家:%s(%s) 押注[%d]", p.ID, p.Name, s.Bets[p.ID]))
	}
	a.write(s.Kind, strings.Join(logs, "\r\n"))
}

func (a *Audit) action(s *session.Session, actor, action string, auto bool) {
	a.write(s.Kind, "[玩家操作] %s actor=%s action=%s timeout=%v", s.Key, actor, action, auto)
}

func (a *Audit) settle(s *session.Session, lines []game.SettleLine, o game.Outcome) {
	logs := []string{fmt.Sprintf("[结算] %s winner=%q score=%q", s.Desc(), o.WinnerID, o.FinalScore)}
	for _, l := range lines {
		logs = append(logs, fmt.Sprintf("<%s> stake=%d payout=%d net=%d result=%s %s",
			l.ParticipantID, l.Stake, l.Payout, l.Net, l.Result, l.Note))
	}
	a.write(s.Kind, strings.Join(logs, "\r\n"))
}

func (a *Audit) abort(s *session.Session, reason string) {
	a.write(s.Kind, "[退款关闭] %s reason=%s pot=%d", s.Desc(), reason, s.Pot())
}

// Close 刷盘
func (a *Audit) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for kind, l := range a.logs {
		if err := l.Close(); err != nil {
			log.Warnf("close audit log failed. kind=%s err=%v", kind, err)
		}
	}
	a.logs = make(map[session.Kind]*file.Log)
}
