package engine

import (
	"context"
	"time"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
)

// StartRequest 开局请求
type StartRequest struct {
	RequesterID   string       `json:"requester_id"`
	RequesterName string       `json:"requester_name"`
	Channel       string       `json:"channel"`
	Server        string       `json:"server"`
	Kind          session.Kind `json:"kind"`
	OpponentID    string       `json:"opponent_id,omitempty"`
	OpponentName  string       `json:"opponent_name,omitempty"`
	Bet           int64        `json:"bet"`
	Selection     string       `json:"selection,omitempty"`
	Mode          string       `json:"mode,omitempty"`
	WaitSeconds   int          `json:"wait_seconds,omitempty"`
}

// ActionEvent 点击某个选项
type ActionEvent struct {
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	ActionID  string `json:"action_id"`
	Channel   string `json:"channel"`
}

// Reply 同步返回给请求者的画面
type Reply struct {
	SessionKey string    `json:"session_key,omitempty"`
	LobbyID    string    `json:"lobby_id,omitempty"`
	View       game.View `json:"view"`
	Ephemeral  bool      `json:"ephemeral,omitempty"` // 只给请求者看
}

// Update 推送到频道的画面
type Update struct {
	Channel    string    `json:"channel"`
	SessionKey string    `json:"session_key,omitempty"`
	View       game.View `json:"view"`
	Final      bool      `json:"final,omitempty"` // 会话或大厅已结束
}

// Presenter 展示层适配，在渲染队列内按顺序调用
type Presenter interface {
	Update(ctx context.Context, u Update) error
}

// HistoryEntry 一次被接受的操作
type HistoryEntry struct {
	SessionKey string    `json:"session_key"`
	Kind       string    `json:"kind"`
	Channel    string    `json:"channel"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	Turn       int64     `json:"turn"`
	At         time.Time `json:"at"`
}

// History 操作流水
type History interface {
	Append(ctx context.Context, e HistoryEntry) error
}

type nopPresenter struct{}

func (nopPresenter) Update(context.Context, Update) error { return nil }
