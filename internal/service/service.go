package service

import (
	"context"
	"errors"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewParlor, wire.Bind(new(Engine), new(*engine.Engine)))

// Engine 服务层依赖的引擎能力
type Engine interface {
	Start(ctx context.Context, req engine.StartRequest) (engine.Reply, error)
	Act(ctx context.Context, ev engine.ActionEvent) (engine.Reply, error)
	View(ctx context.Context, key string) (engine.Reply, error)
	Snapshot(ctx context.Context, channel string) ([]engine.Update, error)
	Stats(ctx context.Context) (engine.Stats, error)
	Kinds() []session.Kind
	Title(kind session.Kind) string
}

// Checker 外部依赖的健康检查
type Checker func(ctx context.Context) error

// GameInfo 可开的玩法
type GameInfo struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
}

// Health 健康检查结果
type Health struct {
	OK     bool         `json:"ok"`
	Error  string       `json:"error,omitempty"`
	Engine engine.Stats `json:"engine"`
}

// Parlor 入口层: 参数整理、错误转成给玩家看的提示
type Parlor struct {
	eng    Engine
	checks []Checker
}

func NewParlor(eng Engine, checks []Checker) *Parlor {
	return &Parlor{eng: eng, checks: checks}
}

func (p *Parlor) Start(ctx context.Context, req engine.StartRequest) (engine.Reply, error) {
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	req.Channel = strings.TrimSpace(req.Channel)
	req.Kind = session.Kind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	req.RequesterName = displayName(req.RequesterName, req.RequesterID)
	req.OpponentID = strings.TrimSpace(req.OpponentID)
	if req.OpponentID != "" {
		req.OpponentName = displayName(req.OpponentName, req.OpponentID)
	}
	switch {
	case req.RequesterID == "":
		return engine.Reply{}, codes.Validation("requester_id is required")
	case req.Channel == "":
		return engine.Reply{}, codes.Validation("channel is required")
	case req.Kind == "":
		return engine.Reply{}, codes.Validation("kind is required")
	}
	r, err := p.eng.Start(ctx, req)
	if err != nil {
		return engine.Reply{}, p.fail("start", req.RequesterID, err)
	}
	return r, nil
}

func (p *Parlor) Act(ctx context.Context, ev engine.ActionEvent) (engine.Reply, error) {
	ev.ActorID = strings.TrimSpace(ev.ActorID)
	ev.Channel = strings.TrimSpace(ev.Channel)
	ev.ActorName = displayName(ev.ActorName, ev.ActorID)
	switch {
	case ev.ActorID == "":
		return engine.Reply{}, codes.Validation("actor_id is required")
	case ev.ActionID == "":
		return engine.Reply{}, codes.Validation("action_id is required")
	}
	r, err := p.eng.Act(ctx, ev)
	if err != nil {
		return engine.Reply{}, p.fail("act", ev.ActorID, err)
	}
	return r, nil
}

func (p *Parlor) Session(ctx context.Context, key string) (engine.Reply, error) {
	r, err := p.eng.View(ctx, key)
	if err != nil {
		return engine.Reply{}, p.fail("view", "", err)
	}
	return r, nil
}

// Feed 频道当前画面，订阅推送前先发一次
func (p *Parlor) Feed(ctx context.Context, channel string) ([]engine.Update, error) {
	us, err := p.eng.Snapshot(ctx, channel)
	if err != nil {
		return nil, p.fail("feed", "", err)
	}
	return us, nil
}

func (p *Parlor) Games() []GameInfo {
	return lo.Map(p.eng.Kinds(), func(k session.Kind, _ int) GameInfo {
		return GameInfo{Kind: string(k), Title: p.eng.Title(k)}
	})
}

// Health 依赖检查并发执行，任一失败即不健康
func (p *Parlor) Health(ctx context.Context) Health {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range p.checks {
		g.Go(func() error { return c(gctx) })
	}
	var h Health
	g.Go(func() (err error) {
		h.Engine, err = p.eng.Stats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.Error = err.Error()
		return h
	}
	h.OK = true
	return h
}

// fail 用户操作类错误原样返回，其余记日志后换成通用提示
func (p *Parlor) fail(op, actor string, err error) error {
	if codes.IsUserFacing(err) {
		log.Debugf("%s rejected. actor=%s reason=%s", op, actor, kerrors.Reason(err))
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Warnf("%s timed out. actor=%s err=%v", op, actor, err)
	} else {
		log.Errorf("%s failed. actor=%s err=%v", op, actor, err)
	}
	return codes.ErrInternal
}

// Message 给玩家看的一句话
func Message(err error) string {
	if err == nil {
		return ""
	}
	return kerrors.FromError(err).Message
}

func displayName(name, id string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return id
}
