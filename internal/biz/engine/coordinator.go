package engine

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/xrand"
	"github.com/yola1107/parlor/pkg/codes"
)

/*
	回合推进: 校验 -> 执行 -> Turn+1 -> 存档 -> 终局结算 / 无人可动则收尾 / 重置回合计时
*/

func (e *Engine) start(ctx context.Context, req StartRequest) (Reply, error) {
	def, ok := e.router.Definition(req.Kind)
	if !ok {
		return Reply{}, codes.Validation("unknown game %q", req.Kind)
	}
	if req.RequesterID == "" || req.Channel == "" {
		return Reply{}, codes.Validation("requester and channel are required")
	}
	rules, err := e.rules(def, req.Mode)
	if err != nil {
		return Reply{}, err
	}
	switch rules.Start {
	case game.StartLobby:
		return e.openLobby(ctx, def, rules, req)
	case game.StartChallenge:
		return e.challenge(ctx, def, rules, req)
	default:
		return e.startDirect(ctx, def, rules, req)
	}
}

// ensureFree 频道级玩法同一频道只有一局，个人玩法同一玩家只有一局
func (e *Engine) ensureFree(def game.Definition, channel, actor string) error {
	switch def.Routing() {
	case game.RouteByChannel:
		if _, ok := e.store.FindByChannel(channel, def.Kind()); ok {
			return codes.Validation("a %s game is already running here", def.Title())
		}
		if l, ok := e.lobbies.Get(channel); ok && l.Kind == def.Kind() {
			return codes.ErrLobbyExists
		}
	case game.RouteByParticipant:
		if _, ok := e.store.FindByParticipant(actor, def.Kind()); ok {
			return codes.Validation("you already have a %s game running", def.Title())
		}
	}
	return nil
}

func (e *Engine) startDirect(ctx context.Context, def game.Definition, rules game.Rules, req StartRequest) (Reply, error) {
	if err := e.ensureFree(def, req.Channel, req.RequesterID); err != nil {
		return Reply{}, err
	}
	if err := rules.CheckBet(req.Bet, req.Selection); err != nil {
		return Reply{}, err
	}
	if err := e.debit(ctx, req.RequesterID, req.Bet, economy.ReasonBet); err != nil {
		return Reply{}, err
	}
	entry := game.Entry{ParticipantID: req.RequesterID, Name: req.RequesterName, Amount: req.Bet, Selection: req.Selection}
	s, err := e.newSession(ctx, def.Kind(), req.Channel, req.Server, req.Mode)
	if err != nil {
		e.refund(ctx, entry)
		return Reply{}, err
	}
	s.Join(req.RequesterID, req.RequesterName, e.now())
	s.Bets[req.RequesterID] = req.Bet
	if err := e.activate(ctx, s, def, []game.Entry{entry}); err != nil {
		return Reply{}, err
	}
	return e.reply(s, def), nil
}

// activate 进入 Active 并初始化，失败时全额退款
func (e *Engine) activate(ctx context.Context, s *session.Session, def game.Definition, entries []game.Entry) error {
	if err := s.Advance(session.PhaseActive); err != nil {
		e.abort(ctx, s, "setup failed")
		return err
	}
	if err := def.Setup(e.runtime(ctx), s, entries); err != nil {
		log.Warnf("session setup failed. %s err=%v", s.Desc(), err)
		e.abort(ctx, s, "setup failed")
		return err
	}
	e.metrics.sessionStarted(ctx, string(s.Kind))
	e.audit.begin(s)
	log.Infof("session started. %s pot=%d", s.Desc(), s.Pot())
	e.save(s, def)
	e.advance(ctx, s, def)
	return nil
}

func (e *Engine) act(ctx context.Context, ev ActionEvent) (Reply, error) {
	rt, err := e.router.Parse(ev.ActionID)
	if err != nil {
		return Reply{}, err
	}
	if rt.Lobby {
		return e.lobbyAction(ctx, ev, rt.Sub)
	}
	s, def, err := e.router.Lookup(e.store, rt, ev.ActorID, ev.Channel)
	if err != nil {
		return Reply{}, err
	}
	if rt.Sub == game.ActHand {
		return e.private(s, def, ev.ActorID)
	}
	if s.Phase == session.PhaseWaiting {
		err = e.respond(ctx, s, def, ev.ActorID, rt.Sub)
	} else {
		err = e.apply(ctx, s, def, ev.ActorID, rt.Sub, false)
	}
	if err != nil {
		return Reply{}, err
	}
	return e.reply(s, def), nil
}

// private 只回给本人的画面，不修改会话
func (e *Engine) private(s *session.Session, def game.Definition, actor string) (Reply, error) {
	p, ok := def.(game.Private)
	switch {
	case !ok:
		return Reply{}, codes.ErrIllegalAction
	case !s.Has(actor):
		return Reply{}, codes.Validation("you're not in this game")
	case s.Phase != session.PhaseActive || s.Terminal():
		return Reply{}, codes.ErrWrongPhase
	}
	v := p.PrivateView(s, actor)
	v.Choices = e.prefixed(s, v.Choices)
	return Reply{SessionKey: s.Key, View: v, Ephemeral: true}, nil
}

// apply 任何一项校验失败都不修改会话
func (e *Engine) apply(ctx context.Context, s *session.Session, def game.Definition, actor, action string, auto bool) error {
	if s.Phase != session.PhaseActive || s.Terminal() || def.IsTerminal(s) {
		return codes.ErrWrongPhase
	}
	if next, ok := def.NextActor(s); !ok || next != actor {
		return codes.ErrNotYourTurn
	}
	if !game.Contains(def.LegalActions(s, actor), action) {
		return codes.ErrIllegalAction
	}
	if err := def.ApplyAction(e.runtime(ctx), s, actor, action); err != nil {
		return err
	}
	s.Turn++
	e.metrics.actionAccepted(ctx, string(s.Kind))
	e.audit.action(s, actor, action, auto)
	e.appendHistory(s, actor, action)
	e.save(s, def)
	e.advance(ctx, s, def)
	return nil
}

func (e *Engine) advance(ctx context.Context, s *session.Session, def game.Definition) {
	if def.IsTerminal(s) {
		e.finish(ctx, s, def)
		return
	}
	if _, ok := def.NextActor(s); ok {
		e.armTurn(s, def)
		e.push(s, def)
		return
	}
	// 无人可操作，交给玩法收尾
	e.cancelTurn(s)
	if err := s.Advance(session.PhaseResolving); err != nil {
		log.Errorf("advance to resolving failed. %s err=%v", s.Desc(), err)
		return
	}
	e.push(s, def)
	def.Resolve(e.runtime(ctx), s)
}

// finish 结算并移除，重复调用无副作用
func (e *Engine) finish(ctx context.Context, s *session.Session, def game.Definition) {
	if !e.store.Alive(s) || s.Settled() {
		return
	}
	e.cancelTurn(s)
	if s.Phase < session.PhaseResolving {
		_ = s.Advance(session.PhaseResolving)
	}
	res, ok := e.settler.Settle(s, def)
	e.drop(ctx, s)
	if !ok {
		return
	}
	e.metrics.sessionSettled(ctx, string(s.Kind), res.Credited())
	e.audit.settle(s, res.Lines, res.Outcome)
	log.Infof("session settled. %s winner=%q credited=%d", s.Desc(), res.Outcome.WinnerID, res.Credited())
	e.emit(s, e.finalView(s, def, res.Lines, res.Outcome), true)
}

// abort 全额退款并移除
func (e *Engine) abort(ctx context.Context, s *session.Session, reason string) {
	lines, ok := e.settler.Abort(s, reason)
	e.drop(ctx, s)
	if !ok {
		return
	}
	e.metrics.sessionAborted(ctx, string(s.Kind), reason)
	e.audit.abort(s, reason)

	v := game.View{Title: e.Title(s.Kind), Body: "Game closed: " + reason + "."}
	for _, l := range lines {
		if l.Payout > 0 {
			v.AddField(s.Name(l.ParticipantID), "%d refunded", l.Payout)
		}
	}
	e.emit(s, v, true)
}

func (e *Engine) finalView(s *session.Session, def game.Definition, lines []game.SettleLine, o game.Outcome) game.View {
	v := def.Render(s)
	v.Choices = nil
	for _, l := range lines {
		v.AddField(s.Name(l.ParticipantID), "%s %+d", l.Result, l.Net)
	}
	v.Footer = "Game over"
	if o.FinalScore != "" {
		v.Footer += " · " + o.FinalScore
	}
	return v
}

// view 玩法画面，选项ID加上定位前缀
func (e *Engine) view(s *session.Session, def game.Definition) game.View {
	if s.State == nil || def == nil {
		return e.challengeView(s)
	}
	v := def.Render(s)
	v.Choices = e.prefixed(s, v.Choices)
	return v
}

func (e *Engine) prefixed(s *session.Session, choices []game.Choice) []game.Choice {
	return lo.Map(choices, func(c game.Choice, _ int) game.Choice {
		c.ID = e.router.ActionID(s, c.ID)
		return c
	})
}

func (e *Engine) push(s *session.Session, def game.Definition) {
	e.emit(s, e.view(s, def), false)
}

func (e *Engine) emit(s *session.Session, v game.View, final bool) {
	e.deliver(Update{Channel: s.Channel, SessionKey: s.Key, View: v, Final: final})
}

// deliver 推送在独立队列按顺序执行，不阻塞引擎
func (e *Engine) deliver(u Update) {
	e.render.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
		defer cancel()
		if err := e.presenter.Update(ctx, u); err != nil {
			log.Warnf("render failed. ch=%s key=%s err=%v", u.Channel, u.SessionKey, err)
		}
	})
}

func (e *Engine) appendHistory(s *session.Session, actor, action string) {
	if e.history == nil {
		return
	}
	entry := HistoryEntry{
		SessionKey: s.Key,
		Kind:       string(s.Kind),
		Channel:    s.Channel,
		ActorID:    actor,
		Action:     action,
		Turn:       s.Turn,
		At:         e.now(),
	}
	e.io.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
		defer cancel()
		if err := e.history.Append(ctx, entry); err != nil {
			log.Warnf("append history failed. key=%s err=%v", entry.SessionKey, err)
		}
	})
}

/*
	定时器: 回调在 loop 内执行，会话已被移除或替换时跳过
*/

func (e *Engine) after(s *session.Session, d time.Duration, fn func()) int64 {
	return e.timer.Once(d, func() {
		if !e.store.Alive(s) || s.Terminal() {
			return
		}
		fn()
	})
}

// armTurn 重置回合计时，超时后代当前玩家执行默认操作
func (e *Engine) armTurn(s *session.Session, def game.Definition) {
	e.cancelTurn(s)
	timed, ok := def.(game.Timed)
	if !ok {
		return
	}
	d := timed.TurnTimeout()
	if d <= 0 {
		d = e.cfg.TurnTimeout
	}
	actor, ok := def.NextActor(s)
	if !ok {
		return
	}

	turn := s.Turn
	var id int64
	id = e.after(s, d, func() {
		if e.turns[s.Key] == id {
			delete(e.turns, s.Key)
		}
		if s.Turn != turn || s.Phase != session.PhaseActive {
			return
		}
		action := timed.AutoAction(s, actor)
		log.Debugf("turn timeout. %s actor=%s auto=%s", s.Desc(), actor, action)
		if err := e.apply(context.Background(), s, def, actor, action, true); err != nil {
			log.Warnf("auto action rejected. %s actor=%s action=%s err=%v", s.Desc(), actor, action, err)
		}
	})
	e.turns[s.Key] = id
}

func (e *Engine) cancelTurn(s *session.Session) {
	if id, ok := e.turns[s.Key]; ok {
		e.timer.Cancel(id)
		delete(e.turns, s.Key)
	}
}

// runtime 玩法回调使用的能力，ctx 不随请求取消
type runtime struct {
	e   *Engine
	ctx context.Context
}

func (e *Engine) runtime(ctx context.Context) game.Runtime {
	return &runtime{e: e, ctx: context.WithoutCancel(ctx)}
}

func (r *runtime) Now() time.Time     { return r.e.now() }
func (r *runtime) Rand() xrand.Source { return r.e.rand }
func (r *runtime) Cancel(id int64)    { r.e.timer.Cancel(id) }

func (r *runtime) After(s *session.Session, d time.Duration, fn func()) int64 {
	return r.e.after(s, d, fn)
}

func (r *runtime) Render(s *session.Session) {
	if def, ok := r.e.router.Definition(s.Kind); ok {
		r.e.push(s, def)
	}
}

func (r *runtime) Complete(s *session.Session) {
	if def, ok := r.e.router.Definition(s.Kind); ok {
		r.e.finish(r.ctx, s, def)
	}
}

func (r *runtime) Debit(_ *session.Session, id string, amount int64, reason string) error {
	return r.e.debit(r.ctx, id, amount, reason)
}
