package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/lobby"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/pkg/codes"
)

func (e *Engine) openLobby(ctx context.Context, def game.Definition, rules game.Rules, req StartRequest) (Reply, error) {
	if err := e.ensureFree(def, req.Channel, req.RequesterID); err != nil {
		return Reply{}, err
	}
	l, err := e.lobbies.Open(ctx, lobby.OpenRequest{
		Channel:     req.Channel,
		Server:      req.Server,
		Kind:        def.Kind(),
		Title:       def.Title(),
		Mode:        req.Mode,
		CreatorID:   req.RequesterID,
		CreatorName: req.RequesterName,
		Wait:        conf.Duration(req.WaitSeconds),
		Bet:         req.Bet,
		Selection:   req.Selection,
		Rules:       rules,
	})
	if err != nil {
		return Reply{}, err
	}
	v := l.View(e.now())
	e.deliver(Update{Channel: l.Channel, View: v})
	return Reply{LobbyID: l.ID, View: v}, nil
}

// lobbyAction lobby:join[:amount[:selection]] | lobby:bet:<amount>[:selection] | lobby:start | lobby:cancel
func (e *Engine) lobbyAction(ctx context.Context, ev ActionEvent, sub string) (Reply, error) {
	l, ok := e.lobbies.Get(ev.Channel)
	if !ok {
		return Reply{}, codes.ErrSessionNotFound
	}
	parts := strings.Split(sub, ":")
	arg := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	switch parts[0] {
	case "join":
		if arg(1) == "" {
			return e.betPrompt(l, ev.ActorID, arg(2))
		}
		amount, err := parseAmount(arg(1))
		if err != nil {
			return Reply{}, err
		}
		if l, err = e.lobbies.Join(ctx, ev.Channel, ev.ActorID, ev.ActorName, amount, arg(2)); err != nil {
			return Reply{}, err
		}
		return Reply{LobbyID: l.ID, View: l.View(e.now())}, nil
	case "bet":
		amount, err := parseAmount(arg(1))
		if err != nil {
			return Reply{}, err
		}
		if l, err = e.lobbies.Bet(ctx, ev.Channel, ev.ActorID, ev.ActorName, amount, arg(2)); err != nil {
			return Reply{}, err
		}
		return Reply{LobbyID: l.ID, View: l.View(e.now())}, nil
	case "start":
		if err := e.lobbies.StartNow(ctx, ev.Channel, ev.ActorID); err != nil {
			return Reply{}, err
		}
		if s, ok := e.store.FindByChannel(ev.Channel, l.Kind); ok {
			def, _ := e.router.Definition(s.Kind)
			return e.reply(s, def), nil
		}
		return Reply{LobbyID: l.ID, View: game.View{Title: l.Title, Body: "Starting"}}, nil
	case "cancel":
		if err := e.lobbies.Cancel(ctx, ev.Channel, ev.ActorID); err != nil {
			return Reply{}, err
		}
		return Reply{LobbyID: l.ID, View: game.View{Title: l.Title, Body: "Game cancelled. Stakes refunded."}}, nil
	}
	return Reply{}, codes.ErrSessionNotFound
}

func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, codes.Validation("%q is not a valid amount", s)
	}
	return v, nil
}

// betPrompt 未带金额时先选押注项，再选金额；只给点击者看
func (e *Engine) betPrompt(l *lobby.Lobby, actor, selection string) (Reply, error) {
	if l.Has(actor) {
		return Reply{}, codes.Validation("you have already joined")
	}
	if len(l.Rules.Selections) > 0 && selection == "" {
		v := game.View{Title: "Place your bet", Body: "Pick what to bet on"}
		v.Choices = lo.Map(l.Rules.Selections, func(sel string, _ int) game.Choice {
			return game.Choice{ID: "lobby:join::" + sel, Label: sel}
		})
		return Reply{LobbyID: l.ID, View: v, Ephemeral: true}, nil
	}
	p, err := e.lobbies.Prompt(l.Channel, actor, selection)
	if err != nil {
		return Reply{}, err
	}
	v := p.View()
	if !l.Rules.BetRequired {
		v.Choices = append([]game.Choice{{ID: "lobby:join:0", Label: "No bet"}}, v.Choices...)
	}
	return Reply{LobbyID: l.ID, View: v, Ephemeral: true}, nil
}

/*
	大厅回调，都在 loop 内执行
*/

func (e *Engine) lobbyRender(l *lobby.Lobby, v game.View) {
	e.deliver(Update{Channel: l.Channel, View: v})
}

func (e *Engine) lobbyClosed(l *lobby.Lobby, reason string) {
	e.metrics.sessionAborted(context.Background(), string(l.Kind), reason)
	e.deliver(Update{
		Channel: l.Channel,
		View:    game.View{Title: l.Title, Body: "Game cancelled: " + reason + ". Stakes refunded."},
		Final:   true,
	})
}

// lobbyReady 押注已扣，建局失败时由这里退款
func (e *Engine) lobbyReady(ctx context.Context, l *lobby.Lobby) {
	def, ok := e.router.Definition(l.Kind)
	if !ok {
		e.refund(ctx, l.Entries...)
		return
	}
	s, err := e.newSession(ctx, l.Kind, l.Channel, l.Server, l.Mode)
	if err != nil {
		log.Errorf("create session from lobby failed. %s err=%v", l.Desc(), err)
		e.refund(ctx, l.Entries...)
		e.lobbyClosed(l, "internal error")
		return
	}
	now := e.now()
	for _, en := range l.Entries {
		s.Join(en.ParticipantID, en.Name, now)
		s.Bets[en.ParticipantID] = en.Amount
	}
	if err := e.activate(ctx, s, def, l.Entries); err != nil {
		log.Warnf("lobby hand-off failed. %s err=%v", l.Desc(), err)
	}
}
