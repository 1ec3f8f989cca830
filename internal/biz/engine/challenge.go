package engine

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	actAccept  = "accept"
	actDecline = "decline"
)

// challenge 先扣发起者押注，会话停在 Waiting 等对方应答
func (e *Engine) challenge(ctx context.Context, def game.Definition, rules game.Rules, req StartRequest) (Reply, error) {
	switch {
	case req.OpponentID == "":
		return Reply{}, codes.Validation("choose an opponent")
	case req.OpponentID == req.RequesterID:
		return Reply{}, codes.Validation("you can't challenge yourself")
	}
	if err := rules.CheckBet(req.Bet, req.Selection); err != nil {
		return Reply{}, err
	}
	if err := e.debit(ctx, req.RequesterID, req.Bet, economy.ReasonBet); err != nil {
		return Reply{}, err
	}
	s, err := e.newSession(ctx, def.Kind(), req.Channel, req.Server, req.Mode)
	if err != nil {
		e.refund(ctx, game.Entry{ParticipantID: req.RequesterID, Amount: req.Bet})
		return Reply{}, err
	}
	now := e.now()
	s.Join(req.RequesterID, req.RequesterName, now)
	s.Join(req.OpponentID, req.OpponentName, now)
	s.Bets[req.RequesterID] = req.Bet
	log.Infof("challenge issued. %s from=%s to=%s stake=%d", s.Desc(), req.RequesterID, req.OpponentID, req.Bet)

	e.push(s, def)
	return e.reply(s, def), nil
}

// respond Waiting 阶段只接受应答
func (e *Engine) respond(ctx context.Context, s *session.Session, def game.Definition, actor, action string) error {
	if len(s.Participants) < 2 {
		return codes.ErrWrongPhase
	}
	challenger, opponent := s.Participants[0].ID, s.Participants[1].ID
	switch action {
	case actAccept:
		if actor != opponent {
			return codes.ErrNotYourTurn
		}
		stake := s.Bets[challenger]
		if err := e.debit(ctx, opponent, stake, economy.ReasonBet); err != nil {
			return err
		}
		s.Bets[opponent] = stake
		entries := lo.Map(s.Participants, func(p *session.Participant, _ int) game.Entry {
			return game.Entry{ParticipantID: p.ID, Name: p.Name, Amount: s.Bets[p.ID]}
		})
		return e.activate(ctx, s, def, entries)
	case actDecline:
		switch actor {
		case opponent:
			e.abort(ctx, s, "challenge declined")
		case challenger:
			e.abort(ctx, s, "challenge withdrawn")
		default:
			return codes.ErrNotYourTurn
		}
		return nil
	}
	return codes.ErrWrongPhase
}

func (e *Engine) challengeView(s *session.Session) game.View {
	v := game.View{Title: e.Title(s.Kind)}
	if len(s.Participants) < 2 {
		return v
	}
	challenger, opponent := s.Participants[0], s.Participants[1]
	v.Body = fmt.Sprintf("%s challenges %s", s.Name(challenger.ID), s.Name(opponent.ID))
	if stake := s.Bets[challenger.ID]; stake > 0 {
		v.AddField("Stake", "%d each", stake)
	}
	v.Footer = fmt.Sprintf("Waiting for %s to answer", s.Name(opponent.ID))
	v.Choices = []game.Choice{
		{ID: e.router.ActionID(s, actAccept), Label: "Accept"},
		{ID: e.router.ActionID(s, actDecline), Label: "Decline"},
	}
	return v
}
