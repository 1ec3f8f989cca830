package videopoker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/yola1107/parlor/internal/biz/cards"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "videopoker"

	HandSize = 5

	actDeal    = "deal"
	actDraw    = "draw"
	actCashout = "cashout"
	actHold    = "hold:"
)

type state struct {
	Chips     int64          `json:"chips"`
	Ante      int64          `json:"ante"`
	Deck      *cards.Deck    `json:"deck,omitempty"`
	Hand      []cards.Card   `json:"hand,omitempty"`
	Held      [HandSize]bool `json:"held"`
	Dealt     bool           `json:"dealt"`
	Hands     int            `json:"hands"`
	Best      HandRank       `json:"best"`
	Last      string         `json:"last,omitempty"`
	Over      bool           `json:"over"`
	CashedOut bool           `json:"cashed_out"`
}

// Game 单人 Jacks or Better。买入换筹码，每手扣底注，结束时筹码兑回
type Game struct{}

var (
	_ game.Definition = (*Game)(nil)
	_ game.Persistent = (*Game)(nil)
)

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Video Poker" }
func (g *Game) Routing() game.Routing { return game.RouteByParticipant }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{Start: game.StartDirect, MinPlayers: 1, MaxPlayers: 1, MinBet: 50, MaxBet: 10000, BetRequired: true}
}

func st(s *session.Session) *state { return s.State.(*state) }

func owner(s *session.Session) string { return s.Participants[0].ID }

// Setup 买入即筹码，底注为买入的十分之一
func (g *Game) Setup(_ game.Runtime, s *session.Session, _ []game.Entry) error {
	if len(s.Participants) != 1 {
		return codes.Validation("video poker is single player")
	}
	buyIn := s.Bets[owner(s)]
	if buyIn <= 0 {
		return codes.Validation("video poker needs a buy-in")
	}
	s.State = &state{Chips: buyIn, Ante: max(buyIn/10, 1)}
	return nil
}

func (g *Game) LegalActions(s *session.Session, actor string) []game.Choice {
	t := st(s)
	if t.Over || actor != owner(s) {
		return nil
	}
	if !t.Dealt {
		var out []game.Choice
		if t.Chips >= t.Ante {
			out = append(out, game.Choice{ID: actDeal, Label: fmt.Sprintf("Deal (%d)", t.Ante)})
		}
		return append(out, game.Choice{ID: actCashout, Label: fmt.Sprintf("Cash out %d", t.Chips)})
	}
	out := make([]game.Choice, 0, HandSize+1)
	for i, c := range t.Hand {
		label := c.String()
		if t.Held[i] {
			label += " (held)"
		}
		out = append(out, game.Choice{ID: actHold + strconv.Itoa(i), Label: label})
	}
	return append(out, game.Choice{ID: actDraw, Label: "Draw"})
}

func (g *Game) ApplyAction(rt game.Runtime, s *session.Session, _, action string) error {
	t := st(s)
	switch {
	case action == actDeal && !t.Dealt:
		if t.Chips < t.Ante {
			return codes.Illegal("not enough chips for the ante")
		}
		t.deal(cards.NewDeck(rt.Rand(), 1))
	case action == actCashout && !t.Dealt:
		t.Over, t.CashedOut = true, true
	case action == actDraw && t.Dealt:
		t.draw()
	case strings.HasPrefix(action, actHold) && t.Dealt:
		i, err := strconv.Atoi(action[len(actHold):])
		if err != nil || i < 0 || i >= HandSize {
			return codes.Illegal("no card %q to hold", action)
		}
		t.Held[i] = !t.Held[i]
	default:
		return codes.Illegal("can't %s now", action)
	}
	return nil
}

func (t *state) deal(deck *cards.Deck) {
	t.Chips -= t.Ante
	t.Deck = deck
	t.Hand = deck.DrawN(HandSize)
	t.Held = [HandSize]bool{}
	t.Dealt = true
}

// draw 换掉未保留的牌并按赔率表结算底注
func (t *state) draw() {
	for i := range t.Hand {
		if !t.Held[i] {
			t.Hand[i] = t.Deck.Draw()
		}
	}
	rank := Classify(t.Hand)
	odds := rank.Odds()
	if !odds.IsNegative() {
		t.Chips += t.Ante + decimal.NewFromInt(t.Ante).Mul(odds).Floor().IntPart()
	}
	t.Best = max(t.Best, rank)
	t.Hands++
	t.Last = rank.String()
	if d := Describe(t.Hand); d != "" {
		t.Last += " (" + d + ")"
	}
	t.Dealt, t.Deck = false, nil
	if t.Chips < t.Ante {
		t.Over = true
	}
}

func (g *Game) IsTerminal(s *session.Session) bool { return st(s).Over }

func (g *Game) NextActor(s *session.Session) (string, bool) {
	if st(s).Over {
		return "", false
	}
	return owner(s), true
}

func (g *Game) Resolve(rt game.Runtime, s *session.Session) { rt.Complete(s) }

// Settle 剩余筹码全部兑回，与买入比较盈亏
func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	id := owner(s)
	line := game.SettleLine{
		ParticipantID: id,
		Stake:         s.Bets[id],
		Payout:        t.Chips,
		Net:           t.Chips - s.Bets[id],
		Note:          fmt.Sprintf("%d hands", t.Hands),
	}
	switch {
	case line.Net > 0:
		line.Result = game.ResultWin
	case line.Net == 0:
		line.Result = game.ResultPush
	default:
		line.Result = game.ResultLoss
	}
	return []game.SettleLine{line}
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	o := game.Outcome{FinalScore: fmt.Sprintf("%d chips after %d hands, best %s", t.Chips, t.Hands, t.Best)}
	if t.Chips > s.Bets[owner(s)] {
		o.WinnerID = owner(s)
	}
	return o
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title()}
	if len(t.Hand) > 0 {
		v.Body = strings.Join(lo.Map(t.Hand, func(c cards.Card, i int) string {
			if t.Dealt && t.Held[i] {
				return "[" + c.String() + "]"
			}
			return c.String()
		}), " ")
	}
	v.AddField("Chips", "%d", t.Chips)
	v.AddField("Ante", "%d", t.Ante)
	if t.Last != "" {
		v.AddField("Last hand", "%s", t.Last)
	}
	switch {
	case t.CashedOut:
		v.Footer = fmt.Sprintf("Cashed out %d chips", t.Chips)
	case t.Over:
		v.Footer = "Out of chips"
	default:
		v.Choices = g.LegalActions(s, owner(s))
	}
	return v
}

type snapshot struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	BuyIn         int64     `json:"buy_in"`
	Mode          string    `json:"mode,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	State         *state    `json:"state"`
}

func (g *Game) Snapshot(s *session.Session) ([]byte, error) {
	p := s.Participants[0]
	return json.Marshal(snapshot{
		ParticipantID: p.ID,
		Name:          p.Name,
		BuyIn:         s.Bets[p.ID],
		Mode:          s.Mode,
		CreatedAt:     s.CreatedAt,
		State:         st(s),
	})
}

// Restore 重建会话，直接进入 Active
func (g *Game) Restore(rec game.Record, now time.Time) (*session.Session, error) {
	var snap snapshot
	if err := json.Unmarshal(rec.Data, &snap); err != nil {
		return nil, fmt.Errorf("videopoker: decode %s: %w", rec.Key, err)
	}
	if snap.State == nil || snap.ParticipantID == "" {
		return nil, fmt.Errorf("videopoker: record %s has no state", rec.Key)
	}
	if snap.State.Over {
		return nil, fmt.Errorf("videopoker: record %s already finished", rec.Key)
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = now
	}
	s := session.New(rec.Key, Kind, rec.Channel, created)
	s.Server = rec.Server
	s.Mode = snap.Mode
	s.Join(snap.ParticipantID, snap.Name, created)
	s.Bets[snap.ParticipantID] = snap.BuyIn
	s.Phase = session.PhaseActive
	s.State = snap.State
	return s, nil
}
