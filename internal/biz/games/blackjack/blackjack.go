package blackjack

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/yola1107/parlor/internal/biz/cards"
	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "blackjack"

	ModeSolo  = "solo"
	ModeMulti = "multi"

	actHit    = "hit"
	actStand  = "stand"
	actDouble = "double"

	dealerStand = 17
	dealDelay   = time.Second
	packs       = 2
)

var natural = decimal.RequireFromString("1.5")

type state struct {
	Deck       *cards.Deck      `json:"deck"`
	Order      []string         `json:"order"`
	Hands      map[string]*hand `json:"hands"`
	Dealer     []cards.Card     `json:"dealer"`
	Current    string           `json:"current"`
	DealerDone bool             `json:"dealer_done"`
}

// Game 二十一点，庄家对多名玩家
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Blackjack" }
func (g *Game) Routing() game.Routing { return game.RouteByChannel }

func (g *Game) Rules(mode string) game.Rules {
	if mode == ModeSolo {
		return game.Rules{Start: game.StartDirect, MinPlayers: 1, MaxPlayers: 1, MinBet: 10, MaxBet: 5000, BetRequired: true}
	}
	return game.Rules{Start: game.StartLobby, MinPlayers: 2, MaxPlayers: 6, MinBet: 10, MaxBet: 5000, BetRequired: true}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(rt game.Runtime, s *session.Session, _ []game.Entry) error {
	return g.deal(s, cards.NewDeck(rt.Rand(), packs))
}

func (g *Game) deal(s *session.Session, deck *cards.Deck) error {
	if len(s.Participants) == 0 {
		return codes.Validation("blackjack needs at least one player")
	}
	t := &state{Deck: deck, Order: s.IDs(), Hands: make(map[string]*hand)}
	for _, id := range t.Order {
		t.Hands[id] = &hand{}
	}
	for round := 0; round < 2; round++ {
		for _, id := range t.Order {
			t.Hands[id].Cards = append(t.Hands[id].Cards, deck.Draw())
		}
		t.Dealer = append(t.Dealer, deck.Draw())
	}
	for _, h := range t.Hands {
		if IsNatural(h.Cards) {
			h.Natural, h.Stood = true, true
		}
	}
	s.State = t
	t.Current, _ = game.NextEligible(t.Order, "", func(id string) bool { return !t.Hands[id].done() })
	return nil
}

func (g *Game) LegalActions(s *session.Session, actor string) []game.Choice {
	t := st(s)
	if actor == "" || actor != t.Current {
		return nil
	}
	h := t.Hands[actor]
	if h == nil || h.done() {
		return nil
	}
	out := []game.Choice{{ID: actHit, Label: "Hit"}, {ID: actStand, Label: "Stand"}}
	if len(h.Cards) == 2 && !h.Doubled {
		out = append(out, game.Choice{ID: actDouble, Label: "Double down"})
	}
	return out
}

func (g *Game) ApplyAction(rt game.Runtime, s *session.Session, actor, action string) error {
	t := st(s)
	h := t.Hands[actor]
	switch action {
	case actHit:
		h.add(t.Deck.Draw())
	case actStand:
		h.Stood = true
	case actDouble:
		extra := s.Bets[actor]
		if err := rt.Debit(s, actor, extra, economy.ReasonDouble); err != nil {
			return err
		}
		s.Bets[actor] += extra
		h.Doubled = true
		h.add(t.Deck.Draw())
		h.Stood = true
	default:
		return codes.Illegal("unknown action %q", action)
	}
	if h.done() {
		t.Current, _ = game.NextEligible(t.Order, actor, func(id string) bool { return !t.Hands[id].done() })
	}
	return nil
}

// IsTerminal 所有玩家都爆牌时无需庄家补牌
func (g *Game) IsTerminal(s *session.Session) bool {
	t := st(s)
	if t.DealerDone {
		return true
	}
	return lo.EveryBy(t.Order, func(id string) bool { return t.Hands[id].Busted })
}

func (g *Game) NextActor(s *session.Session) (string, bool) {
	t := st(s)
	if t.Current == "" || t.Hands[t.Current].done() {
		return "", false
	}
	return t.Current, true
}

// Resolve 庄家逐张补牌，软 17 停
func (g *Game) Resolve(rt game.Runtime, s *session.Session) {
	t := st(s)
	t.Current = ""
	var step func()
	step = func() {
		if total, _ := Score(t.Dealer); total < dealerStand {
			t.Dealer = append(t.Dealer, t.Deck.Draw())
			rt.Render(s)
			rt.After(s, dealDelay, step)
			return
		}
		t.DealerDone = true
		rt.Complete(s)
	}
	rt.Render(s)
	rt.After(s, dealDelay, step)
}

func (g *Game) odds(t *state, id string) (decimal.Decimal, string) {
	h := t.Hands[id]
	dealerNatural := IsNatural(t.Dealer)
	dealer, _ := Score(t.Dealer)
	player := h.total()
	switch {
	case h.Busted:
		return game.Lose, "bust"
	case h.Natural && dealerNatural:
		return game.Push, "both natural"
	case h.Natural:
		return natural, "natural"
	case dealerNatural:
		return game.Lose, "dealer natural"
	case dealer > 21:
		return game.EvenMoney, "dealer bust"
	case player > dealer:
		return game.EvenMoney, fmt.Sprintf("%d beats %d", player, dealer)
	case player == dealer:
		return game.Push, fmt.Sprintf("push at %d", player)
	default:
		return game.Lose, fmt.Sprintf("%d loses to %d", player, dealer)
	}
}

func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	return lo.Map(t.Order, func(id string, _ int) game.SettleLine {
		odds, note := g.odds(t, id)
		return game.ByOdds(id, s.Bets[id], odds, note)
	})
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	lines := g.Settle(s)
	best := lo.MaxBy(lines, func(a, b game.SettleLine) bool { return a.Net > b.Net })
	o := game.Outcome{FinalScore: g.scoreLine(t, s)}
	if best.Net > 0 {
		o.WinnerID = best.ParticipantID
	}
	return o
}

func (g *Game) scoreLine(t *state, s *session.Session) string {
	dealer, _ := Score(t.Dealer)
	parts := []string{fmt.Sprintf("dealer %d", dealer)}
	for _, id := range t.Order {
		h := t.Hands[id]
		v := fmt.Sprintf("%d", h.total())
		if h.Busted {
			v = "bust"
		} else if h.Natural {
			v = "blackjack"
		}
		parts = append(parts, s.Name(id)+" "+v)
	}
	return strings.Join(parts, ", ")
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title()}
	reveal := s.Phase >= session.PhaseResolving
	if reveal {
		total, soft := Score(t.Dealer)
		v.AddField("Dealer", "%s = %d%s", cards.Join(t.Dealer), total, softMark(soft))
	} else {
		v.AddField("Dealer", "%s ??", t.Dealer[0])
	}
	for _, id := range t.Order {
		h := t.Hands[id]
		total, soft := Score(h.Cards)
		status := ""
		switch {
		case h.Busted:
			status = " BUST"
		case h.Natural:
			status = " BLACKJACK"
		case h.Doubled:
			status = " (doubled)"
		}
		v.AddField(fmt.Sprintf("%s [bet %d]", s.Name(id), s.Bets[id]), "%s = %d%s%s", cards.Join(h.Cards), total, softMark(soft), status)
	}
	if t.Current != "" && s.Phase == session.PhaseActive {
		v.Footer = s.Name(t.Current) + " to act"
	}
	return v
}

func softMark(soft bool) string {
	if soft {
		return " (soft)"
	}
	return ""
}

// TurnTimeout 使用引擎默认值
func (g *Game) TurnTimeout() time.Duration { return 0 }

// AutoAction 超时自动停牌
func (g *Game) AutoAction(*session.Session, string) string { return actStand }
