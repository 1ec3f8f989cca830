package whist

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/yola1107/parlor/internal/biz/cards"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "whist"

	HandSize = 5
)

type play struct {
	ID   string     `json:"id"`
	Card cards.Card `json:"card"`
}

type state struct {
	Hands     map[string][]cards.Card `json:"hands"`
	Order     []string                `json:"order"`
	Trump     cards.Card              `json:"trump"`
	Current   string                  `json:"current"`
	Trick     []play                  `json:"trick"`
	Tricks    map[string]int          `json:"tricks"`
	LastTrick string                  `json:"last_trick"`
}

// Game 简化惠斯特：每人 5 张，翻一张定将牌，须跟花色
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Whist" }
func (g *Game) Routing() game.Routing { return game.RouteByChannel }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{Start: game.StartLobby, MinPlayers: 2, MaxPlayers: 4, MinBet: 0, MaxBet: 5000}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(rt game.Runtime, s *session.Session, _ []game.Entry) error {
	return g.deal(s, cards.NewDeck(rt.Rand(), 1))
}

// deal 轮流发牌，再翻开下一张作为将牌
func (g *Game) deal(s *session.Session, deck *cards.Deck) error {
	order := s.IDs()
	if len(order) < 2 {
		return codes.Validation("whist needs at least two players")
	}
	t := &state{Hands: make(map[string][]cards.Card), Order: order, Tricks: make(map[string]int)}
	for i := 0; i < HandSize; i++ {
		for _, id := range order {
			t.Hands[id] = append(t.Hands[id], deck.Draw())
		}
	}
	t.Trump = deck.Draw()
	t.Current = order[0]
	s.State = t
	return nil
}

func (t *state) led() (cards.Suit, bool) {
	if len(t.Trick) == 0 {
		return 0, false
	}
	return t.Trick[0].Card.Suit, true
}

// playable 有首引花色必须跟
func (t *state) playable(id string) []cards.Card {
	hand := t.Hands[id]
	if suit, ok := t.led(); ok {
		if follow := lo.Filter(hand, func(c cards.Card, _ int) bool { return c.Suit == suit }); len(follow) > 0 {
			return follow
		}
	}
	return hand
}

func (g *Game) LegalActions(s *session.Session, actor string) []game.Choice {
	t := st(s)
	if g.IsTerminal(s) || actor != t.Current {
		return nil
	}
	return lo.Map(t.playable(actor), func(c cards.Card, _ int) game.Choice {
		return game.Choice{ID: "play:" + c.Code(), Label: c.String()}
	})
}

func (g *Game) ApplyAction(_ game.Runtime, s *session.Session, actor, action string) error {
	t := st(s)
	code, ok := strings.CutPrefix(action, "play:")
	if !ok {
		return codes.Illegal("unknown action %q", action)
	}
	card, found := lo.Find(t.playable(actor), func(c cards.Card) bool { return c.Code() == code })
	if !found {
		return codes.Illegal("you can't play %s now", code)
	}
	idx := lo.IndexOf(t.Hands[actor], card)
	t.Hands[actor] = append(t.Hands[actor][:idx:idx], t.Hands[actor][idx+1:]...)
	t.Trick = append(t.Trick, play{ID: actor, Card: card})

	if len(t.Trick) < len(t.Order) {
		t.Current, _ = game.NextEligible(t.Order, actor, func(string) bool { return true })
		return nil
	}
	winner := t.trickWinner()
	t.Tricks[winner]++
	t.LastTrick = fmt.Sprintf("%s took %s", winner, strings.Join(lo.Map(t.Trick, func(p play, _ int) string { return p.Card.String() }), " "))
	t.Trick = nil
	t.Current = winner
	return nil
}

// trickWinner 有将牌比将牌，否则比首引花色，A 最大
func (t *state) trickWinner() string {
	led := t.Trick[0].Card.Suit
	best := t.Trick[0]
	for _, p := range t.Trick[1:] {
		switch {
		case p.Card.Suit == best.Card.Suit && p.Card.Rank.High() > best.Card.Rank.High():
			best = p
		case p.Card.Suit == t.Trump.Suit && best.Card.Suit != t.Trump.Suit:
			best = p
		case p.Card.Suit == led && best.Card.Suit != led && best.Card.Suit != t.Trump.Suit:
			best = p
		}
	}
	return best.ID
}

func (g *Game) IsTerminal(s *session.Session) bool {
	t := st(s)
	return len(t.Trick) == 0 && lo.EveryBy(t.Order, func(id string) bool { return len(t.Hands[id]) == 0 })
}

func (g *Game) NextActor(s *session.Session) (string, bool) {
	if g.IsTerminal(s) {
		return "", false
	}
	return st(s).Current, true
}

func (g *Game) Resolve(rt game.Runtime, s *session.Session) { rt.Complete(s) }

func (t *state) leaders() []string {
	most := lo.Max(lo.Values(t.Tricks))
	return lo.Filter(t.Order, func(id string, _ int) bool { return t.Tricks[id] == most })
}

// Settle 墩数最多者平分奖池
func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	return game.SplitPot(t.Order, s.Bets, t.leaders())
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	o := game.Outcome{FinalScore: strings.Join(lo.Map(t.Order, func(id string, _ int) string {
		return fmt.Sprintf("%s %d", s.Name(id), t.Tricks[id])
	}), ", ")}
	if leaders := t.leaders(); len(leaders) == 1 {
		o.WinnerID = leaders[0]
	}
	return o
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title()}
	v.AddField("Trump", "%s (%s)", t.Trump, t.Trump.Suit.Name())
	if len(t.Trick) > 0 {
		v.Body = strings.Join(lo.Map(t.Trick, func(p play, _ int) string { return s.Name(p.ID) + ": " + p.Card.String() }), "\n")
	} else if t.LastTrick != "" {
		v.Body = t.LastTrick
	}
	for _, id := range t.Order {
		v.AddField(s.Name(id), "%d tricks, %d cards", t.Tricks[id], len(t.Hands[id]))
	}
	if !g.IsTerminal(s) {
		v.Footer = s.Name(t.Current) + " to play"
		v.Choices = []game.Choice{{ID: game.ActHand, Label: "Show my hand"}}
	}
	return v
}

// PrivateView 本人手牌，轮到自己时带可出的牌
func (g *Game) PrivateView(s *session.Session, actor string) game.View {
	t := st(s)
	v := game.View{Title: g.Title() + " · your hand"}
	v.Body = strings.Join(lo.Map(t.Hands[actor], func(c cards.Card, _ int) string { return c.String() }), " ")
	v.AddField("Trump", "%s (%s)", t.Trump, t.Trump.Suit.Name())
	if actor == t.Current {
		v.Footer = "Your turn"
		v.Choices = g.LegalActions(s, actor)
	} else {
		v.Footer = s.Name(t.Current) + " to play"
	}
	return v
}

// TurnTimeout 使用引擎默认值
func (g *Game) TurnTimeout() time.Duration { return 0 }

// AutoAction 超时出第一张合法牌
func (g *Game) AutoAction(s *session.Session, actor string) string {
	if cs := st(s).playable(actor); len(cs) > 0 {
		return "play:" + cs[0].Code()
	}
	return ""
}
