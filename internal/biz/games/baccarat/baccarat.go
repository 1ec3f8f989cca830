package baccarat

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/yola1107/parlor/internal/biz/cards"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "baccarat"

	SidePlayer = "player"
	SideBanker = "banker"
	SideTie    = "tie"

	packs     = 6
	dealDelay = time.Second
)

var (
	bankerOdds = decimal.RequireFromString("0.95")
	tieOdds    = decimal.NewFromInt(8)
)

type state struct {
	Deck   *cards.Deck       `json:"deck"`
	Order  []string          `json:"order"`
	Picks  map[string]string `json:"picks"`
	Player []cards.Card      `json:"player"`
	Banker []cards.Card      `json:"banker"`
	Winner string            `json:"winner"`
}

// Game 百家乐，押闲/庄/和
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Baccarat" }
func (g *Game) Routing() game.Routing { return game.RouteByChannel }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{
		Start:       game.StartLobby,
		MinPlayers:  1,
		MaxPlayers:  10,
		MinBet:      10,
		MaxBet:      10000,
		BetRequired: true,
		Selections:  []string{SidePlayer, SideBanker, SideTie},
	}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(rt game.Runtime, s *session.Session, entries []game.Entry) error {
	return g.deal(s, entries, cards.NewDeck(rt.Rand(), packs))
}

// deal 闲庄交替各发两张
func (g *Game) deal(s *session.Session, entries []game.Entry, deck *cards.Deck) error {
	t := &state{Deck: deck, Order: s.IDs(), Picks: make(map[string]string)}
	for _, e := range entries {
		switch e.Selection {
		case SidePlayer, SideBanker, SideTie:
			t.Picks[e.ParticipantID] = e.Selection
		default:
			return codes.Validation("bet on player, banker or tie, not %q", e.Selection)
		}
	}
	for i := 0; i < 2; i++ {
		t.Player = append(t.Player, deck.Draw())
		t.Banker = append(t.Banker, deck.Draw())
	}
	s.State = t
	return nil
}

func (g *Game) LegalActions(*session.Session, string) []game.Choice { return nil }

func (g *Game) ApplyAction(_ game.Runtime, _ *session.Session, _, action string) error {
	return codes.Illegal("baccarat takes no action %q", action)
}

func (g *Game) IsTerminal(s *session.Session) bool { return st(s).Winner != "" }

func (g *Game) NextActor(*session.Session) (string, bool) { return "", false }

// Points 10 与人头牌计 0，取个位
func Points(cs []cards.Card) int {
	total := 0
	for _, c := range cs {
		if c.Rank < 10 {
			total += int(c.Rank)
		}
	}
	return total % 10
}

func value(c cards.Card) int {
	if c.Rank >= 10 {
		return 0
	}
	return int(c.Rank)
}

// bankerDraws 闲家补了第三张时庄家的补牌表
func bankerDraws(banker int, third cards.Card) bool {
	p := value(third)
	switch banker {
	case 0, 1, 2:
		return true
	case 3:
		return p != 8
	case 4:
		return p >= 2 && p <= 7
	case 5:
		return p >= 4 && p <= 7
	case 6:
		return p == 6 || p == 7
	default:
		return false
	}
}

// Resolve 先闲后庄逐张补牌，天牌 8/9 直接比
func (g *Game) Resolve(rt game.Runtime, s *session.Session) {
	t := st(s)
	finish := func() {
		p, b := Points(t.Player), Points(t.Banker)
		switch {
		case p > b:
			t.Winner = SidePlayer
		case b > p:
			t.Winner = SideBanker
		default:
			t.Winner = SideTie
		}
		rt.Complete(s)
	}
	bankerTurn := func() {
		b := Points(t.Banker)
		draw := b <= 5
		if len(t.Player) == 3 {
			draw = bankerDraws(b, t.Player[2])
		}
		if draw {
			t.Banker = append(t.Banker, t.Deck.Draw())
			rt.Render(s)
			rt.After(s, dealDelay, finish)
			return
		}
		finish()
	}

	rt.Render(s)
	if p, b := Points(t.Player), Points(t.Banker); p >= 8 || b >= 8 {
		rt.After(s, dealDelay, finish)
		return
	}
	rt.After(s, dealDelay, func() {
		if Points(t.Player) <= 5 {
			t.Player = append(t.Player, t.Deck.Draw())
			rt.Render(s)
			rt.After(s, dealDelay, bankerTurn)
			return
		}
		bankerTurn()
	})
}

// Odds 开和时闲庄注退回
func Odds(pick, winner string) decimal.Decimal {
	switch {
	case pick == winner && pick == SideTie:
		return tieOdds
	case pick == winner && pick == SideBanker:
		return bankerOdds
	case pick == winner:
		return game.EvenMoney
	case winner == SideTie && pick != SideTie:
		return game.Push
	default:
		return game.Lose
	}
}

func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	return lo.Map(t.Order, func(id string, _ int) game.SettleLine {
		return game.ByOdds(id, s.Bets[id], Odds(t.Picks[id], t.Winner), t.Picks[id])
	})
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	o := game.Outcome{FinalScore: fmt.Sprintf("player %d, banker %d (%s)", Points(t.Player), Points(t.Banker), t.Winner)}
	if best := lo.MaxBy(g.Settle(s), func(a, b game.SettleLine) bool { return a.Net > b.Net }); best.Net > 0 {
		o.WinnerID = best.ParticipantID
	}
	return o
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title()}
	v.AddField("Player", "%s = %d", cards.Join(t.Player), Points(t.Player))
	v.AddField("Banker", "%s = %d", cards.Join(t.Banker), Points(t.Banker))
	if t.Winner != "" {
		v.Body = t.Winner + " wins"
		if t.Winner == SideTie {
			v.Body = "tie"
		}
	}
	for _, id := range t.Order {
		v.AddField(s.Name(id), "%d on %s", s.Bets[id], t.Picks[id])
	}
	return v
}
