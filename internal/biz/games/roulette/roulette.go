package roulette

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "roulette"

	pockets    = 37
	spinFrames = 3
	spinDelay  = time.Second
)

var (
	straight = decimal.NewFromInt(35)
	twoToOne = decimal.NewFromInt(2)

	reds = lo.SliceToMap([]int{1, 3, 5, 7, 9, 12, 14, 16, 18, 19, 21, 23, 25, 27, 30, 32, 34, 36},
		func(n int) (int, bool) { return n, true })

	outside    = []string{"red", "black", "odd", "even", "low", "high", "dozen1", "dozen2", "dozen3", "column1", "column2", "column3"}
	selections = append(append([]string{}, outside...), lo.Times(pockets, func(i int) string { return "n" + strconv.Itoa(i) })...)
)

type state struct {
	Order   []string          `json:"order"`
	Picks   map[string]string `json:"picks"`
	Frame   int               `json:"frame"`
	Showing int               `json:"showing"`
	Result  int               `json:"result"`
	Spun    bool              `json:"spun"`
}

// Game 欧式单零轮盘，每人一注
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Roulette" }
func (g *Game) Routing() game.Routing { return game.RouteByChannel }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{
		Start:       game.StartLobby,
		MinPlayers:  1,
		MaxPlayers:  10,
		MinBet:      10,
		MaxBet:      10000,
		BetRequired: true,
		Selections:  selections,
	}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(_ game.Runtime, s *session.Session, entries []game.Entry) error {
	t := &state{Order: s.IDs(), Picks: make(map[string]string), Showing: -1}
	for _, e := range entries {
		if !lo.Contains(selections, e.Selection) {
			return codes.Validation("unknown roulette bet %q", e.Selection)
		}
		t.Picks[e.ParticipantID] = e.Selection
	}
	s.State = t
	return nil
}

// LegalActions 押注在大厅完成，开局后无人操作
func (g *Game) LegalActions(*session.Session, string) []game.Choice { return nil }

func (g *Game) ApplyAction(_ game.Runtime, _ *session.Session, _, action string) error {
	return codes.Illegal("roulette takes no action %q", action)
}

func (g *Game) IsTerminal(s *session.Session) bool { return st(s).Spun }

func (g *Game) NextActor(*session.Session) (string, bool) { return "", false }

// Resolve 三帧转动动画，最后一帧即结果
func (g *Game) Resolve(rt game.Runtime, s *session.Session) {
	t := st(s)
	var step func()
	step = func() {
		t.Frame++
		t.Showing = rt.Rand().Intn(pockets)
		if t.Frame < spinFrames {
			rt.Render(s)
			rt.After(s, spinDelay, step)
			return
		}
		t.Result, t.Spun = t.Showing, true
		rt.Complete(s)
	}
	rt.Render(s)
	rt.After(s, spinDelay, step)
}

// Color 0 为绿色
func Color(n int) string {
	switch {
	case n == 0:
		return "green"
	case reds[n]:
		return "red"
	default:
		return "black"
	}
}

// Odds 净赔率，零号通杀外围注
func Odds(selection string, n int) decimal.Decimal {
	if strings.HasPrefix(selection, "n") {
		if v, err := strconv.Atoi(selection[1:]); err == nil && v == n {
			return straight
		}
		return game.Lose
	}
	if n == 0 {
		return game.Lose
	}
	hit := false
	switch selection {
	case "red", "black":
		hit = Color(n) == selection
	case "odd":
		hit = n%2 == 1
	case "even":
		hit = n%2 == 0
	case "low":
		hit = n <= 18
	case "high":
		hit = n >= 19
	case "dozen1", "dozen2", "dozen3":
		if (n-1)/12+1 == int(selection[5]-'0') {
			return twoToOne
		}
	case "column1", "column2", "column3":
		if (n-1)%3+1 == int(selection[6]-'0') {
			return twoToOne
		}
	}
	if hit {
		return game.EvenMoney
	}
	return game.Lose
}

func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	return lo.Map(t.Order, func(id string, _ int) game.SettleLine {
		pick := t.Picks[id]
		return game.ByOdds(id, s.Bets[id], Odds(pick, t.Result), pick)
	})
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	o := game.Outcome{FinalScore: fmt.Sprintf("%d %s", t.Result, Color(t.Result))}
	if best := lo.MaxBy(g.Settle(s), func(a, b game.SettleLine) bool { return a.Net > b.Net }); best.Net > 0 {
		o.WinnerID = best.ParticipantID
	}
	return o
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title()}
	switch {
	case t.Spun:
		v.Body = fmt.Sprintf("The ball lands on %d (%s)", t.Result, Color(t.Result))
	case t.Showing >= 0:
		v.Body = fmt.Sprintf("Spinning... %d", t.Showing)
	default:
		v.Body = "No more bets"
	}
	for _, id := range t.Order {
		v.AddField(s.Name(id), "%d on %s", s.Bets[id], t.Picks[id])
	}
	return v
}
