package pong

import (
	"fmt"
	"strings"
	"time"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "pong"

	Width     = 7
	Height    = 5
	PaddleLen = 2
	WinScore  = 3

	actUp   = "up"
	actStay = "stay"
	actDown = "down"

	turnTimeout = 10 * time.Second
)

type state struct {
	Order   [2]string `json:"order"`   // 左, 右
	Paddles [2]int    `json:"paddles"` // 球拍顶端所在行
	Score   [2]int    `json:"score"`
	BallX   int       `json:"ball_x"`
	BallY   int       `json:"ball_y"`
	DX      int       `json:"dx"`
	DY      int       `json:"dy"`
	Rally   int       `json:"rally"`
	Last    string    `json:"last"`
}

// Game 回合制乒乓，球朝谁飞谁操作一步
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Pong" }
func (g *Game) Routing() game.Routing { return game.RouteByKey }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{Start: game.StartChallenge, MinPlayers: 2, MaxPlayers: 2, MinBet: 0, MaxBet: 5000}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(rt game.Runtime, s *session.Session, _ []game.Entry) error {
	ids := s.IDs()
	if len(ids) != 2 {
		return codes.Validation("pong needs exactly two players")
	}
	mid := (Height - PaddleLen) / 2
	t := &state{Order: [2]string{ids[0], ids[1]}, Paddles: [2]int{mid, mid}}
	dx := -1
	if rt.Rand().Intn(2) == 1 {
		dx = 1
	}
	t.serve(dx, rt.Rand().Intn(2)*2-1)
	s.State = t
	return nil
}

func (t *state) serve(dx, dy int) {
	t.BallX, t.BallY = Width/2, Height/2
	t.DX, t.DY = dx, dy
	t.Rally = 0
}

// side 球飞向的一方
func (t *state) side() int {
	if t.DX < 0 {
		return 0
	}
	return 1
}

func (t *state) covers(side, y int) bool {
	top := t.Paddles[side]
	return y >= top && y < top+PaddleLen
}

func (g *Game) LegalActions(s *session.Session, actor string) []game.Choice {
	t := st(s)
	if g.IsTerminal(s) || actor != t.Order[t.side()] {
		return nil
	}
	out := make([]game.Choice, 0, 3)
	if t.Paddles[t.side()] > 0 {
		out = append(out, game.Choice{ID: actUp, Label: "▲"})
	}
	out = append(out, game.Choice{ID: actStay, Label: "■"})
	if t.Paddles[t.side()] < Height-PaddleLen {
		out = append(out, game.Choice{ID: actDown, Label: "▼"})
	}
	return out
}

func (g *Game) ApplyAction(_ game.Runtime, s *session.Session, actor, action string) error {
	t := st(s)
	me := t.side()
	switch action {
	case actUp:
		t.Paddles[me] = max(t.Paddles[me]-1, 0)
	case actDown:
		t.Paddles[me] = min(t.Paddles[me]+1, Height-PaddleLen)
	case actStay:
	default:
		return codes.Illegal("unknown action %q", action)
	}
	t.step(s)
	return nil
}

// step 球前进一格，碰上下边反弹；到达底线时看球拍是否接住
func (t *state) step(s *session.Session) {
	ny := t.BallY + t.DY
	if ny < 0 || ny >= Height {
		t.DY = -t.DY
		ny = t.BallY + t.DY
	}
	nx := t.BallX + t.DX
	if nx > 0 && nx < Width-1 {
		t.BallX, t.BallY = nx, ny
		return
	}

	me := t.side()
	if t.covers(me, ny) {
		t.BallY = ny
		t.DX = -t.DX
		t.Rally++
		t.Last = s.Name(t.Order[me]) + " returns"
		return
	}
	other := 1 - me
	t.Score[other]++
	t.Last = s.Name(t.Order[other]) + " scores"
	// 球继续飞向丢分方
	t.serve(t.DX, t.DY)
}

func (g *Game) IsTerminal(s *session.Session) bool {
	t := st(s)
	return t.Score[0] >= WinScore || t.Score[1] >= WinScore
}

func (g *Game) NextActor(s *session.Session) (string, bool) {
	if g.IsTerminal(s) {
		return "", false
	}
	t := st(s)
	return t.Order[t.side()], true
}

func (g *Game) Resolve(rt game.Runtime, s *session.Session) { rt.Complete(s) }

func (t *state) winner() string {
	switch {
	case t.Score[0] >= WinScore:
		return t.Order[0]
	case t.Score[1] >= WinScore:
		return t.Order[1]
	}
	return ""
}

func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	order := t.Order[:]
	winners := order
	if w := t.winner(); w != "" {
		winners = []string{w}
	}
	return game.SplitPot(order, s.Bets, winners)
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	return game.Outcome{WinnerID: t.winner(), FinalScore: fmt.Sprintf("%d-%d", t.Score[0], t.Score[1])}
}

// Court 文本球场
func (t *state) Court() string {
	var sb strings.Builder
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			switch {
			case x == 0 && t.covers(0, y), x == Width-1 && t.covers(1, y):
				sb.WriteByte('|')
			case x == t.BallX && y == t.BallY:
				sb.WriteByte('o')
			default:
				sb.WriteByte('.')
			}
		}
		if y < Height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title(), Body: t.Court()}
	v.AddField("Score", "%s %d - %d %s", s.Name(t.Order[0]), t.Score[0], t.Score[1], s.Name(t.Order[1]))
	if t.Last != "" {
		v.AddField("Last", "%s", t.Last)
	}
	if w := t.winner(); w != "" {
		v.Footer = s.Name(w) + " wins!"
		return v
	}
	mover := t.Order[t.side()]
	v.Footer = s.Name(mover) + " to move"
	v.Choices = g.LegalActions(s, mover)
	return v
}

func (g *Game) TurnTimeout() time.Duration { return turnTimeout }

func (g *Game) AutoAction(*session.Session, string) string { return actStay }
