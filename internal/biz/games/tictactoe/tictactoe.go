package tictactoe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "tictactoe"

	actResign   = "resign"
	turnTimeout = 60 * time.Second
)

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

type state struct {
	Board   [9]string `json:"board"`
	Order   []string  `json:"order"` // [X, O]
	Current int       `json:"current"`
	Winner  string    `json:"winner"`
	Draw    bool      `json:"draw"`
	Resign  bool      `json:"resign"`
}

func (t *state) mark(i int) string { return [2]string{"X", "O"}[i] }

// Game 井字棋，发起者执 X 先手
type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Tic-Tac-Toe" }
func (g *Game) Routing() game.Routing { return game.RouteByKey }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{Start: game.StartChallenge, MinPlayers: 2, MaxPlayers: 2, MinBet: 0, MaxBet: 5000}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(_ game.Runtime, s *session.Session, _ []game.Entry) error {
	if len(s.Participants) != 2 {
		return codes.Validation("tic-tac-toe needs exactly two players")
	}
	s.State = &state{Order: s.IDs()}
	return nil
}

func (g *Game) LegalActions(s *session.Session, actor string) []game.Choice {
	t := st(s)
	if g.IsTerminal(s) || actor != t.Order[t.Current] {
		return nil
	}
	var out []game.Choice
	for i, c := range t.Board {
		if c == "" {
			out = append(out, game.Choice{ID: "place:" + strconv.Itoa(i), Label: strconv.Itoa(i + 1)})
		}
	}
	return append(out, game.Choice{ID: actResign, Label: "Resign"})
}

func (g *Game) ApplyAction(_ game.Runtime, s *session.Session, actor, action string) error {
	t := st(s)
	if action == actResign {
		t.Winner, t.Resign = t.Order[1-t.Current], true
		return nil
	}
	cell, ok := strings.CutPrefix(action, "place:")
	if !ok {
		return codes.Illegal("unknown action %q", action)
	}
	i, err := strconv.Atoi(cell)
	if err != nil || i < 0 || i > 8 || t.Board[i] != "" {
		return codes.Illegal("cell %s is not free", cell)
	}
	t.Board[i] = t.mark(t.Current)
	switch {
	case winLine(t.Board) != "":
		t.Winner = actor
	case full(t.Board):
		t.Draw = true
	default:
		t.Current = 1 - t.Current
	}
	return nil
}

func winLine(b [9]string) string {
	for _, l := range lines {
		if b[l[0]] != "" && b[l[0]] == b[l[1]] && b[l[1]] == b[l[2]] {
			return b[l[0]]
		}
	}
	return ""
}

func full(b [9]string) bool {
	for _, c := range b {
		if c == "" {
			return false
		}
	}
	return true
}

func (g *Game) IsTerminal(s *session.Session) bool {
	t := st(s)
	return t.Winner != "" || t.Draw
}

func (g *Game) NextActor(s *session.Session) (string, bool) {
	if g.IsTerminal(s) {
		return "", false
	}
	t := st(s)
	return t.Order[t.Current], true
}

func (g *Game) Resolve(rt game.Runtime, s *session.Session) { rt.Complete(s) }

// Settle 胜者拿走奖池，平局各退本金
func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	winners := t.Order
	if t.Winner != "" {
		winners = []string{t.Winner}
	}
	return game.SplitPot(t.Order, s.Bets, winners)
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	o := game.Outcome{WinnerID: t.Winner, FinalScore: "draw"}
	if t.Winner != "" {
		o.FinalScore = s.Name(t.Winner) + " wins"
		if t.Resign {
			o.FinalScore += " by forfeit"
		}
	}
	return o
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	var sb strings.Builder
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := t.Board[r*3+c]
			if v == "" {
				v = strconv.Itoa(r*3 + c + 1)
			}
			sb.WriteString(v)
			if c < 2 {
				sb.WriteString(" | ")
			}
		}
		if r < 2 {
			sb.WriteString("\n")
		}
	}
	v := game.View{Title: g.Title(), Body: sb.String()}
	v.AddField("X", "%s", s.Name(t.Order[0]))
	v.AddField("O", "%s", s.Name(t.Order[1]))
	if pot := s.Pot(); pot > 0 {
		v.AddField("Pot", "%d", pot)
	}
	switch {
	case t.Resign:
		v.Footer = fmt.Sprintf("%s resigned, %s wins!", s.Name(t.Order[t.Current]), s.Name(t.Winner))
	case t.Winner != "":
		v.Footer = fmt.Sprintf("%s wins!", s.Name(t.Winner))
	case t.Draw:
		v.Footer = "It's a draw"
	default:
		v.Footer = fmt.Sprintf("%s (%s) to move", s.Name(t.Order[t.Current]), t.mark(t.Current))
		v.Choices = g.LegalActions(s, t.Order[t.Current])
	}
	return v
}

func (g *Game) TurnTimeout() time.Duration { return turnTimeout }

// AutoAction 超时判负
func (g *Game) AutoAction(*session.Session, string) string { return actResign }
