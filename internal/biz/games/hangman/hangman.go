package hangman

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/xrand"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	Kind session.Kind = "hangman"

	lives   = 6
	actPass = "pass"
)

//go:embed words.yaml
var wordsYAML []byte

// Category 同类词
type Category struct {
	Name  string   `yaml:"name"`
	Words []string `yaml:"words"`
}

// Catalog 词库
type Catalog struct {
	Categories []Category `yaml:"categories"`
}

// LoadCatalog 解析 YAML 词库，空分类丢弃
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("hangman: parse words: %w", err)
	}
	c.Categories = lo.Filter(c.Categories, func(cat Category, _ int) bool { return len(cat.Words) > 0 })
	if len(c.Categories) == 0 {
		return nil, fmt.Errorf("hangman: empty word list")
	}
	return &c, nil
}

// Pick 随机选一个分类再选词
func (c *Catalog) Pick(src xrand.Source) (category, word string) {
	cat := xrand.Pick(src, c.Categories)
	return cat.Name, strings.ToLower(xrand.Pick(src, cat.Words))
}

type state struct {
	Word     string   `json:"word"`
	Category string   `json:"category"`
	Guessed  []string `json:"guessed"`
	Misses   []string `json:"misses"`
	Lives    int      `json:"lives"`
	Order    []string `json:"order"`
	Current  string   `json:"current"`
	Passes   int      `json:"passes"` // 连续 pass 次数
	Solver   string   `json:"solver"`
	Failed   bool     `json:"failed"`
}

// Game 猜词，轮流猜字母，猜出最后一个字母的人赢得奖池
type Game struct {
	catalog *Catalog
}

// New 使用内置词库
func New() *Game {
	c, err := LoadCatalog(wordsYAML)
	if err != nil {
		panic(err)
	}
	return &Game{catalog: c}
}

// NewWithCatalog 自定义词库
func NewWithCatalog(c *Catalog) *Game { return &Game{catalog: c} }

func (g *Game) Kind() session.Kind    { return Kind }
func (g *Game) Title() string         { return "Hangman" }
func (g *Game) Routing() game.Routing { return game.RouteByChannel }

func (g *Game) Rules(string) game.Rules {
	return game.Rules{Start: game.StartLobby, MinPlayers: 1, MaxPlayers: 6, MinBet: 0, MaxBet: 1000}
}

func st(s *session.Session) *state { return s.State.(*state) }

func (g *Game) Setup(rt game.Runtime, s *session.Session, _ []game.Entry) error {
	cat, word := g.catalog.Pick(rt.Rand())
	t := &state{Word: word, Category: cat, Lives: lives, Order: s.IDs()}
	t.Current = t.Order[0]
	s.State = t
	return nil
}

func (t *state) tried(letter string) bool {
	return lo.Contains(t.Guessed, letter) || lo.Contains(t.Misses, letter)
}

func (t *state) solved() bool {
	for _, r := range t.Word {
		if r >= 'a' && r <= 'z' && !lo.Contains(t.Guessed, string(r)) {
			return false
		}
	}
	return true
}

// Masked 未猜出的字母显示为 _
func (t *state) Masked() string {
	out := make([]string, 0, len(t.Word))
	for _, r := range t.Word {
		l := string(r)
		if r < 'a' || r > 'z' || lo.Contains(t.Guessed, l) {
			out = append(out, strings.ToUpper(l))
		} else {
			out = append(out, "_")
		}
	}
	return strings.Join(out, " ")
}

func (g *Game) LegalActions(s *session.Session, actor string) []game.Choice {
	t := st(s)
	if g.IsTerminal(s) || actor != t.Current {
		return nil
	}
	var out []game.Choice
	for r := 'a'; r <= 'z'; r++ {
		if l := string(r); !t.tried(l) {
			out = append(out, game.Choice{ID: "guess:" + l, Label: strings.ToUpper(l)})
		}
	}
	return append(out, game.Choice{ID: actPass, Label: "Pass"})
}

func (g *Game) ApplyAction(_ game.Runtime, s *session.Session, actor, action string) error {
	t := st(s)
	if action == actPass {
		t.Passes++
		// 所有人连续两轮都 pass 视为放弃
		if t.Passes >= 2*len(t.Order) {
			t.Failed = true
			return nil
		}
		t.Current, _ = game.NextEligible(t.Order, actor, func(string) bool { return true })
		return nil
	}

	letter, ok := strings.CutPrefix(action, "guess:")
	if !ok || len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
		return codes.Illegal("unknown action %q", action)
	}
	if t.tried(letter) {
		return codes.Illegal("%s was already guessed", strings.ToUpper(letter))
	}
	t.Passes = 0
	if strings.Contains(t.Word, letter) {
		t.Guessed = append(t.Guessed, letter)
		if t.solved() {
			t.Solver = actor
			return nil
		}
	} else {
		t.Misses = append(t.Misses, letter)
		if t.Lives--; t.Lives <= 0 {
			t.Failed = true
			return nil
		}
	}
	t.Current, _ = game.NextEligible(t.Order, actor, func(string) bool { return true })
	return nil
}

func (g *Game) IsTerminal(s *session.Session) bool {
	t := st(s)
	return t.Solver != "" || t.Failed
}

func (g *Game) NextActor(s *session.Session) (string, bool) {
	if g.IsTerminal(s) {
		return "", false
	}
	return st(s).Current, true
}

func (g *Game) Resolve(rt game.Runtime, s *session.Session) { rt.Complete(s) }

// Settle 猜出者独得奖池；命用完则入场费归庄
func (g *Game) Settle(s *session.Session) []game.SettleLine {
	t := st(s)
	var winners []string
	if t.Solver != "" {
		winners = []string{t.Solver}
	}
	return game.SplitPot(t.Order, s.Bets, winners)
}

func (g *Game) Outcome(s *session.Session) game.Outcome {
	t := st(s)
	return game.Outcome{
		WinnerID:   t.Solver,
		FinalScore: fmt.Sprintf("%s, %d lives left", strings.ToUpper(t.Word), t.Lives),
	}
}

func (g *Game) Render(s *session.Session) game.View {
	t := st(s)
	v := game.View{Title: g.Title(), Body: t.Masked()}
	v.AddField("Category", "%s", t.Category)
	v.AddField("Lives", "%s", strings.Repeat("♥", max(t.Lives, 0))+strings.Repeat("♡", lives-max(t.Lives, 0)))
	if len(t.Misses) > 0 {
		v.AddField("Misses", "%s", strings.ToUpper(strings.Join(t.Misses, " ")))
	}
	if pot := s.Pot(); pot > 0 {
		v.AddField("Pot", "%d", pot)
	}
	switch {
	case t.Solver != "":
		v.Footer = fmt.Sprintf("%s solved it: %s", s.Name(t.Solver), strings.ToUpper(t.Word))
	case t.Failed:
		v.Footer = "Out of lives. The word was " + strings.ToUpper(t.Word)
	default:
		v.Footer = s.Name(t.Current) + " to guess"
		v.Choices = g.LegalActions(s, t.Current)
	}
	return v
}

// TurnTimeout 使用引擎默认值
func (g *Game) TurnTimeout() time.Duration { return 0 }

// AutoAction 超时视为 pass
func (g *Game) AutoAction(*session.Session, string) string { return actPass }
