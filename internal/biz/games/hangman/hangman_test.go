package hangman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/game/gametest"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/xrand"
)

func TestEmbeddedCatalog(t *testing.T) {
	c, err := LoadCatalog(wordsYAML)
	require.NoError(t, err)
	require.NotEmpty(t, c.Categories)
	for _, cat := range c.Categories {
		assert.NotEmpty(t, cat.Words, cat.Name)
	}

	_, err = LoadCatalog([]byte("categories: []"))
	assert.Error(t, err)
}

func newGame(t *testing.T, word string, entries ...game.Entry) (*Game, *session.Session) {
	t.Helper()
	g := NewWithCatalog(&Catalog{Categories: []Category{{Name: "test", Words: []string{word}}}})
	s := gametest.NewSession(Kind, entries...)
	require.NoError(t, g.Setup(gametest.New(xrand.Seeded(1)), s, nil))
	return g, s
}

func act(t *testing.T, g *Game, s *session.Session, actor, action string) {
	t.Helper()
	require.True(t, game.Contains(g.LegalActions(s, actor), action), "%s %s", actor, action)
	require.NoError(t, g.ApplyAction(gametest.New(nil), s, actor, action))
}

func TestSolverTakesPot(t *testing.T) {
	g, s := newGame(t, "moon", gametest.Entries("a", 20, "b", 20)...)
	assert.Equal(t, "_ _ _ _", st(s).Masked())

	act(t, g, s, "a", "guess:o")
	assert.Equal(t, "_ O O _", st(s).Masked())
	act(t, g, s, "b", "guess:x")
	assert.Equal(t, lives-1, st(s).Lives)
	act(t, g, s, "a", "guess:m")
	act(t, g, s, "b", "guess:n")

	require.True(t, g.IsTerminal(s))
	assert.Equal(t, "b", g.Outcome(s).WinnerID)
	lines := g.Settle(s)
	assert.Equal(t, int64(-20), lines[0].Net)
	assert.Equal(t, int64(40), lines[1].Payout)
}

func TestOutOfLivesHouseKeeps(t *testing.T) {
	g, s := newGame(t, "zz", gametest.Entries("a", 10)...)
	for _, l := range []string{"a", "b", "c", "d", "e", "f"} {
		act(t, g, s, "a", "guess:"+l)
	}
	require.True(t, g.IsTerminal(s))
	assert.True(t, st(s).Failed)
	assert.Empty(t, g.Outcome(s).WinnerID)
	assert.Equal(t, int64(0), g.Settle(s)[0].Payout)
}

func TestRepeatedGuessRejected(t *testing.T) {
	g, s := newGame(t, "moon", gametest.Entries("a", 0)...)
	act(t, g, s, "a", "guess:o")
	assert.False(t, game.Contains(g.LegalActions(s, "a"), "guess:o"))
	assert.Error(t, g.ApplyAction(gametest.New(nil), s, "a", "guess:o"))
	assert.Error(t, g.ApplyAction(gametest.New(nil), s, "a", "guess:9"))
}

func TestIdlePassesEndGame(t *testing.T) {
	g, s := newGame(t, "moon", gametest.Entries("a", 5, "b", 5)...)
	act(t, g, s, "a", g.AutoAction(s, "a"))
	act(t, g, s, "b", g.AutoAction(s, "b"))
	act(t, g, s, "a", g.AutoAction(s, "a"))
	require.False(t, g.IsTerminal(s))
	act(t, g, s, "b", g.AutoAction(s, "b"))
	assert.True(t, st(s).Failed)
}
