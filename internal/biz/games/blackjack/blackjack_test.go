package blackjack

import (
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/parlor/internal/biz/cards"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/game/gametest"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/xrand"
	"github.com/yola1107/parlor/pkg/codes"
)

func TestScoreAceFlex(t *testing.T) {
	cases := []struct {
		hand  []string
		total int
		soft  bool
	}{
		{[]string{"AS", "9D"}, 20, true},
		{[]string{"10S", "AD"}, 21, true},
		{[]string{"AS", "KD"}, 21, true},
		{[]string{"AS", "AD", "9C"}, 21, true},
		{[]string{"AS", "KD", "5C"}, 16, false},
		{[]string{"AS", "6H"}, 17, true},
		{[]string{"AS", "AH", "AD", "AC"}, 14, true},
		{[]string{"KS", "QH", "2D"}, 22, false},
	}
	for _, c := range cases {
		total, soft := Score(cards.Cs(c.hand...))
		assert.Equal(t, c.total, total, c.hand)
		assert.Equal(t, c.soft, soft, c.hand)
	}
	assert.True(t, IsNatural(cards.Cs("AS", "JD")))
	assert.False(t, IsNatural(cards.Cs("7S", "7D", "7C")))
}

// deal order: p1, p2, ..., dealer, p1, p2, ..., dealer, then the shoe
func setup(t *testing.T, s *session.Session, stack ...string) *Game {
	t.Helper()
	g := New()
	require.NoError(t, g.deal(s, cards.Stacked(cards.Cs(stack...)...)))
	return g
}

func TestNaturalPaysThreeToTwo(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("alice", 100)...)
	// dealer 5 6 draws K to a three-card 21
	g := setup(t, s, "AS", "5D", "KH", "6C", "KS")

	_, ok := g.NextActor(s)
	assert.False(t, ok, "a natural stands automatically")

	rt := gametest.New(xrand.Seeded(1))
	require.NoError(t, s.Advance(session.PhaseResolving))
	g.Resolve(rt, s)
	rt.Flush()
	require.Equal(t, 1, rt.Completed)
	require.True(t, g.IsTerminal(s))
	dealer := st(s).Dealer
	require.Len(t, dealer, 3)
	total, _ := Score(dealer)
	assert.Equal(t, 21, total)

	lines := g.Settle(s)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(250), lines[0].Payout)
	assert.Equal(t, int64(150), lines[0].Net)
	assert.Equal(t, "alice", g.Outcome(s).WinnerID)
}

func TestTurnOrderAndBust(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("a", 10, "b", 20)...)
	// a: 10 6, b: 9 9, dealer: 10 7; shoe: K (a busts), then spare
	g := setup(t, s, "10S", "9S", "10H", "6D", "9D", "7H", "KC", "2C")
	rt := gametest.New(xrand.Seeded(1))

	next, ok := g.NextActor(s)
	require.True(t, ok)
	assert.Equal(t, "a", next)
	assert.Empty(t, g.LegalActions(s, "b"), "not b's turn")
	assert.True(t, game.Contains(g.LegalActions(s, "a"), actDouble))

	require.NoError(t, g.ApplyAction(rt, s, "a", actHit))
	assert.True(t, st(s).Hands["a"].Busted)
	next, _ = g.NextActor(s)
	assert.Equal(t, "b", next)
	assert.False(t, g.IsTerminal(s))

	require.NoError(t, g.ApplyAction(rt, s, "b", actStand))
	_, ok = g.NextActor(s)
	assert.False(t, ok)

	g.Resolve(rt, s)
	rt.Flush()
	lines := g.Settle(s)
	assert.Equal(t, game.ResultLoss, lines[0].Result)
	assert.Equal(t, int64(40), lines[1].Payout, "18 beats 17")
}

func TestAllBustIsTerminal(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("a", 10)...)
	g := setup(t, s, "10S", "9H", "6D", "7H", "KC")
	require.NoError(t, g.ApplyAction(gametest.New(nil), s, "a", actHit))
	assert.True(t, g.IsTerminal(s))
	assert.Equal(t, int64(-10), g.Settle(s)[0].Net)
}

func TestDoubleDown(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("a", 50)...)
	g := setup(t, s, "5S", "10H", "6D", "8H", "KC", "4C")
	rt := gametest.New(nil)

	require.NoError(t, g.ApplyAction(rt, s, "a", actDouble))
	assert.Equal(t, int64(100), s.Bets["a"])
	assert.Equal(t, int64(50), rt.Debits["a"])
	assert.Equal(t, 21, st(s).Hands["a"].total())
	_, ok := g.NextActor(s)
	assert.False(t, ok)

	g.Resolve(rt, s)
	rt.Flush()
	// dealer 18 vs 21
	assert.Equal(t, int64(200), g.Settle(s)[0].Payout)
}

func TestDoubleWithoutFundsDoesNotMutate(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("a", 50)...)
	g := setup(t, s, "5S", "10H", "6D", "8H", "KC")
	rt := gametest.New(nil)
	rt.DebitErr = codes.ErrInsufficientFunds

	err := g.ApplyAction(rt, s, "a", actDouble)
	assert.True(t, errors.Is(err, codes.ErrInsufficientFunds))
	assert.Equal(t, int64(50), s.Bets["a"])
	assert.Len(t, st(s).Hands["a"].Cards, 2)
}

func TestDealerNaturalBeatsTwentyOne(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("a", 10)...)
	g := setup(t, s, "5S", "AH", "6D", "KH", "10C")
	rt := gametest.New(nil)
	require.NoError(t, g.ApplyAction(rt, s, "a", actHit))
	assert.Equal(t, 21, st(s).Hands["a"].total())

	g.Resolve(rt, s)
	rt.Flush()
	line := g.Settle(s)[0]
	assert.Equal(t, game.ResultLoss, line.Result)
	assert.Equal(t, "dealer natural", line.Note)
}

func TestRenderHidesHoleCard(t *testing.T) {
	s := gametest.NewSession(Kind, gametest.Entries("a", 10)...)
	g := setup(t, s, "5S", "AH", "6D", "KH")
	v := g.Render(s)
	assert.Contains(t, v.Text(), "A♥ ??")
	assert.NotContains(t, v.Text(), "K♥")
}
