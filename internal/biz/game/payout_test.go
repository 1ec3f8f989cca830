package game

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestByOdds(t *testing.T) {
	natural := ByOdds("p", 100, decimal.NewFromFloat(1.5), "natural")
	assert.Equal(t, int64(250), natural.Payout)
	assert.Equal(t, int64(150), natural.Net)
	assert.Equal(t, ResultWin, natural.Result)

	straight := ByOdds("p", 10, decimal.NewFromInt(35), "")
	assert.Equal(t, int64(360), straight.Payout)

	push := ByOdds("p", 40, Push, "")
	assert.Equal(t, int64(40), push.Payout)
	assert.Zero(t, push.Net)

	loss := ByOdds("p", 40, Lose, "")
	assert.Zero(t, loss.Payout)
	assert.Equal(t, int64(-40), loss.Net)

	banker := ByOdds("p", 15, decimal.RequireFromString("0.95"), "")
	assert.Equal(t, int64(29), banker.Payout, "commission rounds down")
}

func TestSplitPot(t *testing.T) {
	order := []string{"a", "b", "c"}
	bets := map[string]int64{"a": 10, "b": 10, "c": 11}

	lines := SplitPot(order, bets, []string{"c", "b"})
	assert.Equal(t, int64(0), lines[0].Payout)
	assert.Equal(t, int64(16), lines[1].Payout, "remainder goes to the earlier seat")
	assert.Equal(t, int64(15), lines[2].Payout)

	var credited, debited int64
	for _, l := range lines {
		credited += l.Payout
		debited += l.Stake
	}
	assert.Equal(t, debited, credited)

	none := SplitPot(order, bets, nil)
	for _, l := range none {
		assert.Equal(t, ResultLoss, l.Result)
	}
}

func TestNextEligible(t *testing.T) {
	order := []string{"a", "b", "c"}
	busted := map[string]bool{"b": true}
	ok := func(id string) bool { return !busted[id] }

	next, found := NextEligible(order, "a", ok)
	assert.True(t, found)
	assert.Equal(t, "c", next)

	next, _ = NextEligible(order, "c", ok)
	assert.Equal(t, "a", next, "wraps around")

	next, _ = NextEligible(order, "", ok)
	assert.Equal(t, "a", next)

	_, found = NextEligible(order, "a", func(string) bool { return false })
	assert.False(t, found)
}
