package videopoker

import (
	"sort"

	"github.com/paulhankin/poker"
	"github.com/shopspring/decimal"

	"github.com/yola1107/parlor/internal/biz/cards"
)

// HandRank Jacks or Better 牌型
type HandRank int

const (
	Nothing HandRank = iota
	JacksOrBetter
	TwoPair
	Trips
	Straight
	Flush
	FullHouse
	Quads
	StraightFlush
	RoyalFlush
)

var rankNames = [...]string{
	"Nothing", "Jacks or Better", "Two Pair", "Three of a Kind", "Straight",
	"Flush", "Full House", "Four of a Kind", "Straight Flush", "Royal Flush",
}

func (r HandRank) String() string {
	if r < 0 || int(r) >= len(rankNames) {
		return "Unknown"
	}
	return rankNames[r]
}

// paytable 净赔率，Nothing 输掉底注
var paytable = map[HandRank]decimal.Decimal{
	RoyalFlush:    decimal.NewFromInt(249),
	StraightFlush: decimal.NewFromInt(49),
	Quads:         decimal.NewFromInt(24),
	FullHouse:     decimal.NewFromInt(8),
	Flush:         decimal.NewFromInt(5),
	Straight:      decimal.NewFromInt(3),
	Trips:         decimal.NewFromInt(2),
	TwoPair:       decimal.NewFromInt(1),
	JacksOrBetter: decimal.Zero,
	Nothing:       decimal.NewFromInt(-1),
}

// Odds 牌型对应净赔率
func (r HandRank) Odds() decimal.Decimal { return paytable[r] }

// Classify 五张牌型
func Classify(cs []cards.Card) HandRank {
	if len(cs) != 5 {
		return Nothing
	}
	counts := map[cards.Rank]int{}
	flush := true
	highs := make([]int, 0, 5)
	for i, c := range cs {
		counts[c.Rank]++
		if i > 0 && c.Suit != cs[0].Suit {
			flush = false
		}
		highs = append(highs, c.Rank.High())
	}
	sort.Ints(highs)

	straight, royal := false, false
	if len(counts) == 5 {
		switch {
		case highs[4]-highs[0] == 4:
			straight, royal = true, highs[0] == 10
		case highs[4] == 14 && highs[3] == 5:
			straight = true // A-2-3-4-5
		}
	}

	var pairs, trips, quads int
	highPair := false
	for r, n := range counts {
		switch n {
		case 2:
			pairs++
			highPair = highPair || r.High() >= 11
		case 3:
			trips++
		case 4:
			quads++
		}
	}

	switch {
	case straight && flush && royal:
		return RoyalFlush
	case straight && flush:
		return StraightFlush
	case quads == 1:
		return Quads
	case trips == 1 && pairs == 1:
		return FullHouse
	case flush:
		return Flush
	case straight:
		return Straight
	case trips == 1:
		return Trips
	case pairs == 2:
		return TwoPair
	case highPair:
		return JacksOrBetter
	}
	return Nothing
}

// Describe 牌面文字描述，失败时返回空
func Describe(cs []cards.Card) string {
	hand := make([]poker.Card, 0, len(cs))
	for _, c := range cs {
		pc, err := poker.MakeCard(poker.Suit(c.Suit), poker.Rank(c.Rank))
		if err != nil {
			return ""
		}
		hand = append(hand, pc)
	}
	d, err := poker.Describe(hand)
	if err != nil {
		return ""
	}
	return d
}
