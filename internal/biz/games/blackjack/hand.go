package blackjack

import (
	"github.com/yola1107/parlor/internal/biz/cards"
)

// Score A 先按 1 计，能加 10 不爆则按 11。soft 表示有 A 按 11 计
func Score(cs []cards.Card) (total int, soft bool) {
	aces := 0
	for _, c := range cs {
		switch {
		case c.Rank == cards.Ace:
			aces++
			total++
		case c.Rank >= 10:
			total += 10
		default:
			total += int(c.Rank)
		}
	}
	if aces > 0 && total+10 <= 21 {
		return total + 10, true
	}
	return total, false
}

// IsNatural 两张牌 21 点
func IsNatural(cs []cards.Card) bool {
	t, _ := Score(cs)
	return len(cs) == 2 && t == 21
}

type hand struct {
	Cards   []cards.Card `json:"cards"`
	Stood   bool         `json:"stood"`
	Busted  bool         `json:"busted"`
	Doubled bool         `json:"doubled"`
	Natural bool         `json:"natural"`
}

func (h *hand) total() int {
	t, _ := Score(h.Cards)
	return t
}

func (h *hand) done() bool { return h.Stood || h.Busted }

func (h *hand) add(c cards.Card) {
	h.Cards = append(h.Cards, c)
	switch t := h.total(); {
	case t > 21:
		h.Busted = true
	case t == 21:
		h.Stood = true
	}
}
