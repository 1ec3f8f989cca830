package cards

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/yola1107/parlor/library/xrand"
)

type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

var Suits = []Suit{Clubs, Diamonds, Hearts, Spades}

func (s Suit) String() string {
	switch s {
	case Clubs:
		return "♣"
	case Diamonds:
		return "♦"
	case Hearts:
		return "♥"
	case Spades:
		return "♠"
	}
	return "?"
}

// Name 花色英文名
func (s Suit) Name() string {
	return [...]string{"clubs", "diamonds", "hearts", "spades"}[s%4]
}

// Red 红色花色
func (s Suit) Red() bool { return s == Diamonds || s == Hearts }

// Rank 1=A ... 13=K
type Rank uint8

const (
	Ace   Rank = 1
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
)

func (r Rank) String() string {
	switch r {
	case Ace:
		return "A"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	}
	return fmt.Sprintf("%d", r)
}

// High A 作为最大牌的比较值
func (r Rank) High() int {
	if r == Ace {
		return 14
	}
	return int(r)
}

type Card struct {
	Rank Rank `json:"r"`
	Suit Suit `json:"s"`
}

func (c Card) String() string { return c.Rank.String() + c.Suit.String() }

// Code ASCII 编码，例如 "10H" "QS"，用于操作ID
func (c Card) Code() string {
	return c.Rank.String() + string("CDHS"[c.Suit%4])
}

// Join 以空格拼接
func Join(cs []Card) string {
	return strings.Join(lo.Map(cs, func(c Card, _ int) string { return c.String() }), " ")
}

// Deck 牌堆，Cards 可序列化
type Deck struct {
	Cards []Card `json:"cards"`
	Packs int    `json:"packs"`

	src xrand.Source
}

// Fresh 未洗的 packs 副牌
func Fresh(packs int) []Card {
	packs = max(packs, 1)
	out := make([]Card, 0, 52*packs)
	for i := 0; i < packs; i++ {
		for _, s := range Suits {
			for r := Ace; r <= King; r++ {
				out = append(out, Card{Rank: r, Suit: s})
			}
		}
	}
	return out
}

// NewDeck 洗好的牌堆
func NewDeck(src xrand.Source, packs int) *Deck {
	d := &Deck{Packs: max(packs, 1), src: src}
	d.refill()
	return d
}

// Stacked 按给定顺序发牌，测试用
func Stacked(cs ...Card) *Deck {
	return &Deck{Cards: append([]Card(nil), cs...), Packs: 1, src: xrand.Crypto()}
}

// Bind 反序列化后重新绑定随机源
func (d *Deck) Bind(src xrand.Source) { d.src = src }

func (d *Deck) refill() {
	if d.src == nil {
		d.src = xrand.Crypto()
	}
	d.Cards = Fresh(d.Packs)
	xrand.Shuffle(d.src, d.Cards)
}

// Draw 摸一张，牌堆空时换一副新牌
func (d *Deck) Draw() Card {
	if len(d.Cards) == 0 {
		d.refill()
	}
	c := d.Cards[0]
	d.Cards = d.Cards[1:]
	return c
}

// DrawN 连摸 n 张
func (d *Deck) DrawN(n int) []Card {
	out := make([]Card, n)
	for i := range out {
		out[i] = d.Draw()
	}
	return out
}

func (d *Deck) Len() int { return len(d.Cards) }

// C 由 "AS" "10H" "QD" 解析，测试摆牌用
func C(s string) Card {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		panic("cards: bad card " + s)
	}
	rs, ss := s[:len(s)-1], s[len(s)-1]
	var r Rank
	switch rs {
	case "A":
		r = Ace
	case "J":
		r = Jack
	case "Q":
		r = Queen
	case "K":
		r = King
	default:
		var n int
		if _, err := fmt.Sscanf(rs, "%d", &n); err != nil || n < 2 || n > 10 {
			panic("cards: bad rank " + s)
		}
		r = Rank(n)
	}
	suit, ok := map[byte]Suit{'C': Clubs, 'D': Diamonds, 'H': Hearts, 'S': Spades}[ss]
	if !ok {
		panic("cards: bad suit " + s)
	}
	return Card{Rank: r, Suit: suit}
}

// Cs 批量解析
func Cs(ss ...string) []Card {
	return lo.Map(ss, func(s string, _ int) Card { return C(s) })
}
