package game

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	ResultWin   = "win"
	ResultPush  = "push"
	ResultLoss  = "loss"
	ResultBonus = "bonus"
)

var (
	// Lose 净赔率 -1: 本金不退
	Lose = decimal.NewFromInt(-1)
	// Push 净赔率 0: 退回本金
	Push = decimal.Zero
	// EvenMoney 1 赔 1
	EvenMoney = decimal.NewFromInt(1)
)

// SettleLine 单个参与者的结算。Payout 为实际入账金额（本金在开局时已扣）
type SettleLine struct {
	ParticipantID string `json:"participant_id"`
	Stake         int64  `json:"stake"`
	Payout        int64  `json:"payout"`
	Net           int64  `json:"net"`
	Result        string `json:"result"`
	Note          string `json:"note,omitempty"`
}

// ByOdds 按净赔率结算: 赢 = 本金 + floor(本金 × 赔率)，平 = 本金，输 = 0
func ByOdds(id string, stake int64, odds decimal.Decimal, note string) SettleLine {
	line := SettleLine{ParticipantID: id, Stake: stake, Note: note}
	switch {
	case odds.LessThanOrEqual(Lose):
		line.Result = ResultLoss
	case odds.IsNegative():
		// 部分退还，例如投降
		line.Payout = decimal.NewFromInt(stake).Mul(decimal.NewFromInt(1).Add(odds)).Floor().IntPart()
		line.Result = ResultLoss
	case odds.IsZero():
		line.Payout = stake
		line.Result = ResultPush
	default:
		line.Payout = stake + decimal.NewFromInt(stake).Mul(odds).Floor().IntPart()
		line.Result = ResultWin
	}
	line.Net = line.Payout - stake
	return line
}

// SplitPot 奖池在 winners 间平分，余数给座位靠前的赢家；没有赢家时全部判输
func SplitPot(order []string, bets map[string]int64, winners []string) []SettleLine {
	var pot int64
	for _, id := range order {
		pot += bets[id]
	}

	winSet := lo.SliceToMap(winners, func(id string) (string, bool) { return id, true })
	seated := lo.Filter(order, func(id string, _ int) bool { return winSet[id] })

	lines := make([]SettleLine, 0, len(order))
	var share, rem int64
	if n := int64(len(seated)); n > 0 {
		share, rem = pot/n, pot%n
	}
	for _, id := range order {
		line := SettleLine{ParticipantID: id, Stake: bets[id], Result: ResultLoss}
		if winSet[id] {
			line.Payout = share
			if id == seated[0] {
				line.Payout += rem
			}
			line.Result = ResultWin
			if len(seated) > 1 && line.Payout == line.Stake {
				line.Result = ResultPush
			}
		}
		line.Net = line.Payout - line.Stake
		lines = append(lines, line)
	}
	return lines
}

// RefundAll 全部退回本金
func RefundAll(order []string, bets map[string]int64) []SettleLine {
	return lo.Map(order, func(id string, _ int) SettleLine {
		return ByOdds(id, bets[id], Push, "refund")
	})
}

// NextEligible 从 current 的下一位开始轮转查找，current 为空时从头开始
func NextEligible(order []string, current string, eligible func(string) bool) (string, bool) {
	n := len(order)
	if n == 0 {
		return "", false
	}
	start := 0
	if idx := lo.IndexOf(order, current); idx >= 0 {
		start = idx + 1
	}
	for i := 0; i < n; i++ {
		id := order[(start+i)%n]
		if eligible(id) {
			return id, true
		}
	}
	return "", false
}
