package economy

import (
	"context"
	"sync"
	"time"

	"github.com/yola1107/parlor/pkg/codes"
)

const (
	ReasonBet    = "bet"
	ReasonPayout = "payout"
	ReasonRefund = "refund"
	ReasonDouble = "double"
	ReasonBuyIn  = "buyin"
)

// LossResult RecordLoss 的结果，ShieldUsed 表示消耗了一次输局保护
type LossResult struct {
	ShieldUsed bool
	Shields    int
}

// Gateway 外部货币账本
type Gateway interface {
	// Debit 余额不足返回 codes.ErrInsufficientFunds
	Debit(ctx context.Context, participantID string, amount int64, reason string) error
	// Credit 返回入账后的余额
	Credit(ctx context.Context, participantID string, amount int64, reason string) (int64, error)
	RecordLoss(ctx context.Context, participantID string, reason string) (LossResult, error)
	Balance(ctx context.Context, participantID string) (int64, error)
}

// Entry 账本流水
type Entry struct {
	ParticipantID string
	Delta         int64
	Reason        string
	At            time.Time
}

// Memory 进程内账本，开发环境和测试使用
type Memory struct {
	mu       sync.Mutex
	starting int64
	balances map[string]int64
	shields  map[string]int
	ledger   []Entry
	losses   map[string]int
}

var _ Gateway = (*Memory)(nil)

// NewMemory starting 为新玩家初始余额
func NewMemory(starting int64) *Memory {
	return &Memory{
		starting: starting,
		balances: make(map[string]int64),
		shields:  make(map[string]int),
		losses:   make(map[string]int),
	}
}

func (m *Memory) balance(id string) int64 {
	b, ok := m.balances[id]
	if !ok {
		b = m.starting
		m.balances[id] = b
	}
	return b
}

func (m *Memory) Debit(ctx context.Context, id string, amount int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount < 0 {
		return codes.Validation("debit amount %d is negative", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == 0 {
		return nil
	}
	if m.balance(id) < amount {
		return codes.ErrInsufficientFunds
	}
	m.balances[id] -= amount
	m.ledger = append(m.ledger, Entry{ParticipantID: id, Delta: -amount, Reason: reason, At: time.Now()})
	return nil
}

func (m *Memory) Credit(ctx context.Context, id string, amount int64, reason string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, codes.Validation("credit amount %d is negative", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balance(id) + amount
	m.balances[id] = b
	if amount > 0 {
		m.ledger = append(m.ledger, Entry{ParticipantID: id, Delta: amount, Reason: reason, At: time.Now()})
	}
	return b, nil
}

func (m *Memory) RecordLoss(ctx context.Context, id, _ string) (LossResult, error) {
	if err := ctx.Err(); err != nil {
		return LossResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.losses[id]++
	if m.shields[id] > 0 {
		m.shields[id]--
		return LossResult{ShieldUsed: true, Shields: m.shields[id]}, nil
	}
	return LossResult{}, nil
}

func (m *Memory) Balance(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(id), nil
}

// SetBalance 直接设置余额
func (m *Memory) SetBalance(id string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] = amount
}

// GrantShield 发放输局保护次数
func (m *Memory) GrantShield(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shields[id] += n
}

// Losses 记录的输局次数
func (m *Memory) Losses(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.losses[id]
}

// Ledger 流水快照
func (m *Memory) Ledger() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.ledger...)
}

// Net 某玩家的流水净值
func (m *Memory) Net(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.ledger {
		if e.ParticipantID == id {
			n += e.Delta
		}
	}
	return n
}
