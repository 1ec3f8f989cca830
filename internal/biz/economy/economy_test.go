package economy

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/parlor/pkg/codes"
)

func TestMemoryDebitCredit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(100)

	require.NoError(t, m.Debit(ctx, "u1", 60, ReasonBet))
	err := m.Debit(ctx, "u1", 50, ReasonBet)
	assert.True(t, errors.Is(err, codes.ErrInsufficientFunds))

	bal, err := m.Credit(ctx, "u1", 120, ReasonPayout)
	require.NoError(t, err)
	assert.Equal(t, int64(160), bal)
	assert.Equal(t, int64(60), m.Net("u1"))
	assert.Len(t, m.Ledger(), 2)

	assert.Error(t, m.Debit(ctx, "u1", -1, ReasonBet))
	require.NoError(t, m.Debit(ctx, "u1", 0, ReasonBet))
	assert.Len(t, m.Ledger(), 2)
}

func TestMemoryRecordLoss(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	m.GrantShield("u1", 1)

	res, err := m.RecordLoss(ctx, "u1", "blackjack")
	require.NoError(t, err)
	assert.True(t, res.ShieldUsed)

	res, err = m.RecordLoss(ctx, "u1", "blackjack")
	require.NoError(t, err)
	assert.False(t, res.ShieldUsed)
	assert.Equal(t, 2, m.Losses("u1"))
}
