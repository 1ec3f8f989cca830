package settle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/game/gametest"
	"github.com/yola1107/parlor/internal/biz/games/tictactoe"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/library/work"
)

type outcomes struct {
	mu   sync.Mutex
	list []game.Outcome
}

func (o *outcomes) Record(_ context.Context, out game.Outcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, out)
	return nil
}

type failingLedger struct {
	*economy.Memory
}

func (f failingLedger) Credit(context.Context, string, int64, string) (int64, error) {
	return 0, errors.New("ledger offline")
}

// 井字棋: x 赢下 2x100 的奖池
func finishedTicTacToe(t *testing.T) (*tictactoe.Game, *session.Session) {
	t.Helper()
	g := tictactoe.New()
	s := gametest.NewSession(tictactoe.Kind, gametest.Entries("x", 100, "o", 100)...)
	rt := gametest.New(nil)
	require.NoError(t, g.Setup(rt, s, nil))
	for i, cell := range []string{"0", "3", "1", "4", "2"} {
		actor := []string{"x", "o"}[i%2]
		require.NoError(t, g.ApplyAction(rt, s, actor, "place:"+cell))
	}
	require.True(t, g.IsTerminal(s))
	return g, s
}

func TestSettleOnce(t *testing.T) {
	ledger := economy.NewMemory(0)
	rec := &outcomes{}
	clock := time.Date(2024, 5, 1, 12, 1, 30, 0, time.UTC)
	st := New(ledger, work.NewInlineLoop(), WithRecorder(rec), WithClock(func() time.Time { return clock }))
	g, s := finishedTicTacToe(t)

	res, ok := st.Settle(s, g)
	require.True(t, ok)
	assert.Equal(t, session.PhaseEnded, s.Phase)
	assert.True(t, s.Terminal())

	_, again := st.Settle(s, g)
	assert.False(t, again)

	assert.Equal(t, int64(200), ledger.Net("x"))
	assert.Zero(t, ledger.Net("o"))
	assert.Equal(t, 1, ledger.Losses("o"))
	assert.Zero(t, ledger.Losses("x"))

	// 守恒: 奖池 = 入账总额
	assert.Equal(t, s.Pot(), res.Credited())

	require.Len(t, rec.list, 1)
	o := rec.list[0]
	assert.Equal(t, "x", o.WinnerID)
	assert.Equal(t, "tictactoe", o.Kind)
	assert.Equal(t, []string{"x", "o"}, o.Participants)
	assert.Equal(t, int64(90), o.DurationSeconds)
	assert.NotEmpty(t, o.ID)
}

func TestCreditFailureIsNotRetried(t *testing.T) {
	ledger := failingLedger{economy.NewMemory(0)}
	st := New(ledger, nil)
	g, s := finishedTicTacToe(t)

	_, ok := st.Settle(s, g)
	assert.True(t, ok)
	_, ok = st.Settle(s, g)
	assert.False(t, ok, "a failed credit never re-settles")
}

func TestAbortRefunds(t *testing.T) {
	ledger := economy.NewMemory(0)
	st := New(ledger, nil)
	s := gametest.NewSession(tictactoe.Kind, gametest.Entries("x", 40, "o", 60)...)

	lines, ok := st.Abort(s, "declined")
	require.True(t, ok)
	assert.Len(t, lines, 2)
	assert.Equal(t, int64(40), ledger.Net("x"))
	assert.Equal(t, int64(60), ledger.Net("o"))
	assert.Zero(t, ledger.Losses("x"))

	_, ok = st.Abort(s, "again")
	assert.False(t, ok)
}
