package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/library/work"
	"github.com/yola1107/parlor/pkg/codes"
)

type recorder struct {
	renders []game.View
	ready   []*Lobby
	closed  []string
}

type fixture struct {
	sched  *Scheduler
	clock  *work.ManualScheduler
	ledger *economy.Memory
	rec    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := work.NewManualScheduler(work.NewInlineLoop(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := economy.NewMemory(1000)
	rec := &recorder{}
	sched := NewScheduler(Config{Presets: []int64{10, 50, 100, 5000}}, clock, ledger, clock.Now, Hooks{
		Render: func(_ *Lobby, v game.View) { rec.renders = append(rec.renders, v) },
		Ready:  func(_ context.Context, l *Lobby) { rec.ready = append(rec.ready, l) },
		Closed: func(_ *Lobby, reason string) { rec.closed = append(rec.closed, reason) },
	})
	return &fixture{sched: sched, clock: clock, ledger: ledger, rec: rec}
}

func multi() game.Rules {
	return game.Rules{Start: game.StartLobby, MinPlayers: 2, MaxPlayers: 3, MinBet: 10, MaxBet: 500, BetRequired: true}
}

func (f *fixture) open(t *testing.T, rules game.Rules, bet int64) *Lobby {
	t.Helper()
	l, err := f.sched.Open(context.Background(), OpenRequest{
		Channel: "chan", Kind: "blackjack", Title: "Blackjack", CreatorID: "host", CreatorName: "Host", Bet: bet, Rules: rules,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) balance(id string) int64 {
	b, _ := f.ledger.Balance(context.Background(), id)
	return b
}

func TestExpiryWithoutQuorumRefunds(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)
	assert.Equal(t, int64(900), f.balance("host"))

	f.clock.Advance(30 * time.Second)

	assert.Equal(t, int64(1000), f.balance("host"))
	assert.Empty(t, f.rec.ready)
	assert.Equal(t, []string{ClosedNoQuorum}, f.rec.closed)
	assert.Zero(t, f.sched.Len())
	assert.Zero(t, f.clock.Len(), "ticker cancelled")
}

func TestExpiryWithQuorumHandsOff(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)
	_, err := f.sched.Join(context.Background(), "chan", "guest", "Guest", 50, "")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)

	require.Len(t, f.rec.ready, 1)
	assert.Len(t, f.rec.ready[0].Entries, 2)
	assert.Empty(t, f.rec.closed)
	assert.Equal(t, int64(950), f.balance("guest"))
}

func TestRenderCadence(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)
	f.clock.Advance(29 * time.Second)
	// 25 20 15 然后最后 10 秒每秒一次
	assert.Len(t, f.rec.renders, 13)
	assert.Contains(t, f.rec.renders[0].Body, "Starting in 25s")
	assert.Contains(t, f.rec.renders[12].Body, "Starting in 1s")
}

func TestCancelRaceWithExpiry(t *testing.T) {
	t.Run("cancel first", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, multi(), 100)
		f.clock.Advance(29 * time.Second)
		require.NoError(t, f.sched.Cancel(context.Background(), "chan", "host"))
		f.clock.Advance(5 * time.Second)

		assert.Equal(t, []string{ClosedCancelled}, f.rec.closed)
		assert.Empty(t, f.rec.ready)
		refunds := lo.Filter(f.ledger.Ledger(), func(e economy.Entry, _ int) bool { return e.Reason == economy.ReasonRefund })
		assert.Len(t, refunds, 1)
		assert.Equal(t, int64(1000), f.balance("host"))
	})

	t.Run("expiry first", func(t *testing.T) {
		f := newFixture(t)
		f.open(t, multi(), 100)
		f.clock.Advance(30 * time.Second)
		err := f.sched.Cancel(context.Background(), "chan", "host")
		assert.True(t, errors.Is(err, codes.ErrSessionNotFound))

		assert.Equal(t, []string{ClosedNoQuorum}, f.rec.closed)
		assert.Equal(t, int64(1000), f.balance("host"))
	})

	t.Run("stale ticker of a replaced lobby", func(t *testing.T) {
		f := newFixture(t)
		old := f.open(t, multi(), 10)
		require.NoError(t, f.sched.Cancel(context.Background(), "chan", "host"))
		l := f.open(t, multi(), 10)
		require.NotEqual(t, old.ID, l.ID)
		f.sched.tick("chan", old.ID)
		got, ok := f.sched.Get("chan")
		require.True(t, ok)
		assert.Equal(t, l.ID, got.ID)
	})
}

func TestStartNow(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)

	err := f.sched.StartNow(context.Background(), "chan", "host")
	assert.Equal(t, codes.ReasonValidation, errors.Reason(err))
	_, ok := f.sched.Get("chan")
	assert.True(t, ok, "lobby stays open when quorum is unmet")

	_, err = f.sched.Join(context.Background(), "chan", "guest", "Guest", 20, "")
	require.NoError(t, err)
	assert.Error(t, f.sched.StartNow(context.Background(), "chan", "guest"), "only the host")

	require.NoError(t, f.sched.StartNow(context.Background(), "chan", "host"))
	require.Len(t, f.rec.ready, 1)
	assert.Zero(t, f.sched.Len())

	f.clock.Advance(time.Minute)
	assert.Len(t, f.rec.ready, 1)
	assert.Empty(t, f.rec.closed)
}

func TestJoinValidation(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)
	ctx := context.Background()

	_, err := f.sched.Join(ctx, "chan", "host", "Host", 100, "")
	assert.Error(t, err, "already joined")
	_, err = f.sched.Join(ctx, "chan", "a", "A", 5, "")
	assert.Error(t, err, "below minimum")
	_, err = f.sched.Join(ctx, "other", "a", "A", 50, "")
	assert.True(t, errors.Is(err, codes.ErrSessionNotFound))

	f.ledger.SetBalance("poor", 20)
	_, err = f.sched.Join(ctx, "chan", "poor", "Poor", 50, "")
	assert.True(t, errors.Is(err, codes.ErrInsufficientFunds))
	l, _ := f.sched.Get("chan")
	assert.False(t, l.Has("poor"))

	_, err = f.sched.Join(ctx, "chan", "a", "A", 50, "")
	require.NoError(t, err)
	_, err = f.sched.Join(ctx, "chan", "b", "B", 50, "")
	require.NoError(t, err)
	_, err = f.sched.Join(ctx, "chan", "c", "C", 50, "")
	assert.Error(t, err, "full")
	assert.Equal(t, int64(1000), f.balance("c"))
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sched.Open(ctx, OpenRequest{Channel: "chan", CreatorID: "host", Wait: 45 * time.Second, Bet: 10, Rules: multi()})
	assert.Error(t, err)

	sel := game.Rules{MinPlayers: 1, MaxPlayers: 5, MinBet: 10, BetRequired: true, Selections: []string{"red", "black"}}
	_, err = f.sched.Open(ctx, OpenRequest{Channel: "chan", CreatorID: "host", Bet: 10, Selection: "green", Rules: sel})
	assert.Error(t, err)
	assert.Equal(t, int64(1000), f.balance("host"))

	f.open(t, multi(), 10)
	_, err = f.sched.Open(ctx, OpenRequest{Channel: "chan", CreatorID: "x", Bet: 10, Rules: multi()})
	assert.True(t, errors.Is(err, codes.ErrLobbyExists))
}

func TestBetPrompt(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)
	ctx := context.Background()

	p, err := f.sched.Prompt("chan", "a", "")
	require.NoError(t, err)
	v := p.View()
	assert.True(t, v.Has("lobby:bet:50"))
	assert.False(t, v.Has("lobby:bet:5000"), "over the table maximum")

	_, err = f.sched.Bet(ctx, "chan", "a", "A", 50, "")
	require.NoError(t, err)

	_, err = f.sched.Prompt("chan", "b", "")
	require.NoError(t, err)
	f.clock.Advance(13 * time.Second)
	_, err = f.sched.Bet(ctx, "chan", "b", "B", 50, "")
	assert.Error(t, err, "prompt expired")

	_, err = f.sched.Prompt("chan", "c", "")
	require.NoError(t, err)
	f.clock.Advance(13 * time.Second)
	assert.Equal(t, 1, f.sched.Sweep())
}

func TestCloseRefundsAll(t *testing.T) {
	f := newFixture(t)
	f.open(t, multi(), 100)
	_, err := f.sched.Join(context.Background(), "chan", "guest", "Guest", 50, "")
	require.NoError(t, err)

	f.sched.Close(context.Background())
	assert.Equal(t, int64(1000), f.balance("host"))
	assert.Equal(t, int64(1000), f.balance("guest"))
	assert.Equal(t, []string{ClosedShutdown}, f.rec.closed)
}
