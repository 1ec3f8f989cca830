package engine

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/games/blackjack"
	"github.com/yola1107/parlor/internal/biz/games/hangman"
	"github.com/yola1107/parlor/internal/biz/games/roulette"
	"github.com/yola1107/parlor/internal/biz/games/tictactoe"
	"github.com/yola1107/parlor/internal/biz/games/videopoker"
	"github.com/yola1107/parlor/internal/biz/games/whist"
	"github.com/yola1107/parlor/internal/biz/lobby"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/library/work"
	"github.com/yola1107/parlor/library/xrand"
	"github.com/yola1107/parlor/pkg/codes"
)

func init() {
	log.SetLogger(log.NewStdLogger(os.Stdout))
}

var ctx = context.Background()

type feed struct {
	mu      sync.Mutex
	updates []Update
}

func (f *feed) Update(_ context.Context, u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *feed) last() Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

type memRepo struct {
	mu   sync.Mutex
	recs map[string]game.Record
}

func newMemRepo() *memRepo { return &memRepo{recs: map[string]game.Record{}} }

func (r *memRepo) Upsert(_ context.Context, rec game.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.Key] = rec
	return nil
}

func (r *memRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recs, key)
	return nil
}

func (r *memRepo) LoadAll(_ context.Context, kind string) ([]game.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []game.Record
	for _, rec := range r.recs {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fixture struct {
	clock  *work.ManualScheduler
	ledger *economy.Memory
	feed   *feed
	eng    *Engine
}

func newFixture(t *testing.T, ledger *economy.Memory, opts ...Option) *fixture {
	t.Helper()
	loop := work.NewInlineLoop()
	clock := work.NewManualScheduler(loop, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ws := &work.WorkStore{Loop: loop, Timer: clock, IO: work.NewInlinePool()}
	if ledger == nil {
		ledger = economy.NewMemory(1000)
	}
	f := &fixture{clock: clock, ledger: ledger, feed: &feed{}}

	cfg := Config{Lobby: lobby.Config{Presets: []int64{10, 50, 100}}}
	defs := []game.Definition{blackjack.New(), roulette.New(), tictactoe.New(), hangman.New(), videopoker.New(), whist.New()}
	base := []Option{
		WithClock(clock.Now),
		WithPresenter(f.feed),
		WithOutbox(work.NewInlineLoop(), work.NewInlineLoop()),
		WithRand(xrand.NewSequence(20, 3, 7)),
	}
	f.eng = New(cfg, ws, ledger, defs, append(base, opts...)...)
	require.NoError(t, f.eng.Run(ctx))
	t.Cleanup(func() { f.eng.Stop(ctx) })
	return f
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	b, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) act(actor, channel, action string) (Reply, error) {
	return f.eng.Act(ctx, ActionEvent{ActorID: actor, ActorName: actor, ActionID: action, Channel: channel})
}

func TestRouterParse(t *testing.T) {
	r := NewRouter(tictactoe.New(), roulette.New(), videopoker.New())

	rt, err := r.Parse("tictactoe:abc123:place:4")
	require.NoError(t, err)
	assert.Equal(t, Route{Kind: tictactoe.Kind, Key: "abc123", Sub: "place:4"}, rt)

	rt, err = r.Parse("videopoker:hold:2")
	require.NoError(t, err)
	assert.Equal(t, Route{Kind: videopoker.Kind, Sub: "hold:2"}, rt)

	rt, err = r.Parse("lobby:bet:50:red")
	require.NoError(t, err)
	assert.True(t, rt.Lobby)
	assert.Equal(t, "bet:50:red", rt.Sub)

	for _, bad := range []string{"", "garbage", "poker:deal", "tictactoe:place", "tictactoe::place:1", "roulette:"} {
		_, err := r.Parse(bad)
		assert.ErrorIs(t, err, codes.ErrSessionNotFound, bad)
	}

	s := session.New("k1", tictactoe.Kind, "c", time.Now())
	assert.Equal(t, "tictactoe:k1:accept", r.ActionID(s, "accept"))
	s.Kind = roulette.Kind
	assert.Equal(t, "roulette:spin", r.ActionID(s, "spin"))
	assert.Equal(t, []session.Kind{roulette.Kind, tictactoe.Kind, videopoker.Kind}, r.Kinds())
}

func TestWheelThroughLobby(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "userA", RequesterName: "A", Channel: "c1", Kind: roulette.Kind, Bet: 50, Selection: "red"})
	require.NoError(t, err)
	_, err = f.act("userB", "c1", "lobby:join:100:n7")
	require.NoError(t, err)
	assert.Equal(t, int64(950), f.balance(t, "userA"))
	assert.Equal(t, int64(900), f.balance(t, "userB"))

	f.clock.Advance(30 * time.Second)
	s, ok := f.eng.store.FindByChannel("c1", roulette.Kind)
	require.True(t, ok)
	assert.Equal(t, session.PhaseResolving, s.Phase)

	// 一边转一边拒绝操作
	_, err = f.act("userA", "c1", "roulette:spin")
	assert.Error(t, err)

	f.clock.Advance(5 * time.Second)
	assert.Zero(t, f.eng.store.Len())
	assert.Equal(t, int64(1050), f.balance(t, "userA"))
	assert.Equal(t, int64(4500), f.balance(t, "userB"))

	final := f.feed.last()
	assert.True(t, final.Final)
	assert.Contains(t, final.View.Footer, "7 red")
}

func TestLobbyWithoutQuorumRefunds(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: blackjack.Kind, Bet: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(900), f.balance(t, "a"))

	f.clock.Advance(31 * time.Second)
	assert.Equal(t, int64(1000), f.balance(t, "a"))
	assert.Zero(t, f.eng.store.Len())
	assert.True(t, f.feed.last().Final)
}

func TestLobbyBetPrompt(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: roulette.Kind, Bet: 10, Selection: "odd"})
	require.NoError(t, err)

	rep, err := f.act("b", "c1", "lobby:join")
	require.NoError(t, err)
	assert.True(t, rep.Ephemeral)
	assert.True(t, rep.View.Has("lobby:join::red"))

	rep, err = f.act("b", "c1", "lobby:join::red")
	require.NoError(t, err)
	assert.True(t, rep.View.Has("lobby:bet:50:red"))

	rep, err = f.act("b", "c1", "lobby:bet:50:red")
	require.NoError(t, err)
	assert.Equal(t, int64(950), f.balance(t, "b"))
	assert.Contains(t, rep.View.Text(), "50 on red")

	_, err = f.act("b", "c1", "lobby:bet:50:red")
	assert.Error(t, err)
	_, err = f.act("b", "c1", "lobby:cancel")
	assert.Error(t, err, "only the host cancels")

	_, err = f.act("a", "c1", "lobby:cancel")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.balance(t, "a"))
	assert.Equal(t, int64(1000), f.balance(t, "b"))
}

func ticTacToe(t *testing.T, f *fixture, stake int64) *session.Session {
	t.Helper()
	rep, err := f.eng.Start(ctx, StartRequest{
		RequesterID: "x", RequesterName: "X", OpponentID: "o", OpponentName: "O",
		Channel: "c1", Kind: tictactoe.Kind, Bet: stake,
	})
	require.NoError(t, err)
	require.True(t, rep.View.Has("tictactoe:"+rep.SessionKey+":accept"))
	s, ok := f.eng.store.Get(rep.SessionKey)
	require.True(t, ok)
	return s
}

func TestChallengeAcceptAndPlay(t *testing.T) {
	f := newFixture(t, nil)
	s := ticTacToe(t, f, 100)
	id := func(sub string) string { return "tictactoe:" + s.Key + ":" + sub }
	assert.Equal(t, session.PhaseWaiting, s.Phase)
	assert.Equal(t, int64(900), f.balance(t, "x"))

	_, err := f.act("x", "c1", id("place:0"))
	assert.ErrorIs(t, err, codes.ErrWrongPhase)
	_, err = f.act("x", "c1", id("accept"))
	assert.ErrorIs(t, err, codes.ErrNotYourTurn)

	rep, err := f.act("o", "c1", id("accept"))
	require.NoError(t, err)
	assert.Equal(t, session.PhaseActive, s.Phase)
	assert.Equal(t, int64(900), f.balance(t, "o"))
	assert.True(t, rep.View.Has(id("place:4")))

	// 拒绝的操作不改变任何状态
	_, err = f.act("o", "c1", id("place:4"))
	assert.ErrorIs(t, err, codes.ErrNotYourTurn)
	assert.Zero(t, s.Turn)

	for i, mv := range []struct{ who, cell string }{{"x", "0"}, {"o", "3"}, {"x", "1"}, {"o", "4"}} {
		_, err := f.act(mv.who, "c1", id("place:"+mv.cell))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), s.Turn)
	}
	_, err = f.act("x", "c1", id("place:0"))
	assert.ErrorIs(t, err, codes.ErrIllegalAction)
	assert.Equal(t, int64(4), s.Turn)

	_, err = f.act("x", "c1", id("place:2"))
	require.NoError(t, err)
	assert.True(t, s.Settled())
	assert.Zero(t, f.eng.store.Len())
	assert.Equal(t, int64(1100), f.balance(t, "x"))
	assert.Equal(t, int64(900), f.balance(t, "o"))

	_, err = f.act("o", "c1", id("place:5"))
	assert.ErrorIs(t, err, codes.ErrSessionNotFound)
}

func TestChallengeDeclineAndExpiry(t *testing.T) {
	f := newFixture(t, nil)

	s := ticTacToe(t, f, 100)
	_, err := f.act("o", "c1", "tictactoe:"+s.Key+":decline")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.balance(t, "x"))
	assert.Equal(t, int64(1000), f.balance(t, "o"))
	assert.Zero(t, f.eng.store.Len())

	s = ticTacToe(t, f, 50)
	f.clock.Advance(5*time.Minute + 10*time.Second)
	assert.Zero(t, f.eng.store.Len())
	assert.Equal(t, int64(1000), f.balance(t, "x"))
	assert.Contains(t, f.feed.last().View.Body, "expired")
	assert.True(t, s.Settled())
}

func TestIdleChallengerForfeits(t *testing.T) {
	f := newFixture(t, nil)
	s := ticTacToe(t, f, 100)
	_, err := f.act("o", "c1", "tictactoe:"+s.Key+":accept")
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	assert.False(t, s.Settled())
	f.clock.Advance(2 * time.Second)
	assert.True(t, s.Settled())
	assert.Zero(t, f.eng.store.Len())
	assert.Equal(t, int64(900), f.balance(t, "x"))
	assert.Equal(t, int64(1100), f.balance(t, "o"))
	assert.Contains(t, f.feed.last().View.Footer, "forfeit")
}

func TestChallengeInsufficientFunds(t *testing.T) {
	ledger := economy.NewMemory(1000)
	ledger.SetBalance("o", 20)
	f := newFixture(t, ledger)

	s := ticTacToe(t, f, 100)
	_, err := f.act("o", "c1", "tictactoe:"+s.Key+":accept")
	assert.ErrorIs(t, err, codes.ErrInsufficientFunds)
	assert.Equal(t, session.PhaseWaiting, s.Phase)
	assert.Equal(t, int64(20), f.balance(t, "o"))
}

func TestHandIsPrivate(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: whist.Kind})
	require.NoError(t, err)
	_, err = f.act("b", "c1", "lobby:join:0")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	s, ok := f.eng.store.FindByChannel("c1", whist.Kind)
	require.True(t, ok)
	require.Equal(t, session.PhaseActive, s.Phase)

	pub := f.feed.last().View
	require.Len(t, pub.Choices, 1)
	assert.Equal(t, "whist:hand", pub.Choices[0].ID)

	rep, err := f.act("a", "c1", "whist:hand")
	require.NoError(t, err)
	assert.True(t, rep.Ephemeral)
	require.NotEmpty(t, rep.View.Choices)
	for _, c := range rep.View.Choices {
		assert.Contains(t, c.ID, "whist:play:")
	}

	rep, err = f.act("b", "c1", "whist:hand")
	require.NoError(t, err)
	assert.True(t, rep.Ephemeral)
	assert.Empty(t, rep.View.Choices)
	assert.NotEmpty(t, rep.View.Body)

	_, err = f.act("c", "c1", "whist:hand")
	assert.Error(t, err)
	_, err = f.act("a", "c1", "roulette:hand")
	assert.ErrorIs(t, err, codes.ErrSessionNotFound)
	assert.Zero(t, s.Turn)

	_, err = f.act("a", "c1", mustFirst(t, f, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Turn)
}

func mustFirst(t *testing.T, f *fixture, actor string) string {
	t.Helper()
	rep, err := f.act(actor, "c1", "whist:hand")
	require.NoError(t, err)
	require.NotEmpty(t, rep.View.Choices)
	return rep.View.Choices[0].ID
}

func TestTurnTimeoutAutoAction(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: hangman.Kind, Bet: 20})
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	s, ok := f.eng.store.FindByChannel("c1", hangman.Kind)
	require.True(t, ok)
	require.Equal(t, session.PhaseActive, s.Phase)

	f.clock.Advance(20 * time.Second)
	_, err = f.act("a", "c1", "hangman:pass")
	require.NoError(t, err)
	require.Equal(t, int64(1), s.Turn)

	// 手动操作后旧计时作废
	f.clock.Advance(15 * time.Second)
	assert.Equal(t, int64(1), s.Turn)

	f.clock.Advance(15 * time.Second)
	assert.Equal(t, int64(2), s.Turn)
	assert.True(t, s.Settled())
	assert.Equal(t, int64(980), f.balance(t, "a"))
	assert.Equal(t, 1, f.ledger.Losses("a"))
}

func TestPersistentSessionSurvivesRestart(t *testing.T) {
	repo := newMemRepo()
	ledger := economy.NewMemory(1000)

	f := newFixture(t, ledger, WithRepo(repo))
	rep, err := f.eng.Start(ctx, StartRequest{RequesterID: "p", Channel: "c1", Kind: videopoker.Kind, Bet: 100})
	require.NoError(t, err)
	require.Len(t, repo.recs, 1)
	assert.Equal(t, "p", repo.recs[rep.SessionKey].ParticipantID)
	assert.Equal(t, int64(900), f.balance(t, "p"))

	_, err = f.eng.Start(ctx, StartRequest{RequesterID: "p", Channel: "c2", Kind: videopoker.Kind, Bet: 100})
	assert.Error(t, err, "one machine per player")

	f.eng.Stop(ctx)
	assert.Equal(t, int64(900), f.balance(t, "p"), "kept for restore, not refunded")
	require.Len(t, repo.recs, 1)

	g := newFixture(t, ledger, WithRepo(repo))
	s, ok := g.eng.store.FindByParticipant("p", videopoker.Kind)
	require.True(t, ok)
	assert.Equal(t, rep.SessionKey, s.Key)

	_, err = g.act("p", "elsewhere", "videopoker:cashout")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), g.balance(t, "p"))
	assert.Empty(t, repo.recs)
}

func TestLimitsOverrideRules(t *testing.T) {
	f := newFixture(t, nil, WithLimits(map[string]*conf.GameLimits{
		"tictactoe": {Enabled: false},
		"roulette":  {Enabled: true, MinBet: 10, MaxBet: 20},
	}))
	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "x", OpponentID: "o", Channel: "c1", Kind: tictactoe.Kind})
	assert.Error(t, err)

	_, err = f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: roulette.Kind, Bet: 50, Selection: "red"})
	assert.Error(t, err)
	assert.Equal(t, int64(1000), f.balance(t, "a"))

	f.eng.UpdateLimits(map[string]*conf.GameLimits{"roulette": {Enabled: true, MaxBet: 100}})
	_, err = f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: roulette.Kind, Bet: 50, Selection: "red"})
	assert.NoError(t, err)
}

func TestLobbyWaitsReload(t *testing.T) {
	f := newFixture(t, nil)
	f.eng.UpdateLobbyWaits([]time.Duration{45 * time.Second, 90 * time.Second})

	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: blackjack.Kind, Bet: 100, WaitSeconds: 30})
	assert.ErrorIs(t, err, codes.ErrValidation)
	assert.Equal(t, int64(1000), f.balance(t, "a"))

	// 默认取第一个
	_, err = f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: blackjack.Kind, Bet: 100})
	require.NoError(t, err)
	f.clock.Advance(44 * time.Second)
	assert.Equal(t, 1, f.eng.lobbies.Len())
	f.clock.Advance(2 * time.Second)
	assert.Zero(t, f.eng.lobbies.Len())
	assert.Equal(t, int64(1000), f.balance(t, "a"))
}

func TestSharedStore(t *testing.T) {
	st := session.NewStore()
	f := newFixture(t, nil, WithStore(st), WithStore(nil))

	s := ticTacToe(t, f, 100)
	got, ok := st.Get(s.Key)
	require.True(t, ok)
	assert.Same(t, s, got)
	found, ok := st.FindByParticipant("x", tictactoe.Kind)
	require.True(t, ok)
	assert.Equal(t, s.Key, found.Key)

	f.eng.Stop(ctx)
	assert.Zero(t, st.Len())
	assert.Equal(t, int64(1000), f.balance(t, "x"))
}

func TestStopRefundsEverything(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.eng.Start(ctx, StartRequest{RequesterID: "a", Channel: "c1", Kind: roulette.Kind, Bet: 100, Selection: "black"})
	require.NoError(t, err)
	ticTacToe(t, f, 200)
	assert.Equal(t, int64(900), f.balance(t, "a"))
	assert.Equal(t, int64(800), f.balance(t, "x"))

	f.eng.Stop(ctx)
	assert.Equal(t, int64(1000), f.balance(t, "a"))
	assert.Equal(t, int64(1000), f.balance(t, "x"))
	assert.Zero(t, f.eng.store.Len())
}

func TestMetricsCountSettlements(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	f := newFixture(t, nil, WithMetrics(m))
	s := ticTacToe(t, f, 0)
	_, err = f.act("o", "c1", "tictactoe:"+s.Key+":accept")
	require.NoError(t, err)
	_, err = f.act("o", "c1", "tictactoe:"+s.Key+":place:0")
	require.Error(t, err)
	for _, mv := range []struct{ who, cell string }{{"x", "0"}, {"o", "3"}, {"x", "1"}, {"o", "4"}, {"x", "2"}} {
		_, err := f.act(mv.who, "c1", "tictactoe:"+s.Key+":place:"+mv.cell)
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(1), sumOf(rm, "parlor.sessions.started"))
	assert.Equal(t, int64(1), sumOf(rm, "parlor.sessions.settled"))
	assert.Equal(t, int64(5), sumOf(rm, "parlor.actions.accepted"))
	assert.Equal(t, int64(0), sumOf(rm, "parlor.sessions.live"))
}

func sumOf(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
