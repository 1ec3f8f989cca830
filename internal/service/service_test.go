package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/pkg/codes"
)

type fakeEngine struct {
	start engine.StartRequest
	act   engine.ActionEvent
	err   error
	stats error
}

func (f *fakeEngine) Start(_ context.Context, req engine.StartRequest) (engine.Reply, error) {
	f.start = req
	return engine.Reply{SessionKey: "k1", View: game.View{Title: "Blackjack"}}, f.err
}

func (f *fakeEngine) Act(_ context.Context, ev engine.ActionEvent) (engine.Reply, error) {
	f.act = ev
	return engine.Reply{SessionKey: "k1"}, f.err
}

func (f *fakeEngine) View(context.Context, string) (engine.Reply, error) {
	return engine.Reply{}, codes.ErrSessionNotFound
}

func (f *fakeEngine) Snapshot(context.Context, string) ([]engine.Update, error) {
	return []engine.Update{{Channel: "c1"}}, nil
}

func (f *fakeEngine) Stats(context.Context) (engine.Stats, error) {
	return engine.Stats{Sessions: 2}, f.stats
}

func (f *fakeEngine) Kinds() []session.Kind { return []session.Kind{"blackjack", "roulette"} }

func (f *fakeEngine) Title(k session.Kind) string { return "T:" + string(k) }

func TestStartNormalizesRequest(t *testing.T) {
	fe := &fakeEngine{}
	p := NewParlor(fe, nil)

	r, err := p.Start(context.Background(), engine.StartRequest{
		RequesterID: " u1 ", Channel: "c1", Kind: " BlackJack ", OpponentID: "u2",
	})
	require.NoError(t, err)
	assert.Equal(t, "k1", r.SessionKey)
	assert.Equal(t, "u1", fe.start.RequesterID)
	assert.Equal(t, "u1", fe.start.RequesterName)
	assert.Equal(t, "u2", fe.start.OpponentName)
	assert.Equal(t, session.Kind("blackjack"), fe.start.Kind)
}

func TestStartValidation(t *testing.T) {
	p := NewParlor(&fakeEngine{}, nil)
	for _, req := range []engine.StartRequest{
		{Channel: "c1", Kind: "roulette"},
		{RequesterID: "u1", Kind: "roulette"},
		{RequesterID: "u1", Channel: "c1"},
	} {
		_, err := p.Start(context.Background(), req)
		assert.True(t, kerrors.Is(err, codes.ErrValidation), "%+v", req)
	}
}

func TestErrorsBecomeMessages(t *testing.T) {
	fe := &fakeEngine{err: codes.ErrNotYourTurn}
	p := NewParlor(fe, nil)

	_, err := p.Act(context.Background(), engine.ActionEvent{ActorID: "u1", ActionID: "blackjack:k1:hit"})
	assert.ErrorIs(t, err, codes.ErrNotYourTurn)
	assert.Equal(t, "it's not your turn", Message(err))

	fe.err = fmt.Errorf("redis: %w", errors.New("connection refused"))
	_, err = p.Act(context.Background(), engine.ActionEvent{ActorID: "u1", ActionID: "blackjack:k1:hit"})
	assert.ErrorIs(t, err, codes.ErrInternal)
	assert.NotContains(t, Message(err), "redis")

	_, err = p.Session(context.Background(), "nope")
	assert.ErrorIs(t, err, codes.ErrSessionNotFound)
	assert.Empty(t, Message(nil))
}

func TestGamesAndFeed(t *testing.T) {
	p := NewParlor(&fakeEngine{}, nil)
	assert.Equal(t, []GameInfo{{Kind: "blackjack", Title: "T:blackjack"}, {Kind: "roulette", Title: "T:roulette"}}, p.Games())

	us, err := p.Feed(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, us, 1)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("database: closed") }

	h := NewParlor(&fakeEngine{}, []Checker{ok}).Health(context.Background())
	assert.True(t, h.OK)
	assert.Equal(t, 2, h.Engine.Sessions)

	h = NewParlor(&fakeEngine{}, []Checker{ok, down}).Health(context.Background())
	assert.False(t, h.OK)
	assert.Contains(t, h.Error, "database")
}
