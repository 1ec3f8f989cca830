package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/internal/service"
	"github.com/yola1107/parlor/pkg/codes"
)

type stubEngine struct{}

func (stubEngine) Start(_ context.Context, req engine.StartRequest) (engine.Reply, error) {
	if req.Bet > 1000 {
		return engine.Reply{}, codes.ErrInsufficientFunds
	}
	return engine.Reply{SessionKey: "k1", View: game.View{Title: "Roulette"}}, nil
}

func (stubEngine) Act(_ context.Context, ev engine.ActionEvent) (engine.Reply, error) {
	return engine.Reply{SessionKey: "k1", View: game.View{Body: ev.ActionID}}, nil
}

func (stubEngine) View(_ context.Context, key string) (engine.Reply, error) {
	if key != "k1" {
		return engine.Reply{}, codes.ErrSessionNotFound
	}
	return engine.Reply{SessionKey: key}, nil
}

func (stubEngine) Snapshot(_ context.Context, channel string) ([]engine.Update, error) {
	return []engine.Update{{Channel: channel, View: game.View{Title: "Lobby"}}}, nil
}

func (stubEngine) Stats(context.Context) (engine.Stats, error) { return engine.Stats{}, nil }
func (stubEngine) Kinds() []session.Kind                       { return []session.Kind{"roulette"} }
func (stubEngine) Title(session.Kind) string                   { return "Roulette" }

func newTestServer(t *testing.T, perSec float64, burst int) (*HTTPServer, *httptest.Server) {
	c := &conf.HTTP{TimeoutMs: 1000, ActionsPerSec: perSec, ActionBurst: burst, FeedBufferSize: 8}
	s := NewHTTPServer(c, service.NewParlor(stubEngine{}, nil), NewHub(NewFeedConfig(c)), nil)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		s.hub.Close()
		ts.Close()
	})
	return s, ts
}

func post(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestStartAndErrors(t *testing.T) {
	_, ts := newTestServer(t, 100, 100)

	resp, out := post(t, ts.URL+"/v1/games", engine.StartRequest{RequesterID: "u1", Channel: "c1", Kind: "roulette"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "k1", out["session_key"])

	resp, out = post(t, ts.URL+"/v1/games", engine.StartRequest{RequesterID: "u1", Channel: "c1", Kind: "roulette", Bet: 5000})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, codes.ReasonInsufficientFunds, out["reason"])
	assert.Equal(t, true, out["ephemeral"])

	resp, out = post(t, ts.URL+"/v1/games", map[string]any{"requester_id": "u1", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codes.ReasonValidation, out["reason"])

	r, err := http.Get(ts.URL + "/v1/sessions/nope")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestActionRateLimit(t *testing.T) {
	_, ts := newTestServer(t, 0.001, 2)
	ev := engine.ActionEvent{ActorID: "u1", ActionID: "roulette:k1:spin", Channel: "c1"}

	for i := 0; i < 2; i++ {
		resp, _ := post(t, ts.URL+"/v1/actions", ev)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, out := post(t, ts.URL+"/v1/actions", ev)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, codes.ReasonRateLimited, out["reason"])

	ev.ActorID = "u2"
	resp, _ = post(t, ts.URL+"/v1/actions", ev)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLimiterGC(t *testing.T) {
	l := newLimiter(1, 1)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	now = now.Add(11 * time.Minute)
	assert.True(t, l.allow("b"))
	assert.Equal(t, 1, l.gc())
	assert.Len(t, l.actors, 1)
}

func TestFeedStreamsUpdates(t *testing.T) {
	s, ts := newTestServer(t, 100, 100)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/channels/c1/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var u engine.Update
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, "Lobby", u.View.Title)

	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.hub.Update(context.Background(), engine.Update{Channel: "c2", View: game.View{Title: "other"}}))
	require.NoError(t, s.hub.Update(context.Background(), engine.Update{Channel: "c1", SessionKey: "k1", View: game.View{Title: "Roulette"}, Final: true}))
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, "k1", u.SessionKey)
	assert.True(t, u.Final)

	conn.Close()
	require.Eventually(t, func() bool { return s.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, 100, 100)
	r, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	tel, cleanup := NewTelemetry()
	defer cleanup()
	counter, err := tel.MeterProvider().Meter("test").Int64Counter("parlor.test.hits")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metric.WithAttributes(attribute.String("kind", "roulette")))
	counter.Add(context.Background(), 2)

	c := &conf.HTTP{TimeoutMs: 1000, ActionsPerSec: 1, ActionBurst: 1, FeedBufferSize: 1}
	s := NewHTTPServer(c, service.NewParlor(stubEngine{}, nil), NewHub(NewFeedConfig(c)), tel)
	ts := httptest.NewServer(s.Handler)
	defer ts.Close()

	r, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer r.Body.Close()
	var m map[string]int64
	require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
	assert.Equal(t, int64(3), m["parlor.test.hits{kind=roulette}"])
	assert.Equal(t, int64(2), m["parlor.test.hits"])
}
