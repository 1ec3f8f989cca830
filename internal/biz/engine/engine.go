package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/lobby"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/internal/biz/settle"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/library/work"
	"github.com/yola1107/parlor/library/xrand"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	keyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	keySize     = 10
)

// Config 引擎参数
type Config struct {
	SetupTimeout  time.Duration // 挑战未应答的过期时间
	SweepInterval time.Duration
	TurnTimeout   time.Duration // 玩法未指定时的回合超时
	CallTimeout   time.Duration // 单次账本、存储、推送调用超时
	Lobby         lobby.Config
}

// NewConfig 配置文件时长单位为秒
func NewConfig(c *conf.Engine) Config {
	return Config{
		SetupTimeout:  conf.Duration(c.SetupTimeout),
		SweepInterval: conf.Duration(c.SweepInterval),
		TurnTimeout:   conf.Duration(c.TurnTimeout),
		Lobby: lobby.Config{
			Waits:     lo.Map(c.LobbyWaits, func(sec int, _ int) time.Duration { return conf.Duration(sec) }),
			PromptTTL: conf.Duration(c.BetPromptSec),
			Presets:   c.BetPresets,
		},
	}
}

func (c *Config) defaults() {
	if c.SetupTimeout <= 0 {
		c.SetupTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 3 * time.Second
	}
	if c.Lobby.Timeout <= 0 {
		c.Lobby.Timeout = c.CallTimeout
	}
}

// Engine 会话引擎。对外方法都投递到 loop 串行执行
type Engine struct {
	cfg     Config
	ws      *work.WorkStore
	loop    work.Loop
	timer   work.Scheduler
	io      work.Pool
	render  work.Loop // 推送保序
	persist work.Loop // 同一会话的写库保序

	store   *session.Store
	router  *Router
	lobbies *lobby.Scheduler
	settler *settle.Settler
	ledger  economy.Gateway

	presenter  Presenter
	history    History
	repo       game.SessionRepo
	audit      *Audit
	metrics    *Metrics
	rand       xrand.Source
	now        func() time.Time
	settleOpts []settle.Option

	limits  map[session.Kind]conf.GameLimits
	turns   map[string]int64 // 会话 key -> 回合超时任务
	sweeper int64
}

type Option func(*Engine)

func WithPresenter(p Presenter) Option {
	return func(e *Engine) {
		if p != nil {
			e.presenter = p
		}
	}
}

func WithHistory(h History) Option { return func(e *Engine) { e.history = h } }

// WithRepo 可恢复会话的存储
func WithRepo(r game.SessionRepo) Option { return func(e *Engine) { e.repo = r } }

// WithRecorder 对局结果落地，可多次调用
func WithRecorder(r game.Recorder) Option {
	return func(e *Engine) { e.settleOpts = append(e.settleOpts, settle.WithRecorder(r)) }
}

func WithAudit(a *Audit) Option     { return func(e *Engine) { e.audit = a } }
func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithRand(src xrand.Source) Option {
	return func(e *Engine) { e.rand = src }
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLimits 按玩法覆盖限额与开关
func WithLimits(games map[string]*conf.GameLimits) Option {
	return func(e *Engine) { e.limits = toLimits(games) }
}

// WithStore 共享会话存储，nil 时使用自建的
func WithStore(st *session.Store) Option {
	return func(e *Engine) {
		if st != nil {
			e.store = st
		}
	}
}

// WithOutbox 推送与写库使用的串行队列，默认各自新建
func WithOutbox(render, persist work.Loop) Option {
	return func(e *Engine) {
		e.render, e.persist = render, persist
	}
}

func New(cfg Config, ws *work.WorkStore, ledger economy.Gateway, defs []game.Definition, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{
		cfg:       cfg,
		ws:        ws,
		loop:      ws.Loop,
		timer:     ws.Timer,
		io:        ws.IO,
		store:     session.NewStore(),
		router:    NewRouter(defs...),
		ledger:    ledger,
		presenter: nopPresenter{},
		rand:      xrand.Crypto(),
		now:       time.Now,
		limits:    make(map[session.Kind]conf.GameLimits),
		turns:     make(map[string]int64),
	}
	for _, o := range opts {
		o(e)
	}
	if e.render == nil {
		e.render = work.NewSerialLoop()
	}
	if e.persist == nil {
		e.persist = work.NewSerialLoop()
	}
	if e.metrics == nil {
		e.metrics, _ = NewMetrics(noop.NewMeterProvider())
	}
	e.settler = settle.New(ledger, e.io, append(e.settleOpts, settle.WithClock(e.now), settle.WithTimeout(cfg.CallTimeout))...)
	e.lobbies = lobby.NewScheduler(cfg.Lobby, e.timer, ledger, e.now, lobby.Hooks{
		Render: e.lobbyRender,
		Ready:  e.lobbyReady,
		Closed: e.lobbyClosed,
	})
	return e
}

func toLimits(games map[string]*conf.GameLimits) map[session.Kind]conf.GameLimits {
	out := make(map[session.Kind]conf.GameLimits, len(games))
	for kind, g := range games {
		if g != nil {
			out[session.Kind(kind)] = *g
		}
	}
	return out
}

// Run 启动队列、恢复存档、开启定期清理
func (e *Engine) Run(ctx context.Context) error {
	if err := e.ws.Start(); err != nil {
		return err
	}
	e.render.Start()
	e.persist.Start()
	if err := e.Restore(ctx); err != nil {
		log.Errorf("restore sessions failed. err=%v", err)
	}
	e.loop.Post(func() {
		e.sweeper = e.timer.Forever(e.cfg.SweepInterval, e.sweep)
	})
	log.Infof("engine running. kinds=%v", e.router.Kinds())
	return nil
}

// Stop 退回所有大厅与未结束的会话；可恢复的会话保留在存储中
func (e *Engine) Stop(ctx context.Context) {
	if _, err := e.loop.PostAndWait(ctx, func() (any, error) {
		e.shutdown(ctx)
		return nil, nil
	}); err != nil {
		log.Errorf("engine shutdown incomplete. err=%v", err)
	}
	e.ws.Stop()
	e.render.Stop()
	e.persist.Stop()
	e.audit.Close()
	log.Infof("engine stopped.")
}

func (e *Engine) shutdown(ctx context.Context) {
	e.timer.Cancel(e.sweeper)
	e.lobbies.Close(ctx)
	for _, s := range e.store.Sessions() {
		if s.Terminal() {
			continue
		}
		if e.persistent(s) && s.Phase == session.PhaseActive {
			continue
		}
		e.abort(ctx, s, "shutdown")
	}
	e.store.Clear()
	e.turns = make(map[string]int64)
}

// UpdateLimits 热更新限额，对之后的开局生效
func (e *Engine) UpdateLimits(games map[string]*conf.GameLimits) {
	limits := toLimits(games)
	e.loop.Post(func() {
		e.limits = limits
		log.Infof("game limits updated. kinds=%d", len(limits))
	})
}

// UpdateLobbyWaits 热更新大厅可选等待时长，对之后的开局生效
func (e *Engine) UpdateLobbyWaits(waits []time.Duration) {
	waits = append([]time.Duration(nil), waits...)
	e.loop.Post(func() {
		e.lobbies.SetWaits(waits)
		log.Infof("lobby waits updated. waits=%v", waits)
	})
}

// Start 开局：大厅、直接开局或发起挑战
func (e *Engine) Start(ctx context.Context, req StartRequest) (Reply, error) {
	ctx, span := tracer.Start(ctx, "engine.Start")
	defer span.End()

	v, err := e.loop.PostAndWait(ctx, func() (any, error) { return e.start(ctx, req) })
	if err != nil {
		e.metrics.requestRejected(ctx, string(req.Kind), err)
		span.RecordError(err)
		return Reply{}, err
	}
	return v.(Reply), nil
}

// Act 处理一次选项点击
func (e *Engine) Act(ctx context.Context, ev ActionEvent) (Reply, error) {
	ctx, span := tracer.Start(ctx, "engine.Act")
	defer span.End()

	v, err := e.loop.PostAndWait(ctx, func() (any, error) { return e.act(ctx, ev) })
	if err != nil {
		rt, _ := e.router.Parse(ev.ActionID)
		e.metrics.requestRejected(ctx, string(rt.Kind), err)
		span.RecordError(err)
		return Reply{}, err
	}
	return v.(Reply), nil
}

// View 按 key 查看会话当前画面
func (e *Engine) View(ctx context.Context, key string) (Reply, error) {
	v, err := e.loop.PostAndWait(ctx, func() (any, error) {
		s, ok := e.store.Get(key)
		if !ok {
			return nil, codes.ErrSessionNotFound
		}
		def, _ := e.router.Definition(s.Kind)
		return e.reply(s, def), nil
	})
	if err != nil {
		return Reply{}, err
	}
	return v.(Reply), nil
}

// Snapshot 频道内大厅与会话的当前画面，新订阅者使用
func (e *Engine) Snapshot(ctx context.Context, channel string) ([]Update, error) {
	v, err := e.loop.PostAndWait(ctx, func() (any, error) {
		var out []Update
		if l, ok := e.lobbies.Get(channel); ok {
			out = append(out, Update{Channel: channel, View: l.View(e.now())})
		}
		for _, s := range e.store.Sessions() {
			if s.Channel != channel {
				continue
			}
			def, _ := e.router.Definition(s.Kind)
			out = append(out, Update{Channel: channel, SessionKey: s.Key, View: e.view(s, def)})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Update), nil
}

// Stats 运行状态
type Stats struct {
	Sessions int             `json:"sessions"`
	Lobbies  int             `json:"lobbies"`
	Pending  int             `json:"pending"`
	Timers   work.Monitor    `json:"timers"`
	IO       work.PoolStatus `json:"io"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	v, err := e.loop.PostAndWait(ctx, func() (any, error) {
		return Stats{
			Sessions: e.store.Len(),
			Lobbies:  e.lobbies.Len(),
			Pending:  e.loop.Pending(),
			Timers:   e.timer.Monitor(),
			IO:       e.io.Status(),
		}, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

// Kinds 已注册的玩法
func (e *Engine) Kinds() []session.Kind { return e.router.Kinds() }

// Title 玩法名称
func (e *Engine) Title(kind session.Kind) string {
	if d, ok := e.router.Definition(kind); ok {
		return d.Title()
	}
	return string(kind)
}

// rules 玩法规则叠加配置限额。人数限额只作用于大厅模式
func (e *Engine) rules(def game.Definition, mode string) (game.Rules, error) {
	r := def.Rules(mode)
	lim, ok := e.limits[def.Kind()]
	if !ok {
		return r, nil
	}
	if !lim.Enabled {
		return r, codes.Validation("%s is currently disabled", def.Title())
	}
	if lim.MinBet > 0 {
		r.MinBet = lim.MinBet
	}
	if lim.MaxBet > 0 {
		r.MaxBet = lim.MaxBet
	}
	if r.Start == game.StartLobby {
		if lim.MinPlayers > 0 {
			r.MinPlayers = lim.MinPlayers
		}
		if lim.MaxPlayers > 0 {
			r.MaxPlayers = lim.MaxPlayers
		}
	}
	return r, nil
}

func (e *Engine) debit(ctx context.Context, id string, amount int64, reason string) error {
	if amount <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.ledger.Debit(ctx, id, amount, reason)
}

func (e *Engine) refund(ctx context.Context, entries ...game.Entry) {
	lobby.Refund(ctx, e.ledger, e.cfg.CallTimeout, entries)
}

// newSession 生成短 key 并登记，key 会出现在操作ID里
func (e *Engine) newSession(ctx context.Context, kind session.Kind, channel, server, mode string) (*session.Session, error) {
	for range 3 {
		key, err := gonanoid.Generate(keyAlphabet, keySize)
		if err != nil {
			return nil, fmt.Errorf("session key: %w", err)
		}
		s := session.New(key, kind, channel, e.now())
		s.Server, s.Mode = server, mode
		if err := e.store.Create(s); err != nil {
			log.Warnf("session key collision. key=%s", key)
			continue
		}
		e.metrics.sessionAdded(ctx, string(kind))
		return s, nil
	}
	return nil, codes.ErrKeyCollision
}

// drop 从存储移除，取消回合计时，删除存档
func (e *Engine) drop(ctx context.Context, s *session.Session) {
	e.cancelTurn(s)
	if !e.store.Alive(s) {
		return
	}
	e.store.Remove(s.Key)
	e.metrics.sessionRemoved(ctx, string(s.Kind))
	if e.persistent(s) {
		e.forget(s.Key)
	}
}

func (e *Engine) reply(s *session.Session, def game.Definition) Reply {
	return Reply{SessionKey: s.Key, View: e.view(s, def)}
}
