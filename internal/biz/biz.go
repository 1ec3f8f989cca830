package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"go.opentelemetry.io/otel/metric"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/biz/games/baccarat"
	"github.com/yola1107/parlor/internal/biz/games/blackjack"
	"github.com/yola1107/parlor/internal/biz/games/hangman"
	"github.com/yola1107/parlor/internal/biz/games/pong"
	"github.com/yola1107/parlor/internal/biz/games/roulette"
	"github.com/yola1107/parlor/internal/biz/games/tictactoe"
	"github.com/yola1107/parlor/internal/biz/games/videopoker"
	"github.com/yola1107/parlor/internal/biz/games/whist"
	"github.com/yola1107/parlor/internal/biz/session"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/library/work"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(NewEngine, Definitions, session.NewStore)

const stopTimeout = 10 * time.Second

// Definitions 所有内置玩法
func Definitions() []game.Definition {
	return []game.Definition{
		blackjack.New(),
		roulette.New(),
		baccarat.New(),
		tictactoe.New(),
		hangman.New(),
		whist.New(),
		pong.New(),
		videopoker.New(),
	}
}

// NewEngine 组装并启动引擎，cleanup 时退款并停止
func NewEngine(
	c *conf.Engine,
	games map[string]*conf.GameLimits,
	ledger economy.Gateway,
	defs []game.Definition,
	store *session.Store,
	repo game.SessionRepo,
	recorders []game.Recorder,
	history engine.History,
	presenter engine.Presenter,
	mp metric.MeterProvider,
) (*engine.Engine, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	ws := work.NewWorkStore(ctx, work.Options{
		Scheduler: c.Scheduler,
		Tick:      time.Duration(c.TickMs) * time.Millisecond,
		WheelSize: c.WheelSize,
		PoolSize:  c.IOPoolSize,
	})

	metrics, err := engine.NewMetrics(mp)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	opts := []engine.Option{
		engine.WithPresenter(presenter),
		engine.WithStore(store),
		engine.WithRepo(repo),
		engine.WithHistory(history),
		engine.WithMetrics(metrics),
		engine.WithLimits(games),
		engine.WithAudit(engine.NewAudit(c.AuditDir)),
	}
	for _, r := range recorders {
		opts = append(opts, engine.WithRecorder(r))
	}
	eng := engine.New(engine.NewConfig(c), ws, ledger, defs, opts...)
	if err := eng.Run(ctx); err != nil {
		cancel()
		return nil, nil, err
	}

	cleanup := func() {
		log.Info("closing the engine")
		sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
		defer scancel()
		eng.Stop(sctx)
		cancel()
	}
	return eng, cleanup, nil
}
