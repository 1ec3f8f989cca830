package conf

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"

	zconf "github.com/yola1107/parlor/library/log/zap/conf"
	"github.com/yola1107/parlor/library/mq/rabbitmq"
)

const Name = "parlor"
const Version = "v0.1.0"

// Bootstrap 配置根
type Bootstrap struct {
	Server  *Server                `json:"server"`
	Engine  *Engine                `json:"engine"`
	Games   map[string]*GameLimits `json:"games"`
	Economy *Economy               `json:"economy"`
	Data    *Data                  `json:"data"`
	Log     *zconf.Log             `json:"log"`
}

type Server struct {
	HTTP *HTTP `json:"http"`
}

type HTTP struct {
	Addr           string  `json:"addr"`
	TimeoutMs      int     `json:"timeout_ms"`
	ActionsPerSec  float64 `json:"actions_per_sec"` // 单个玩家的操作频率上限
	ActionBurst    int     `json:"action_burst"`
	FeedBufferSize int     `json:"feed_buffer_size"`
}

// Engine 会话引擎参数，时长单位均为秒
type Engine struct {
	Scheduler     string  `json:"scheduler"` // heap | wheel
	TickMs        int     `json:"tick_ms"`
	WheelSize     int64   `json:"wheel_size"`
	IOPoolSize    int     `json:"io_pool_size"`
	LobbyWaits    []int   `json:"lobby_waits"`
	BetPromptSec  int     `json:"bet_prompt_sec"`
	BetPresets    []int64 `json:"bet_presets"`
	SetupTimeout  int     `json:"setup_timeout"`
	SweepInterval int     `json:"sweep_interval"`
	TurnTimeout   int     `json:"turn_timeout"`
	AuditDir      string  `json:"audit_dir"`
}

// GameLimits 单个游戏的开关与限额
type GameLimits struct {
	Enabled    bool  `json:"enabled"`
	MinBet     int64 `json:"min_bet"`
	MaxBet     int64 `json:"max_bet"`
	MinPlayers int   `json:"min_players"`
	MaxPlayers int   `json:"max_players"`
}

type Economy struct {
	Backend         string `json:"backend"` // memory | redis
	StartingBalance int64  `json:"starting_balance"`
	KeyPrefix       string `json:"key_prefix"`
}

type Data struct {
	Redis    *Redis    `json:"redis"`
	Database *Database `json:"database"`
	AMQP     *AMQP     `json:"amqp"`
	History  *History  `json:"history"`
}

type Redis struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	PoolSize      int    `json:"pool_size"`
	DialTimeoutMs int    `json:"dial_timeout_ms"`
}

type Database struct {
	Driver string `json:"driver"` // postgres | sqlite
	DSN    string `json:"dsn"`
}

type AMQP struct {
	Enabled   bool                      `json:"enabled"`
	Conn      rabbitmq.Options          `json:"conn"`
	Publisher rabbitmq.PublisherOptions `json:"publisher"`
}

// History 操作流水写入 redis stream
type History struct {
	Enabled bool   `json:"enabled"`
	Stream  string `json:"stream"`
	MaxLen  int64  `json:"max_len"`
}

// secrets 只从环境变量读取的敏感项，非空时覆盖文件配置
type secrets struct {
	HTTPAddr      string `env:"PARLOR_HTTP_ADDR"`
	RedisAddr     string `env:"PARLOR_REDIS_ADDR"`
	RedisPassword string `env:"PARLOR_REDIS_PASSWORD"`
	DatabaseDSN   string `env:"PARLOR_DATABASE_DSN"`
	AMQPPassword  string `env:"PARLOR_AMQP_PASSWORD"`
	LogLevel      string `env:"PARLOR_LOG_LEVEL"`
}

// LoadConfig 加载配置文件并叠加环境变量
func LoadConfig(path string) (config.Config, *Bootstrap, error) {
	c := config.New(config.WithSource(file.NewSource(path)))
	if err := c.Load(); err != nil {
		return nil, nil, fmt.Errorf("load config %q: %w", path, err)
	}

	bc := &Bootstrap{}
	if err := c.Scan(bc); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("scan config: %w", err)
	}
	if err := bc.ApplyEnv(); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	bc.ApplyDefaults()
	if err := bc.Validate(); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("bootstrap config invalid: %w", err)
	}
	return c, bc, nil
}

// ApplyEnv 环境变量覆盖
func (bc *Bootstrap) ApplyEnv() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	bc.ensure()
	if s.HTTPAddr != "" {
		bc.Server.HTTP.Addr = s.HTTPAddr
	}
	if s.RedisAddr != "" {
		bc.Data.Redis.Addr = s.RedisAddr
	}
	if s.RedisPassword != "" {
		bc.Data.Redis.Password = s.RedisPassword
	}
	if s.DatabaseDSN != "" {
		bc.Data.Database.DSN = s.DatabaseDSN
	}
	if s.AMQPPassword != "" {
		bc.Data.AMQP.Conn.Password = s.AMQPPassword
	}
	if s.LogLevel != "" {
		bc.Log.Logger.Level = s.LogLevel
	}
	return nil
}

func (bc *Bootstrap) ensure() {
	if bc.Server == nil {
		bc.Server = &Server{}
	}
	if bc.Server.HTTP == nil {
		bc.Server.HTTP = &HTTP{}
	}
	if bc.Engine == nil {
		bc.Engine = &Engine{}
	}
	if bc.Games == nil {
		bc.Games = map[string]*GameLimits{}
	}
	if bc.Economy == nil {
		bc.Economy = &Economy{}
	}
	if bc.Data == nil {
		bc.Data = &Data{}
	}
	if bc.Data.Redis == nil {
		bc.Data.Redis = &Redis{}
	}
	if bc.Data.Database == nil {
		bc.Data.Database = &Database{}
	}
	if bc.Data.AMQP == nil {
		bc.Data.AMQP = &AMQP{Conn: rabbitmq.DefaultOptions(), Publisher: rabbitmq.DefaultPublisherOptions()}
	}
	if bc.Data.History == nil {
		bc.Data.History = &History{}
	}
	if bc.Log == nil {
		bc.Log = zconf.DefaultConfig(zconf.WithAppName(Name))
	}
	if bc.Log.Logger == nil {
		bc.Log.Logger = zconf.DefaultConfig(zconf.WithAppName(Name)).Logger
	}
}

// ApplyDefaults 补齐缺省值
func (bc *Bootstrap) ApplyDefaults() {
	bc.ensure()
	h := bc.Server.HTTP
	h.Addr = or(h.Addr, ":8000")
	h.TimeoutMs = or(h.TimeoutMs, 3000)
	if h.ActionsPerSec <= 0 {
		h.ActionsPerSec = 4
	}
	h.ActionBurst = or(h.ActionBurst, 8)
	h.FeedBufferSize = or(h.FeedBufferSize, 32)

	e := bc.Engine
	e.Scheduler = or(e.Scheduler, "heap")
	e.TickMs = or(e.TickMs, 100)
	e.WheelSize = or(e.WheelSize, 128)
	e.IOPoolSize = or(e.IOPoolSize, 64)
	if len(e.LobbyWaits) == 0 {
		e.LobbyWaits = []int{30, 60, 120}
	}
	e.BetPromptSec = or(e.BetPromptSec, 12)
	if len(e.BetPresets) == 0 {
		e.BetPresets = []int64{10, 50, 100, 500}
	}
	e.SetupTimeout = or(e.SetupTimeout, 300)
	e.SweepInterval = or(e.SweepInterval, 5)
	e.TurnTimeout = or(e.TurnTimeout, 30)

	bc.Economy.Backend = or(bc.Economy.Backend, "memory")
	bc.Economy.KeyPrefix = or(bc.Economy.KeyPrefix, "parlor:wallet:")
	bc.Data.Database.Driver = or(bc.Data.Database.Driver, "sqlite")
	bc.Data.Database.DSN = or(bc.Data.Database.DSN, "file:parlor.db?_pragma=busy_timeout(5000)")
	bc.Data.History.Stream = or(bc.Data.History.Stream, "parlor:actions")
	bc.Data.History.MaxLen = or(bc.Data.History.MaxLen, 100000)
}

// Validate 校验
func (bc *Bootstrap) Validate() error {
	var errs []error
	e := bc.Engine
	if !slices.Contains([]string{"heap", "wheel"}, e.Scheduler) {
		errs = append(errs, fmt.Errorf("engine.scheduler %q must be heap or wheel", e.Scheduler))
	}
	for _, w := range e.LobbyWaits {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("engine.lobby_waits has non-positive value %d", w))
		}
	}
	for _, p := range e.BetPresets {
		if p <= 0 {
			errs = append(errs, fmt.Errorf("engine.bet_presets has non-positive value %d", p))
		}
	}
	for kind, g := range bc.Games {
		if err := g.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("games.%s: %w", kind, err))
		}
	}
	if !slices.Contains([]string{"memory", "redis"}, bc.Economy.Backend) {
		errs = append(errs, fmt.Errorf("economy.backend %q must be memory or redis", bc.Economy.Backend))
	}
	if bc.Economy.Backend == "redis" && bc.Data.Redis.Addr == "" {
		errs = append(errs, errors.New("economy.backend redis requires data.redis.addr"))
	}
	if bc.Data.History.Enabled && bc.Data.Redis.Addr == "" {
		errs = append(errs, errors.New("data.history requires data.redis.addr"))
	}
	if !slices.Contains([]string{"postgres", "sqlite"}, bc.Data.Database.Driver) {
		errs = append(errs, fmt.Errorf("data.database.driver %q must be postgres or sqlite", bc.Data.Database.Driver))
	}
	return errors.Join(errs...)
}

// Validate 限额校验
func (g *GameLimits) Validate() error {
	if g == nil {
		return errors.New("empty limits")
	}
	if g.MinBet < 0 || (g.MaxBet > 0 && g.MaxBet < g.MinBet) {
		return fmt.Errorf("bet range [%d, %d] invalid", g.MinBet, g.MaxBet)
	}
	if g.MinPlayers < 0 || (g.MaxPlayers > 0 && g.MaxPlayers < g.MinPlayers) {
		return fmt.Errorf("player range [%d, %d] invalid", g.MinPlayers, g.MaxPlayers)
	}
	return nil
}

// Duration 秒转 time.Duration
func Duration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
