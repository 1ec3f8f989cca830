package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/library/mq/rabbitmq"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(NewData, NewGateway, NewSessionRepo, NewRecorders, NewHistory)

// Data 外部资源，未启用的为 nil
type Data struct {
	rdb   *redis.Client
	store Store
	pub   *rabbitmq.Publisher
}

// NewData 打开配置中启用的资源
func NewData(c *conf.Data, e *conf.Economy) (*Data, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := &Data{}
	cleanup := func() {
		log.Info("closing the data resources")
		if d.pub != nil {
			d.pub.Close()
		}
		if d.store != nil {
			_ = d.store.Close()
		}
		if d.rdb != nil {
			_ = d.rdb.Close()
		}
	}

	if e.Backend == "redis" || c.History.Enabled {
		d.rdb = newRedis(c.Redis)
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis %s: %w", c.Redis.Addr, err)
		}
	}

	store, err := OpenStore(ctx, c.Database)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	d.store = store

	if c.AMQP.Enabled {
		if d.pub, err = rabbitmq.NewPublisher(c.AMQP.Conn, c.AMQP.Publisher); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	log.Infof("data ready. driver=%s redis=%v amqp=%v", c.Database.Driver, d.rdb != nil, d.pub != nil)
	return d, cleanup, nil
}

// Ping 健康检查
func (d *Data) Ping(ctx context.Context) error {
	if d.rdb != nil {
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if err := d.store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

func NewSessionRepo(d *Data) game.SessionRepo {
	return d.store
}

// NewRecorders 数据库总是记录，amqp 启用时额外广播
func NewRecorders(d *Data) []game.Recorder {
	rs := []game.Recorder{d.store}
	if d.pub != nil {
		rs = append(rs, &outcomePublisher{pub: d.pub})
	}
	return rs
}

// NewHistory 未启用时返回 nil
func NewHistory(c *conf.Data, d *Data) engine.History {
	if !c.History.Enabled || d.rdb == nil {
		return nil
	}
	return newStreamHistory(d.rdb, c.History.Stream, c.History.MaxLen)
}
