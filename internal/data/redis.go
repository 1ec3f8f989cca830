package data

import (
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yola1107/parlor/internal/conf"
)

const (
	defaultRedisAddr   = "127.0.0.1:6379"
	defaultPoolSize    = 10
	defaultMinIdle     = 2
	defaultMaxLifetime = 2 * time.Minute
	defaultMaxIdleTime = 5 * time.Minute
)

// RedisOption 客户端配置项
type RedisOption func(*redis.Options)

// NewRedisClient 默认值之上叠加配置项
func NewRedisClient(opts ...RedisOption) *redis.Client {
	o := &redis.Options{
		Addr:            defaultRedisAddr,
		PoolSize:        defaultPoolSize,
		MinIdleConns:    defaultMinIdle,
		ConnMaxLifetime: defaultMaxLifetime,
		ConnMaxIdleTime: defaultMaxIdleTime,
	}
	for _, opt := range opts {
		opt(o)
	}
	return redis.NewClient(o)
}

// WithAddress 格式不合法时保留默认地址
func WithAddress(addr string) RedisOption {
	return func(o *redis.Options) {
		if _, _, err := net.SplitHostPort(addr); err == nil {
			o.Addr = addr
		}
	}
}

func WithPassword(pass string) RedisOption {
	return func(o *redis.Options) {
		o.Password = pass
	}
}

func WithDB(db int) RedisOption {
	return func(o *redis.Options) {
		if db >= 0 {
			o.DB = db
		}
	}
}

func WithPoolSize(n int) RedisOption {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) {
		if d > 0 {
			o.DialTimeout = d
		}
	}
}

// newRedis 按配置创建客户端，不做连通性检查
func newRedis(c *conf.Redis) *redis.Client {
	return NewRedisClient(
		WithAddress(c.Addr),
		WithPassword(c.Password),
		WithDB(c.DB),
		WithPoolSize(c.PoolSize),
		WithDialTimeout(time.Duration(c.DialTimeoutMs)*time.Millisecond),
	)
}
