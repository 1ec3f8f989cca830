package data

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/yola1107/parlor/internal/biz/economy"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/pkg/codes"
)

const (
	fieldBalance = "balance"
	fieldShields = "shields"
	fieldLosses  = "losses"
)

// 余额字段不存在时先写入初始余额，保证读改写在一个脚本内完成
var (
	debitScript = redis.NewScript(`
local b = redis.call('HGET', KEYS[1], 'balance')
if not b then
  b = ARGV[2]
  redis.call('HSET', KEYS[1], 'balance', b)
end
local amt = tonumber(ARGV[1])
if tonumber(b) < amt then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'balance', -amt)
`)

	creditScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'balance', ARGV[2])
return redis.call('HINCRBY', KEYS[1], 'balance', tonumber(ARGV[1]))
`)

	lossScript = redis.NewScript(`
redis.call('HINCRBY', KEYS[1], 'losses', 1)
local s = tonumber(redis.call('HGET', KEYS[1], 'shields') or '0')
if s > 0 then
  return {1, redis.call('HINCRBY', KEYS[1], 'shields', -1)}
end
return {0, 0}
`)
)

// redisLedger 余额存在 hash: <prefix><participant> {balance, shields, losses}
type redisLedger struct {
	rdb      *redis.Client
	prefix   string
	starting int64
}

var _ economy.Gateway = (*redisLedger)(nil)

// NewGateway 按 economy.backend 选择账本实现
func NewGateway(c *conf.Economy, d *Data) (economy.Gateway, error) {
	switch c.Backend {
	case "", "memory":
		return economy.NewMemory(c.StartingBalance), nil
	case "redis":
		if d.rdb == nil {
			return nil, fmt.Errorf("economy backend redis: redis not configured")
		}
		return newRedisLedger(d.rdb, c.KeyPrefix, c.StartingBalance), nil
	}
	return nil, fmt.Errorf("unknown economy backend %q", c.Backend)
}

func newRedisLedger(rdb *redis.Client, prefix string, starting int64) *redisLedger {
	return &redisLedger{rdb: rdb, prefix: prefix, starting: starting}
}

func (l *redisLedger) key(id string) string {
	return l.prefix + id
}

func (l *redisLedger) Debit(ctx context.Context, id string, amount int64, reason string) error {
	if amount < 0 {
		return codes.Validation("debit amount %d is negative", amount)
	}
	if amount == 0 {
		return nil
	}
	left, err := debitScript.Run(ctx, l.rdb, []string{l.key(id)}, amount, l.starting).Int64()
	if err != nil {
		return fmt.Errorf("debit %s: %w", id, err)
	}
	if left < 0 {
		return codes.ErrInsufficientFunds
	}
	log.Debugf("wallet debit. id=%s amount=%d reason=%s balance=%d", id, amount, reason, left)
	return nil
}

func (l *redisLedger) Credit(ctx context.Context, id string, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, codes.Validation("credit amount %d is negative", amount)
	}
	b, err := creditScript.Run(ctx, l.rdb, []string{l.key(id)}, amount, l.starting).Int64()
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", id, err)
	}
	log.Debugf("wallet credit. id=%s amount=%d reason=%s balance=%d", id, amount, reason, b)
	return b, nil
}

func (l *redisLedger) RecordLoss(ctx context.Context, id, _ string) (economy.LossResult, error) {
	v, err := lossScript.Run(ctx, l.rdb, []string{l.key(id)}).Int64Slice()
	if err != nil {
		return economy.LossResult{}, fmt.Errorf("record loss %s: %w", id, err)
	}
	if len(v) != 2 || v[0] == 0 {
		return economy.LossResult{}, nil
	}
	return economy.LossResult{ShieldUsed: true, Shields: int(v[1])}, nil
}

func (l *redisLedger) Balance(ctx context.Context, id string) (int64, error) {
	s, err := l.rdb.HGet(ctx, l.key(id), fieldBalance).Result()
	if err == redis.Nil {
		return l.starting, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", id, err)
	}
	return strconv.ParseInt(s, 10, 64)
}

// GrantShield 发放输局保护
func (l *redisLedger) GrantShield(ctx context.Context, id string, n int) error {
	return l.rdb.HIncrBy(ctx, l.key(id), fieldShields, int64(n)).Err()
}

// Losses 累计输局次数
func (l *redisLedger) Losses(ctx context.Context, id string) (int64, error) {
	n, err := l.rdb.HGet(ctx, l.key(id), fieldLosses).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
