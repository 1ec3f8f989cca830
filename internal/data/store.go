package data

import (
	"context"
	"fmt"
	"time"

	"github.com/yola1107/parlor/internal/biz/game"
	"github.com/yola1107/parlor/internal/conf"
)

// Store 对局结果与可恢复会话的持久化
type Store interface {
	game.Recorder
	game.SessionRepo
	Ping(ctx context.Context) error
	Close() error
}

// OpenStore 按 driver 打开数据库并建表
func OpenStore(ctx context.Context, c *conf.Database) (Store, error) {
	switch c.Driver {
	case "postgres":
		return openPostgres(ctx, c.DSN)
	case "", "sqlite":
		return openSQLite(ctx, c.DSN)
	}
	return nil, fmt.Errorf("unknown database driver %q", c.Driver)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// 两种方言共用的表结构，只有二进制列类型不同
const schemaTmpl = `
CREATE TABLE IF NOT EXISTS outcomes (
  id               TEXT PRIMARY KEY,
  server           TEXT NOT NULL,
  channel          TEXT NOT NULL,
  kind             TEXT NOT NULL,
  mode             TEXT NOT NULL,
  winner_id        TEXT NOT NULL,
  duration_seconds BIGINT NOT NULL,
  final_score      TEXT NOT NULL,
  ended_at         BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS outcome_participants (
  outcome_id     TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  seat           INTEGER NOT NULL,
  PRIMARY KEY (outcome_id, participant_id)
);
CREATE TABLE IF NOT EXISTS saved_sessions (
  session_key    TEXT PRIMARY KEY,
  kind           TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  channel        TEXT NOT NULL,
  server         TEXT NOT NULL,
  data           %s NOT NULL,
  updated_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS saved_sessions_kind ON saved_sessions (kind);
`
