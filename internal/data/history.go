package data

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yola1107/parlor/internal/biz/engine"
)

// streamHistory 操作流水写入 redis stream，超过 MaxLen 近似裁剪
type streamHistory struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

var _ engine.History = (*streamHistory)(nil)

func newStreamHistory(rdb *redis.Client, stream string, maxLen int64) *streamHistory {
	return &streamHistory{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (h *streamHistory) Append(ctx context.Context, e engine.HistoryEntry) error {
	return h.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: h.stream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]any{
			"session": e.SessionKey,
			"kind":    e.Kind,
			"channel": e.Channel,
			"actor":   e.ActorID,
			"action":  e.Action,
			"turn":    strconv.FormatInt(e.Turn, 10),
			"at":      e.At.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Recent 最近 n 条，新的在前
func (h *streamHistory) Recent(ctx context.Context, n int64) ([]engine.HistoryEntry, error) {
	msgs, err := h.rdb.XRevRangeN(ctx, h.stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]engine.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		str := func(k string) string {
			s, _ := m.Values[k].(string)
			return s
		}
		turn, _ := strconv.ParseInt(str("turn"), 10, 64)
		at, _ := time.Parse(time.RFC3339Nano, str("at"))
		out = append(out, engine.HistoryEntry{
			SessionKey: str("session"),
			Kind:       str("kind"),
			Channel:    str("channel"),
			ActorID:    str("actor"),
			Action:     str("action"),
			Turn:       turn,
			At:         at,
		})
	}
	return out, nil
}
