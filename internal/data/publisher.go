package data

import (
	"context"

	"github.com/yola1107/parlor/internal/biz/game"
)

type jsonPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// outcomePublisher 结果广播到 amqp，路由键 outcome.<kind>
type outcomePublisher struct {
	pub jsonPublisher
}

var _ game.Recorder = (*outcomePublisher)(nil)

func (p *outcomePublisher) Record(ctx context.Context, o game.Outcome) error {
	return p.pub.PublishJSON(ctx, "outcome."+o.Kind, o)
}
