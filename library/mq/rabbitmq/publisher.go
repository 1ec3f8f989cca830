package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

var ErrNacked = errors.New("rabbitmq: publish nacked by broker")

// Publisher 单连接单 channel，发布串行；连接断开后下一次发布时重连
type Publisher struct {
	opts    Options
	pubOpts PublisherOptions

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

func NewPublisher(opts Options, pubOpts PublisherOptions) (*Publisher, error) {
	p := &Publisher{opts: opts, pubOpts: pubOpts}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.opts.BuildURL())
	if err != nil {
		return fmt.Errorf("amqp dial %s:%s: %w", p.opts.Host, p.opts.Port, err)
	}
	ch, err := conn.Channel()
	if err == nil && p.pubOpts.Exchange != "" {
		err = ch.ExchangeDeclare(p.pubOpts.Exchange, p.pubOpts.ExchangeType, true, false, false, false, nil)
	}
	if err == nil && p.pubOpts.Confirm {
		if err = ch.Confirm(false); err == nil {
			p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
		}
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel setup: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch, p.confirms = nil, nil, nil
}

// Publish 开启 Confirm 时等 broker 确认或 ctx 结束
func (p *Publisher) Publish(ctx context.Context, routingKey, contentType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.pubOpts.RoutingKey != "" {
		routingKey = p.pubOpts.RoutingKey
	}
	msg := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    uuid.NewString(),
		AppId:        p.pubOpts.AppID,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		p.release()
		if err := p.connect(); err != nil {
			return err
		}
	}
	if err := p.ch.Publish(p.pubOpts.Exchange, routingKey, p.pubOpts.Mandatory, false, msg); err != nil {
		p.release()
		return err
	}
	if p.confirms == nil {
		return nil
	}
	select {
	case c, ok := <-p.confirms:
		if !ok {
			p.release()
			return amqp.ErrClosed
		}
		if !c.Ack {
			return ErrNacked
		}
		return nil
	case <-ctx.Done():
		// 确认迟到会错位，直接换连接
		p.release()
		return ctx.Err()
	}
}

// PublishJSON 序列化后发布
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return p.Publish(ctx, routingKey, "application/json", body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
}
