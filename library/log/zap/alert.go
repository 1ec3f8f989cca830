package zap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/yola1107/parlor/library/log/zap/conf"
)

const (
	alertQueueSize   = 1024
	alertBatchLimit  = 1800 // 单条推送最大字节
	alertFlushPeriod = 3 * time.Second
	alertAttempts    = 2
)

// Sender 告警发送通道
type Sender interface {
	SendMessage(string) error
	Close() error
}

// Alert 只接收 error 及以上的日志，攒批后异步推送
type Alert struct {
	zapcore.LevelEnabler
	prefix string
	enc    zapcore.Encoder
	out    *alertQueue
}

type alertQueue struct {
	sender  Sender
	ch      chan string
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

func NewAlert(c *conf.Alerter, sender Sender) *Alert {
	cfg := encoderConfig()
	cfg.EncodeCaller = zapcore.FullCallerEncoder
	enc := zapcore.NewConsoleEncoder(cfg)
	if c.Format == "json" {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	q := &alertQueue{
		sender:  sender,
		ch:      make(chan string, alertQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
	q.wg.Add(1)
	go q.loop()
	return &Alert{LevelEnabler: zap.ErrorLevel, prefix: c.Prefix, enc: enc, out: q}
}

func (a *Alert) With(fields []zapcore.Field) zapcore.Core {
	enc := a.enc.Clone()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return &Alert{LevelEnabler: a.LevelEnabler, prefix: a.prefix, enc: enc, out: a.out}
}

func (a *Alert) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !a.Enabled(ent.Level) {
		return ce
	}
	return ce.AddCore(ent, a)
}

func (a *Alert) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := a.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := strings.TrimRight(buf.String(), "\n")
	buf.Free()
	if a.prefix != "" {
		msg = "<" + a.prefix + "> " + msg
	}
	a.out.push(msg)
	return nil
}

func (a *Alert) Sync() error { return nil }

// Close 停止推送，队列里未发的丢弃
func (a *Alert) Close() error { return a.out.close() }

func (q *alertQueue) push(msg string) {
	if q.closed.Load() {
		return
	}
	select {
	case q.ch <- msg:
	default:
		q.dropped.Add(1)
	}
}

func (q *alertQueue) close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(q.done)
	q.wg.Wait()
	return q.sender.Close()
}

func (q *alertQueue) loop() {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "alert loop panic: %v\n", r)
		}
	}()

	t := time.NewTicker(alertFlushPeriod)
	defer t.Stop()

	var pending []string
	size := 0
	flush := func() {
		if len(pending) > 0 {
			q.send(strings.Join(pending, "\n\n"))
		}
		pending, size = pending[:0], 0
	}
	for {
		select {
		case <-q.done:
			return
		case msg := <-q.ch:
			if size+len(msg) > alertBatchLimit {
				flush()
			}
			pending = append(pending, msg)
			size += len(msg)
		case <-t.C:
			if n := q.dropped.Swap(0); n > 0 {
				pending = append(pending, fmt.Sprintf("(%d alerts dropped)", n))
			}
			flush()
		}
	}
}

func (q *alertQueue) send(content string) {
	if len(content) > alertBatchLimit {
		content = content[:alertBatchLimit] + "\n..."
	}
	for i := 0; i < alertAttempts; i++ {
		if err := q.limiter.Wait(context.Background()); err != nil {
			return
		}
		if err := q.sender.SendMessage(content); err == nil {
			return
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
}

// Webhook 以 {"text": ...} 推送到 incoming webhook
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(c *conf.Webhook) *Webhook {
	w := &Webhook{client: &http.Client{Timeout: 2 * time.Second}}
	if c != nil {
		w.url = c.URL
	}
	return w
}

func (w *Webhook) SendMessage(content string) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return err
	}
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
