package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/library/xgo"
)

var errFeedClosed = errors.New("feed: closed")

// FeedConfig 推送连接参数
type FeedConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadDeadline time.Duration
	SendChanSize int
}

func defaultFeedConfig(buf int) *FeedConfig {
	return &FeedConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 15 * time.Second,
		ReadDeadline: 60 * time.Second,
		SendChanSize: buf,
	}
}

// feedConn 一个 websocket 订阅者，只写不读，读循环用来感知断开
type feedConn struct {
	id       string
	channel  string
	hub      *Hub
	conn     *websocket.Conn
	config   *FeedConfig
	connMu   sync.Mutex
	sendMu   sync.Mutex
	sendChan chan []byte
	closed   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func newFeedConn(h *Hub, channel string, conn *websocket.Conn, config *FeedConfig) *feedConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &feedConn{
		id:       uuid.NewString(),
		channel:  channel,
		hub:      h,
		conn:     conn,
		config:   config,
		sendChan: make(chan []byte, config.SendChanSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *feedConn) run() {
	go c.readPump()
	go c.writePump()
}

// send 缓冲满时丢弃，慢连接不拖累其他订阅者
func (c *feedConn) send(msg []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return errFeedClosed
	}
	select {
	case c.sendChan <- msg:
		return nil
	default:
		log.Warnf("feed buffer full, drop update. id=%s channel=%s", c.id, c.channel)
		return nil
	}
}

func (c *feedConn) readPump() {
	defer xgo.RecoverFromError(nil)
	defer c.close()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.ReadDeadline))
	})
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadDeadline)); err != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("feed unexpected close. id=%s err=%v", c.id, err)
			}
			return
		}
	}
}

func (c *feedConn) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				log.Infof("feed write aborted. id=%s err=%v", c.id, err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *feedConn) write(msgType int, data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(msgType, data)
}

func (c *feedConn) close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()

	c.sendMu.Lock()
	close(c.sendChan)
	c.sendMu.Unlock()

	c.connMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.config.WriteTimeout))
	_ = c.conn.Close()
	c.connMu.Unlock()

	c.hub.remove(c)
}

// Hub 按频道分组的订阅者，实现 engine.Presenter
type Hub struct {
	mu       sync.RWMutex
	count    atomic.Int32
	channels map[string]map[string]*feedConn
	config   *FeedConfig
}

var _ engine.Presenter = (*Hub)(nil)

func NewHub(config *FeedConfig) *Hub {
	return &Hub{
		channels: make(map[string]map[string]*feedConn),
		config:   config,
	}
}

func (h *Hub) Len() int32 {
	return h.count.Load()
}

// subscribe 先发快照再登记，之后的推送按引擎顺序到达
func (h *Hub) subscribe(channel string, conn *websocket.Conn, snapshot []engine.Update) *feedConn {
	c := newFeedConn(h, channel, conn, h.config)
	for _, u := range snapshot {
		if msg, err := json.Marshal(u); err == nil {
			_ = c.send(msg)
		}
	}
	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]*feedConn)
		h.channels[channel] = subs
	}
	subs[c.id] = c
	h.mu.Unlock()

	n := h.count.Add(1)
	log.Infof("feed subscribed. id=%s channel=%s remote=%s feeds=%d", c.id, channel, conn.RemoteAddr(), n)
	c.run()
	return c
}

func (h *Hub) remove(c *feedConn) {
	h.mu.Lock()
	subs := h.channels[c.channel]
	_, ok := subs[c.id]
	delete(subs, c.id)
	if len(subs) == 0 {
		delete(h.channels, c.channel)
	}
	h.mu.Unlock()
	if ok {
		log.Infof("feed closed. id=%s channel=%s feeds=%d", c.id, c.channel, h.count.Add(-1))
	}
}

// Update 推送给频道内所有订阅者
func (h *Hub) Update(_ context.Context, u engine.Update) error {
	msg, err := json.Marshal(u)
	if err != nil {
		return err
	}
	h.mu.RLock()
	subs := make([]*feedConn, 0, len(h.channels[u.Channel]))
	for _, c := range h.channels[u.Channel] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()
	for _, c := range subs {
		_ = c.send(msg)
	}
	return nil
}

// Close 断开所有订阅者
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*feedConn
	for _, subs := range h.channels {
		for _, c := range subs {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}
