package socketcluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
)

const eventBuffer = 64

// Client SocketCluster 协议（JSON 编码）的行情连接，实现 port.Transport。
//
// 同一时间最多一条连接；Connect 异步拨号，结果通过 Events 上报：
// 握手成功 -> connected；连接中断 -> closed 之后 error；拨号失败 -> error；
// 主动 Close -> 仅 closed。
// 频道消息流在重连之间保持不变，直到 CloseChannel
type Client struct {
	opts   Options
	url    string
	dialer *websocket.Dialer
	events chan port.Event

	mu      sync.Mutex
	sess    *session
	dialing bool
	closed  bool
	streams map[string]*stream

	quit chan struct{}
	wg   sync.WaitGroup
}

var _ port.Transport = (*Client)(nil)

// New 创建客户端，不会立即连接
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts: opts,
		url:  opts.URL(),
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		events:  make(chan port.Event, eventBuffer),
		streams: make(map[string]*stream),
		quit:    make(chan struct{}),
	}
}

// Connect 发起一次异步拨号；已有连接或正在拨号时忽略
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed || c.dialing || c.sess != nil {
		c.mu.Unlock()
		log.Debug().Msg("socketcluster connect ignored")
		return
	}
	c.dialing = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.dial()
}

func (c *Client) dial() {
	defer c.wg.Done()

	id := uuid.NewString()
	log.Info().Str("session", id).Str("host", c.opts.Host).Str("path", c.opts.Path).Msg("ws connecting")

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	cancel()

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		log.Error().Str("session", id).Err(err).Msg("ws dial failed")
		c.emit(port.Event{Kind: port.EventError, Cause: fmt.Errorf("dial: %w", err)})
		return
	}
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	s := newSession(id, conn, c.opts.AckTimeout, c.opts.PingTimeout)
	c.sess = s
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(s)

	err = s.invoke(eventHandshake, handshakeRequest{}, func(data json.RawMessage, err error) {
		c.onHandshake(s, data, err)
	})
	if err != nil {
		s.fail(fmt.Errorf("handshake: %w", err))
	}
}

func (c *Client) onHandshake(s *session, data json.RawMessage, err error) {
	if err != nil {
		s.fail(fmt.Errorf("handshake rejected: %w", err))
		return
	}
	var resp handshakeResponse
	if len(data) > 0 {
		if e := json.Unmarshal(data, &resp); e != nil {
			s.fail(fmt.Errorf("handshake decode: %w", e))
			return
		}
	}

	s.socketID = resp.ID
	s.pingTimeout.Store(int64(resp.pingTimeout(c.opts.PingTimeout)))
	s.extendDeadline()
	s.open.Store(true)

	log.Info().Str("session", s.id).Str("socket_id", resp.ID).Msg("ws connected")
	c.emit(port.Event{Kind: port.EventConnected, ID: resp.ID})
}

// readLoop 是会话生命周期事件的唯一出口，保证 connected 先于 closed/error
func (c *Client) readLoop(s *session) {
	defer c.wg.Done()

	s.extendDeadline()
	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			c.finish(s, err)
			return
		}
		s.extendDeadline()
		c.handleFrame(s, b)
	}
}

func (c *Client) finish(s *session, readErr error) {
	s.fail(readErr)

	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()

	if errors.Is(s.failure, ErrClosed) {
		log.Info().Str("session", s.id).Msg("ws closed")
		c.emit(port.Event{Kind: port.EventClosed, Code: websocket.CloseNormalClosure, Reason: "client closed"})
		return
	}

	code, reason := closeInfo(readErr)
	log.Warn().Str("session", s.id).Int("code", code).Err(s.failure).Msg("ws disconnected")
	c.emit(port.Event{Kind: port.EventClosed, Code: code, Reason: reason})
	c.emit(port.Event{Kind: port.EventError, Cause: s.failure})
}

func (c *Client) handleFrame(s *session, b []byte) {
	switch string(b) {
	case pingV1:
		_ = s.writeText([]byte(pongV1))
		return
	case "":
		_ = s.writeText([]byte{})
		return
	}

	var f inFrame
	if err := json.Unmarshal(b, &f); err != nil {
		log.Warn().Str("session", s.id).Err(err).Msg("frame decode failed")
		return
	}
	if f.RID != 0 {
		s.resolve(f.RID, f.Data, ackError(f.Error))
		return
	}

	switch f.Event {
	case eventPublish:
		var p publishData
		if err := json.Unmarshal(f.Data, &p); err != nil {
			log.Warn().Str("session", s.id).Err(err).Msg("publish decode failed")
			return
		}
		c.route(s, p)
	case eventKickOut:
		log.Warn().Str("session", s.id).RawJSON("data", f.Data).Msg("kicked out of channel")
	default:
		log.Debug().Str("session", s.id).Str("event", f.Event).Msg("event ignored")
	}
}

func (c *Client) route(s *session, p publishData) {
	c.mu.Lock()
	st, ok := c.streams[p.Channel]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("channel", p.Channel).Msg("publish for inactive channel")
		return
	}
	if !st.deliver(port.Message{Channel: p.Channel, Data: p.Data}) {
		if n := st.dropped.Load(); n == 1 || n%1000 == 0 {
			log.Warn().Str("session", s.id).Str("channel", p.Channel).Int64("dropped", n).Msg("channel consumer too slow, dropping")
		}
	}
}

// active 返回已完成握手的会话
func (c *Client) active() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.sess == nil || !c.sess.open.Load() {
		return nil, ErrNotConnected
	}
	return c.sess, nil
}

// Subscribe 发送订阅指令后立即返回频道消息流，不等待应答。
// 应答被拒绝只记录日志；应答超时会断开连接
func (c *Client) Subscribe(name string, auth any) (<-chan port.Message, error) {
	s, err := c.active()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	st, ok := c.streams[name]
	if !ok {
		st = newStream()
		c.streams[name] = st
	}
	c.mu.Unlock()

	err = s.invoke(eventSubscribe, subscribeRequest{Channel: name, Data: auth}, func(_ json.RawMessage, err error) {
		if err != nil {
			log.Warn().Str("session", s.id).Str("channel", name).Err(err).Msg("subscribe rejected")
			return
		}
		log.Debug().Str("session", s.id).Str("channel", name).Msg("subscribe acknowledged")
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	return st.ch, nil
}

// Unsubscribe 发送退订指令
func (c *Client) Unsubscribe(name string) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	if err := s.emit(eventUnsubscribe, name); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", name, err)
	}
	return nil
}

// CloseChannel 关闭频道消息流，之后的推送被丢弃
func (c *Client) CloseChannel(name string) {
	c.mu.Lock()
	st, ok := c.streams[name]
	delete(c.streams, name)
	c.mu.Unlock()

	if ok {
		st.close()
	}
}

func (c *Client) Events() <-chan port.Event {
	return c.events
}

// Close 主动断开并关闭所有消息流；之后 Connect 不再生效
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.sess
	streams := c.streams
	c.streams = make(map[string]*stream)
	c.mu.Unlock()

	if s != nil {
		s.fail(ErrClosed)
	}
	close(c.quit)
	c.wg.Wait()

	for _, st := range streams {
		st.close()
	}
	return nil
}

// emit 事件缓冲满时阻塞，直到被消费或客户端关闭
func (c *Client) emit(ev port.Event) {
	select {
	case c.events <- ev:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.quit:
		log.Debug().Str("event", ev.Kind.String()).Msg("event dropped after close")
	}
}
