package socketcluster

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

type pendingAck struct {
	fn    func(data json.RawMessage, err error)
	timer *time.Timer
}

// session 一条 WebSocket 连接及其上未完成的应答
type session struct {
	id         string // 本地会话 ID，用于日志关联
	conn       *websocket.Conn
	ackTimeout time.Duration

	socketID    string // 服务端握手分配
	pingTimeout atomic.Int64
	open        atomic.Bool

	writeMu sync.Mutex

	mu      sync.Mutex
	cid     int64
	pending map[int64]*pendingAck

	done    chan struct{}
	once    sync.Once
	failure error
}

func newSession(id string, conn *websocket.Conn, ackTimeout, pingTimeout time.Duration) *session {
	s := &session{
		id:         id,
		conn:       conn,
		ackTimeout: ackTimeout,
		pending:    make(map[int64]*pendingAck),
		done:       make(chan struct{}),
	}
	s.pingTimeout.Store(int64(pingTimeout))
	return s
}

// emit 发送不需要应答的事件
func (s *session) emit(event string, data any) error {
	return s.writeJSON(outFrame{Event: event, Data: data})
}

// invoke 发送事件并注册应答回调；超时未应答时以 ErrAckTimeout 终止会话
func (s *session) invoke(event string, data any, fn func(json.RawMessage, error)) error {
	s.mu.Lock()
	s.cid++
	cid := s.cid
	ack := &pendingAck{fn: fn}
	ack.timer = time.AfterFunc(s.ackTimeout, func() {
		log.Warn().Str("session", s.id).Str("event", event).Int64("cid", cid).Msg("ack timeout")
		s.fail(ErrAckTimeout)
	})
	s.pending[cid] = ack
	s.mu.Unlock()

	if err := s.writeJSON(outFrame{Event: event, Data: data, CID: cid}); err != nil {
		s.mu.Lock()
		delete(s.pending, cid)
		s.mu.Unlock()
		ack.timer.Stop()
		return err
	}
	return nil
}

func (s *session) resolve(rid int64, data json.RawMessage, err error) {
	s.mu.Lock()
	ack, ok := s.pending[rid]
	delete(s.pending, rid)
	s.mu.Unlock()

	if !ok {
		log.Debug().Str("session", s.id).Int64("rid", rid).Msg("unexpected ack")
		return
	}
	ack.timer.Stop()
	if ack.fn != nil {
		ack.fn(data, err)
	}
}

func (s *session) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeText(b)
}

func (s *session) writeText(b []byte) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// extendDeadline 每收到一帧都顺延读超时
func (s *session) extendDeadline() {
	_ = s.conn.SetReadDeadline(time.Now().Add(time.Duration(s.pingTimeout.Load())))
}

// fail 终止会话，只有第一次调用生效；返回本次调用是否生效
func (s *session) fail(cause error) bool {
	first := false
	s.once.Do(func() {
		first = true
		s.failure = cause
		s.open.Store(false)
		close(s.done)

		s.mu.Lock()
		pending := s.pending
		s.pending = make(map[int64]*pendingAck)
		s.mu.Unlock()
		for _, ack := range pending {
			ack.timer.Stop()
		}

		if errors.Is(cause, ErrClosed) {
			s.writeMu.Lock()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			s.writeMu.Unlock()
		}
		_ = s.conn.Close()
	})
	return first
}

// closeInfo 从读错误中提取关闭码与原因
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	if err != nil {
		return websocket.CloseAbnormalClosure, err.Error()
	}
	return websocket.CloseAbnormalClosure, ""
}
