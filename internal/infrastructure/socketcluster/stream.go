package socketcluster

import (
	"sync"
	"sync/atomic"

	"mktstream/internal/application/port"
)

const streamBuffer = 256

// stream 单个频道的消息流，跨重连保持同一个 channel
type stream struct {
	ch chan port.Message

	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	dropped atomic.Int64
}

func newStream() *stream {
	return &stream{
		ch: make(chan port.Message, streamBuffer),
	}
}

// deliver 不阻塞读协程：缓冲区满时丢弃该消息并计数，返回是否投递成功。
// 已关闭的流静默丢弃
func (s *stream) deliver(msg port.Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *stream) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
