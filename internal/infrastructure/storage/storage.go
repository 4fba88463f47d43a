package storage

import (
	"context"
	"sync"

	"mktstream/internal/application/port"
)

// Record 内存存储中的一条记录
type Record struct {
	Key     string // 缓存键或频道名
	Payload []byte
	Ts      int64
}

// Memory is a simple in-memory repository, used when no external store is configured
type Memory struct {
	mu       sync.RWMutex
	latest   map[string]Record
	messages []Record
	limit    int
}

// NewMemory creates an in-memory repository; limit caps the message tape (0 keeps everything)
func NewMemory(limit int) *Memory {
	return &Memory{
		latest: make(map[string]Record),
		limit:  limit,
	}
}

func (m *Memory) UpsertLatest(ctx context.Context, key string, payload []byte, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[key] = Record{Key: key, Payload: append([]byte(nil), payload...), Ts: ts}
	return nil
}

func (m *Memory) AppendMessage(ctx context.Context, channel string, payload []byte, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Record{Key: channel, Payload: append([]byte(nil), payload...), Ts: ts})
	if m.limit > 0 && len(m.messages) > m.limit {
		m.messages = append([]Record(nil), m.messages[len(m.messages)-m.limit:]...)
	}
	return nil
}

// Latest returns the stored value for key
func (m *Memory) Latest(key string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[key]
	return r, ok
}

// Messages returns the tape for channel in arrival order; empty channel returns everything
func (m *Memory) Messages(channel string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.messages {
		if channel == "" || r.Key == channel {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) Close() error { return nil }

// Noop discards everything
type Noop struct{}

func (Noop) UpsertLatest(context.Context, string, []byte, int64) error  { return nil }
func (Noop) AppendMessage(context.Context, string, []byte, int64) error { return nil }
func (Noop) Close() error                                               { return nil }

var (
	_ port.Repository = (*Memory)(nil)
	_ port.Repository = Noop{}
)
