package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mktstream/internal/application/port"
)

// fakeTransport 记录所有传输层调用，消息流跨订阅保持不变
type fakeTransport struct {
	mu           sync.Mutex
	streams      map[string]chan port.Message
	subscribes   map[string]int
	unsubscribes map[string]int
	closed       map[string]int
	auths        map[string]any
	failNext     map[string]bool
	connects     atomic.Int32
	events       chan port.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		streams:      make(map[string]chan port.Message),
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
		closed:       make(map[string]int),
		auths:        make(map[string]any),
		failNext:     make(map[string]bool),
		events:       make(chan port.Event, 16),
	}
}

func (f *fakeTransport) Connect() { f.connects.Add(1) }

func (f *fakeTransport) Subscribe(name string, auth any) (<-chan port.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext[name] {
		delete(f.failNext, name)
		return nil, errors.New("not connected")
	}
	f.subscribes[name]++
	f.auths[name] = auth
	ch, ok := f.streams[name]
	if !ok {
		ch = make(chan port.Message, 16)
		f.streams[name] = ch
	}
	return ch, nil
}

func (f *fakeTransport) Unsubscribe(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes[name]++
	return nil
}

func (f *fakeTransport) CloseChannel(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.streams[name]; ok {
		close(ch)
		delete(f.streams, name)
	}
	f.closed[name]++
}

func (f *fakeTransport) Events() <-chan port.Event { return f.events }

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) subCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[name]
}

func (f *fakeTransport) unsubCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes[name]
}

func (f *fakeTransport) closeCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[name]
}

func (f *fakeTransport) failSubscribe(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[name] = true
}

// publish 向已订阅频道推送一条消息
func (f *fakeTransport) publish(t *testing.T, name string, data string) {
	t.Helper()
	f.mu.Lock()
	ch, ok := f.streams[name]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("channel %s has no stream", name)
	}
	ch <- port.Message{Channel: name, Data: []byte(data)}
}

// fixedState 测试用的可变连接状态
type fixedState struct {
	v atomic.Int32
}

func newFixedState(s ConnectionState) *fixedState {
	st := &fixedState{}
	st.v.Store(int32(s))
	return st
}

func (s *fixedState) State() ConnectionState { return ConnectionState(s.v.Load()) }

func (s *fixedState) set(v ConnectionState) { s.v.Store(int32(v)) }

// waitFor 轮询直到条件成立或超时
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recorder 线程安全地收集回调收到的消息
type recorder struct {
	mu   sync.Mutex
	msgs []port.Message
}

func (r *recorder) callback() *Callback {
	return NewCallback(func(m port.Message) {
		r.mu.Lock()
		r.msgs = append(r.msgs, m)
		r.mu.Unlock()
	})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}
