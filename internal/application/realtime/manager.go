package realtime

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
)

// RetryPolicy 出错后的重连策略
// 零值表示立即重连、不退避、不限次数（与行情前端一致）；
// InitialDelay > 0 时启用带抖动的指数退避，上限为 MaxDelay
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (p RetryPolicy) backoff() bool { return p.InitialDelay > 0 }

// ConnectionManager 持有 Transport，运行连接状态机
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED (closed)
//	                                        -> CONNECTING   (error, 立即重连)
type ConnectionManager struct {
	transport port.Transport
	retry     RetryPolicy

	state atomic.Int32

	ready     chan struct{}
	readyOnce sync.Once

	hooksMu        sync.RWMutex
	onConnected    []func()
	onDisconnected []func()

	// 仅由事件协程访问
	delay time.Duration

	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewConnectionManager 创建连接管理器，初始状态为 DISCONNECTED
func NewConnectionManager(transport port.Transport, retry RetryPolicy) *ConnectionManager {
	return &ConnectionManager{
		transport: transport,
		retry:     retry,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// State 当前连接状态
func (m *ConnectionManager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// Ready 首次连接成功后关闭，作为需要在线连接的操作的门闸
func (m *ConnectionManager) Ready() <-chan struct{} {
	return m.ready
}

// OnConnected 注册连接成功回调，在事件协程中同步执行
func (m *ConnectionManager) OnConnected(fn func()) {
	m.hooksMu.Lock()
	m.onConnected = append(m.onConnected, fn)
	m.hooksMu.Unlock()
}

// OnDisconnected 注册连接关闭回调，在事件协程中同步执行
func (m *ConnectionManager) OnDisconnected(fn func()) {
	m.hooksMu.Lock()
	m.onDisconnected = append(m.onDisconnected, fn)
	m.hooksMu.Unlock()
}

// Start 启动事件协程，消费 Transport 的生命周期事件
func (m *ConnectionManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop 停止事件协程（不关闭 Transport）
func (m *ConnectionManager) Stop() {
	m.once.Do(func() {
		close(m.stopped)
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}

// Connect 幂等：仅在 DISCONNECTED 时发起连接
func (m *ConnectionManager) Connect() {
	if !m.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		log.Debug().Str("state", m.State().String()).Msg("connect skipped")
		return
	}
	log.Info().Msg("feed connecting")
	m.transport.Connect()
}

func (m *ConnectionManager) run(ctx context.Context) {
	defer close(m.done)

	events := m.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Warn().Msg("transport event stream closed")
				return
			}
			m.handle(ev)
		}
	}
}

func (m *ConnectionManager) handle(ev port.Event) {
	switch ev.Kind {
	case port.EventConnected:
		m.state.Store(int32(StateConnected))
		m.delay = 0
		m.readyOnce.Do(func() { close(m.ready) })
		log.Info().Str("socket_id", ev.ID).Msg("feed connected")
		m.fire(m.connectedHooks())

	case port.EventClosed:
		m.state.Store(int32(StateDisconnected))
		log.Warn().Int("code", ev.Code).Str("reason", ev.Reason).Msg("feed closed")
		m.fire(m.disconnectedHooks())

	case port.EventError:
		m.state.Store(int32(StateConnecting))
		log.Error().Err(ev.Cause).Msg("feed error, reconnecting")
		m.reconnect()

	default:
		log.Warn().Int("kind", int(ev.Kind)).Msg("unknown transport event")
	}
}

// reconnect 每个 error 事件恰好触发一次 Transport.Connect
func (m *ConnectionManager) reconnect() {
	if !m.retry.backoff() {
		m.transport.Connect()
		return
	}

	if m.delay == 0 {
		m.delay = m.retry.InitialDelay
	} else {
		m.delay *= 2
	}
	if m.retry.MaxDelay > 0 && m.delay > m.retry.MaxDelay {
		m.delay = m.retry.MaxDelay
	}
	// 抖动范围 [delay/2, delay)
	wait := m.delay/2 + time.Duration(rand.Int64N(int64(m.delay/2)+1))

	log.Info().Int64("delay_ms", wait.Milliseconds()).Msg("retrying feed connection")
	time.AfterFunc(wait, func() {
		select {
		case <-m.stopped:
			return
		default:
		}
		m.transport.Connect()
	})
}

func (m *ConnectionManager) connectedHooks() []func() {
	m.hooksMu.RLock()
	defer m.hooksMu.RUnlock()
	return append([]func(){}, m.onConnected...)
}

func (m *ConnectionManager) disconnectedHooks() []func() {
	m.hooksMu.RLock()
	defer m.hooksMu.RUnlock()
	return append([]func(){}, m.onDisconnected...)
}

func (m *ConnectionManager) fire(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
