package realtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
)

type opKind int

const (
	opSubscribe opKind = iota + 1
	opRelease
	opFlush
)

// wireOp 待执行的传输层操作。epoch 为入队时的连接代数，
// 连接断开后旧代数的订阅指令作废，由重连后的补发负责
type wireOp struct {
	kind    opKind
	channel string
	auth    any
	wired   bool // opRelease: 是否需要发送退订指令
	epoch   uint64
	done    chan struct{}
}

// entry 单个频道的记账信息
type entry struct {
	refs      int
	callbacks map[*Callback]struct{}
	auth      any
	wired     bool // 当前连接上已发出订阅指令
}

// Registry 频道引用计数与回调集合。
//
// 引用计数 0->1 时发出一次订阅，1->0 时发出一次退订并删除记录；
// 传输层操作进入有序队列由单个协程执行，调用方从不阻塞。
// 未连接时 0->1 只记账，连接建立后由 Reconcile 统一补发
type Registry struct {
	transport  port.Transport
	state      StateReader
	dispatcher *Dispatcher

	mu       sync.Mutex
	channels map[string]*entry
	epoch    uint64

	ops  *opQueue[wireOp]
	done chan struct{}
	once sync.Once
}

// NewRegistry 创建频道注册表，并创建以其为回调来源的 Dispatcher
func NewRegistry(transport port.Transport, state StateReader, opts ...DispatcherOption) *Registry {
	r := &Registry{
		transport: transport,
		state:     state,
		channels:  make(map[string]*entry),
		ops:       newOpQueue[wireOp](64),
		done:      make(chan struct{}),
	}
	r.dispatcher = NewDispatcher(r, opts...)
	go r.worker()
	return r
}

// Dispatcher 返回注册表使用的分发器
func (r *Registry) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// Acquire 增加引用计数，cb 非空时加入回调集合（同一实例幂等）
func (r *Registry) Acquire(name string, cb *Callback) {
	r.AcquireWithAuth(name, cb, nil)
}

// AcquireWithAuth 同 Acquire，首次订阅时随订阅指令携带频道鉴权数据
func (r *Registry) AcquireWithAuth(name string, cb *Callback, auth any) {
	r.mu.Lock()
	e, ok := r.channels[name]
	if !ok {
		e = &entry{callbacks: make(map[*Callback]struct{}), auth: auth}
		r.channels[name] = e
	}
	if cb != nil {
		e.callbacks[cb] = struct{}{}
	}
	e.refs++
	refs := e.refs

	connected := r.state.State() == StateConnected
	if refs == 1 && connected {
		e.wired = true
		r.ops.Push(wireOp{kind: opSubscribe, channel: name, auth: e.auth, epoch: r.epoch})
	}
	r.mu.Unlock()

	ev := log.Debug().Str("channel", name).Int("refs", refs)
	if refs == 1 && !connected {
		ev = ev.Bool("deferred", true)
	}
	ev.Msg("subscribe channel")
}

// Release 移除回调（如有）并减少引用计数，计数不会小于 0。
// 1->0 时删除记录并退订
func (r *Registry) Release(name string, cb *Callback) {
	r.mu.Lock()
	e, ok := r.channels[name]
	if !ok || e.refs <= 0 {
		r.mu.Unlock()
		log.Warn().Str("channel", name).Msg("unsubscribe channel - no active references")
		return
	}
	if cb != nil {
		delete(e.callbacks, cb)
	}
	e.refs--
	refs := e.refs
	if refs == 0 {
		delete(r.channels, name)
		r.ops.Push(wireOp{kind: opRelease, channel: name, wired: e.wired, epoch: r.epoch})
	}
	r.mu.Unlock()

	log.Debug().Str("channel", name).Int("refs", refs).Msg("unsubscribe channel")
}

// Hold 获取一个作用域订阅，返回的 Lease 释放时对称地 Release
func (r *Registry) Hold(name string, cb *Callback) *Lease {
	r.Acquire(name, cb)
	return newLease(func() { r.Release(name, cb) })
}

// Reconcile 连接建立后补发所有引用计数 >= 1 且尚未订阅的频道
func (r *Registry) Reconcile() {
	r.mu.Lock()
	n := 0
	for name, e := range r.channels {
		if e.refs > 0 && !e.wired {
			e.wired = true
			r.ops.Push(wireOp{kind: opSubscribe, channel: name, auth: e.auth, epoch: r.epoch})
			n++
		}
	}
	r.mu.Unlock()

	if n > 0 {
		log.Info().Int("channels", n).Msg("re-issuing channel subscriptions")
	}
}

// Invalidate 连接断开后所有频道视为未订阅；引用计数保持不变
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.epoch++
	for _, e := range r.channels {
		e.wired = false
	}
	r.mu.Unlock()
}

// Callbacks 回调集合快照，顺序不定
func (r *Registry) Callbacks(name string) []*Callback {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.channels[name]
	if !ok {
		return nil
	}
	out := make([]*Callback, 0, len(e.callbacks))
	for cb := range e.callbacks {
		out = append(out, cb)
	}
	return out
}

// Refs 频道当前引用计数
func (r *Registry) Refs(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.channels[name]; ok {
		return e.refs
	}
	return 0
}

// Channels 所有引用计数 >= 1 的频道，按名称排序
func (r *Registry) Channels() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.channels))
	for name := range r.channels {
		out = append(out, name)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

// Close 停止传输层操作协程与分发器；已入队的操作会先执行完
func (r *Registry) Close() {
	r.once.Do(func() {
		r.ops.Close()
		<-r.done
		r.dispatcher.Stop()
	})
}

func (r *Registry) worker() {
	defer close(r.done)
	for {
		op, ok := r.ops.Pop()
		if !ok {
			return
		}
		r.execute(op)
	}
}

func (r *Registry) execute(op wireOp) {
	switch op.kind {
	case opSubscribe:
		if !r.current(op.epoch) {
			log.Debug().Str("channel", op.channel).Msg("stale subscribe dropped")
			return
		}
		stream, err := r.transport.Subscribe(op.channel, op.auth)
		if err != nil {
			log.Warn().Err(err).Str("channel", op.channel).Msg("subscribe failed, will retry on reconnect")
			r.unwire(op.channel, op.epoch)
			return
		}
		r.dispatcher.Attach(op.channel, stream)

	case opRelease:
		if op.wired && r.current(op.epoch) {
			if err := r.transport.Unsubscribe(op.channel); err != nil {
				log.Warn().Err(err).Str("channel", op.channel).Msg("unsubscribe failed")
			}
		}
		r.transport.CloseChannel(op.channel)
		r.dispatcher.Detach(op.channel)

	case opFlush:
		close(op.done)
	}
}

// flush 等待此前入队的所有操作执行完毕
func (r *Registry) flush() {
	done := make(chan struct{})
	if !r.ops.Push(wireOp{kind: opFlush, done: done}) {
		return
	}
	<-done
}

func (r *Registry) current(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch == epoch
}

func (r *Registry) unwire(name string, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.channels[name]; ok && r.epoch == epoch {
		e.wired = false
	}
}
