package realtime

import (
	"sync"

	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
)

// CallbackSource 提供某个频道当前回调集合的快照
type CallbackSource interface {
	Callbacks(name string) []*Callback
}

// DispatcherOption 分发器选项
type DispatcherOption func(*Dispatcher)

// WithTap 每条消息在分发给回调之前先交给 tap（用于录制），tap 不得阻塞
func WithTap(tap func(port.Message)) DispatcherOption {
	return func(d *Dispatcher) { d.tap = tap }
}

// Dispatcher 每个活跃频道一个协程，消费该频道的消息流并扇出到所有回调
type Dispatcher struct {
	source CallbackSource
	tap    func(port.Message)

	mu    sync.Mutex
	pumps map[string]*pump
	wg    sync.WaitGroup
}

type pump struct {
	stream <-chan port.Message
	stop   chan struct{}
}

// NewDispatcher 创建分发器
func NewDispatcher(source CallbackSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		source: source,
		pumps:  make(map[string]*pump),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach 开始消费某频道的消息流。
// 已在消费同一条流时为空操作；流发生变化时替换旧协程
func (d *Dispatcher) Attach(name string, stream <-chan port.Message) {
	if stream == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pumps[name]; ok {
		if p.stream == stream {
			return
		}
		close(p.stop)
	}

	p := &pump{stream: stream, stop: make(chan struct{})}
	d.pumps[name] = p
	d.wg.Add(1)
	go d.run(name, p)

	log.Debug().Str("channel", name).Msg("dispatcher attached")
}

// Detach 停止消费某频道
func (d *Dispatcher) Detach(name string) {
	d.mu.Lock()
	p, ok := d.pumps[name]
	delete(d.pumps, name)
	d.mu.Unlock()

	if ok {
		close(p.stop)
		log.Debug().Str("channel", name).Msg("dispatcher detached")
	}
}

// Active 正在消费的频道数量
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pumps)
}

// Stop 停止所有协程并等待退出
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	for name, p := range d.pumps {
		close(p.stop)
		delete(d.pumps, name)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(name string, p *pump) {
	defer d.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case msg, ok := <-p.stream:
			if !ok {
				d.forget(name, p)
				return
			}
			d.deliver(name, msg)
		}
	}
}

// deliver 每条消息都重新取回调快照，增删回调最迟在下一条消息生效
func (d *Dispatcher) deliver(name string, msg port.Message) {
	if d.tap != nil {
		d.tap(msg)
	}
	for _, cb := range d.source.Callbacks(name) {
		d.invoke(name, cb, msg)
	}
}

func (d *Dispatcher) invoke(name string, cb *Callback, msg port.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("channel", name).Interface("panic", r).Msg("channel callback panicked")
		}
	}()
	cb.call(msg)
}

// forget 消息流被关闭时移除对应记录（仅当仍是同一个 pump）
func (d *Dispatcher) forget(name string, p *pump) {
	d.mu.Lock()
	if cur, ok := d.pumps[name]; ok && cur == p {
		delete(d.pumps, name)
	}
	d.mu.Unlock()
}
