package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
)

// RecorderConfig 录制参数
type RecorderConfig struct {
	BufferSize     int           // 待写队列长度，满时丢弃
	RecordMessages bool          // 记录原始频道消息
	RecordLatest   bool          // 镜像缓存最新值
	WriteTimeout   time.Duration // 单次存储写入超时
	Retention      time.Duration // 磁带保留时长，0 表示不清理
	PruneEvery     time.Duration // 清理间隔
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.Retention > 0 && c.PruneEvery <= 0 {
		c.PruneEvery = time.Minute
	}
	return c
}

type recordKind int

const (
	recordMessage recordKind = iota + 1
	recordLatest
)

type record struct {
	kind    recordKind
	key     string
	payload []byte
	value   any
	ts      int64
}

// Recorder 把频道消息与缓存写入异步落到存储。
// 入队从不阻塞行情分发，队列满时丢弃并计数
type Recorder struct {
	repo port.Repository
	cfg  RecorderConfig
	now  func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan record

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
	pruned  atomic.Int64

	done chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewRecorder(repo port.Repository, cfg RecorderConfig) *Recorder {
	cfg = cfg.withDefaults()
	return &Recorder{
		repo:  repo,
		cfg:   cfg,
		now:   time.Now,
		queue: make(chan record, cfg.BufferSize),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
}

// Start 启动写入协程；ctx 结束后队列中剩余的记录直接丢弃。
// 配置了 Retention 且存储支持清理时，同时启动定期清理
func (r *Recorder) Start(ctx context.Context) {
	go r.run(ctx)

	pruner, ok := r.repo.(port.Pruner)
	if r.cfg.Retention <= 0 || !ok {
		return
	}
	r.wg.Add(1)
	go r.pruneLoop(ctx, pruner)
}

// Tap 作为分发器的 tap，记录每条频道消息
func (r *Recorder) Tap(msg port.Message) {
	if !r.cfg.RecordMessages {
		return
	}
	r.enqueue(record{kind: recordMessage, key: msg.Channel, payload: msg.Data, ts: r.now().UnixMilli()})
}

// Mirror 作为缓存的写入钩子，序列化推迟到写入协程
func (r *Recorder) Mirror(key string, value any) {
	if !r.cfg.RecordLatest {
		return
	}
	r.enqueue(record{kind: recordLatest, key: key, value: value, ts: r.now().UnixMilli()})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		if n := r.dropped.Add(1); n == 1 || n%1000 == 0 {
			log.Warn().Int64("dropped", n).Str("key", rec.key).Msg("recorder queue full, dropping")
		}
	}
}

// Stop 停止接收新记录，写完队列中剩余记录后返回（Start 的 ctx 未结束时）
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.quit)
		r.wg.Wait()

		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
		log.Info().
			Int64("written", r.written.Load()).
			Int64("dropped", r.dropped.Load()).
			Int64("failed", r.failed.Load()).
			Int64("pruned", r.pruned.Load()).
			Msg("recorder stopped")
	})
}

// Stats 已写入、已丢弃、写入失败的记录数
func (r *Recorder) Stats() (written, dropped, failed int64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}

// Pruned 定期清理累计删除的磁带记录数
func (r *Recorder) Pruned() int64 {
	return r.pruned.Load()
}

func (r *Recorder) pruneLoop(ctx context.Context, pruner port.Pruner) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case <-ticker.C:
			r.prune(ctx, pruner)
		}
	}
}

func (r *Recorder) prune(ctx context.Context, pruner port.Pruner) {
	cutoff := r.now().Add(-r.cfg.Retention).UnixMilli()

	pctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	n, err := pruner.PruneMessages(pctx, cutoff)
	if err != nil {
		log.Error().Err(err).Int64("before", cutoff).Msg("recorder prune failed")
	}
	if n > 0 {
		r.pruned.Add(n)
		log.Debug().Int64("rows", n).Int64("before", cutoff).Msg("message tape pruned")
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for rec := range r.queue {
		if ctx.Err() != nil {
			r.dropped.Add(1)
			continue
		}
		r.write(ctx, rec)
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	wctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var err error
	switch rec.kind {
	case recordMessage:
		err = r.repo.AppendMessage(wctx, rec.key, rec.payload, rec.ts)
	case recordLatest:
		var b []byte
		b, err = json.Marshal(rec.value)
		if err == nil {
			err = r.repo.UpsertLatest(wctx, rec.key, b, rec.ts)
		}
	}
	if err != nil {
		r.failed.Add(1)
		log.Error().Err(err).Str("key", rec.key).Msg("recorder write failed")
		return
	}
	r.written.Add(1)
}
