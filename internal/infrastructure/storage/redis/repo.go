package redis

import (
	"context"
	"strings"
	"time"

	"mktstream/internal/application/port"

	"github.com/redis/go-redis/v9"
)

type Repo struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	keyLatest  string // prefix + ":latest"
	stream     string
	streamLen  int64
	pubChannel string
}

// Options 磁带流与发布频道，留空时由 prefix 派生
type Options struct {
	Prefix     string
	TTL        time.Duration
	Stream     string
	StreamLen  int64 // XADD MAXLEN ~，0 表示不截断
	PubChannel string
}

func New(rdb *redis.Client, opts Options) *Repo {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "mktstream"
	}
	stream := strings.TrimSpace(opts.Stream)
	if stream == "" {
		stream = prefix + ":messages"
	}
	pub := strings.TrimSpace(opts.PubChannel)
	if pub == "" {
		pub = prefix + ":messages:pub"
	}
	return &Repo{
		rdb:        rdb,
		prefix:     prefix,
		ttl:        opts.TTL,
		keyLatest:  prefix + ":latest",
		stream:     stream,
		streamLen:  opts.StreamLen,
		pubChannel: pub,
	}
}

// UpsertLatest Hash: field = 缓存键 -> json
func (r *Repo) UpsertLatest(ctx context.Context, key string, payload []byte, ts int64) error {
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, key, string(payload))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) AppendMessage(ctx context.Context, channel string, payload []byte, ts int64) error {
	// 1) Stream: XADD <stream> * ts_ms channel payload
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"ts_ms":   ts,
			"channel": channel,
			"payload": string(payload),
		},
	}
	if r.streamLen > 0 {
		args.MaxLen = r.streamLen
		args.Approx = true
	}
	if err := r.rdb.XAdd(ctx, args).Err(); err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <pub>:<channel> payload，订阅方可按频道模式订阅
	return r.rdb.Publish(ctx, r.pubChannel+":"+channel, payload).Err()
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
