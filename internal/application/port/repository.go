package port

import "context"

type Repository interface {
	// UpsertLatest 保存某个缓存键的最新值（JSON）
	UpsertLatest(ctx context.Context, key string, payload []byte, ts int64) error

	// AppendMessage 追加一条频道原始消息（行情磁带）
	AppendMessage(ctx context.Context, channel string, payload []byte, ts int64) error

	// Connection management
	Close() error
}

// Pruner 支持按时间清理行情磁带的存储
type Pruner interface {
	// PruneMessages 删除 ts 早于 before 的消息，返回删除条数
	PruneMessages(ctx context.Context, before int64) (int64, error)
}
