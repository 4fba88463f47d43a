package port

import "encoding/json"

// EventKind 连接生命周期事件类型
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventClosed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event 传输层发出的生命周期事件
//   - connected: ID 为服务端分配的 socket id
//   - closed:    Code / Reason 为关闭码与原因
//   - error:     Cause 为失败原因
type Event struct {
	Kind   EventKind
	ID     string
	Code   int
	Reason string
	Cause  error
}

// Message 某个频道收到的一条推送
type Message struct {
	Channel string
	Data    json.RawMessage
}

// Transport 单条全双工行情连接
//
// Subscribe 对同一频道名返回同一条消息流（跨重连保持不变），
// 并在当前连接上发送一次订阅指令；CloseChannel 关闭并释放该消息流。
type Transport interface {
	// Connect 异步建立连接，结果通过 Events 通知；已连接或正在连接时为空操作
	Connect()

	// Subscribe 发送订阅指令并返回该频道的消息流，auth 为可选的频道鉴权数据
	Subscribe(name string, auth any) (<-chan Message, error)

	// Unsubscribe 发送退订指令
	Unsubscribe(name string) error

	// CloseChannel 关闭该频道的消息流
	CloseChannel(name string)

	// Events 生命周期事件流
	Events() <-chan Event

	// Close 主动关闭连接并停止重连
	Close() error
}
