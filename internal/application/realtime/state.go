package realtime

// ConnectionState 连接状态，进程内只由 ConnectionManager 修改
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// StateReader 只读的连接状态观察者接口
type StateReader interface {
	State() ConnectionState
}
