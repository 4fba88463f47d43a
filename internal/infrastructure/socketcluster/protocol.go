package socketcluster

import (
	"encoding/json"
	"time"
)

// 协议事件名
const (
	eventHandshake   = "#handshake"
	eventSubscribe   = "#subscribe"
	eventUnsubscribe = "#unsubscribe"
	eventPublish     = "#publish"
	eventKickOut     = "#kickOut"
)

// 心跳：服务端发送 #1，客户端回复 #2；新版协议使用空串
const (
	pingV1 = "#1"
	pongV1 = "#2"
)

// outFrame 客户端发出的事件
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	CID   int64  `json:"cid,omitempty"`
}

// inFrame 服务端下发的事件或应答（rid 非零为应答）
type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	RID   int64           `json:"rid"`
	Error json.RawMessage `json:"error"`
}

type handshakeRequest struct {
	AuthToken *string `json:"authToken"`
}

type handshakeResponse struct {
	ID              string `json:"id"`
	PingTimeout     int64  `json:"pingTimeout"` // 毫秒
	IsAuthenticated bool   `json:"isAuthenticated"`
}

func (h handshakeResponse) pingTimeout(fallback time.Duration) time.Duration {
	if h.PingTimeout <= 0 {
		return fallback
	}
	return time.Duration(h.PingTimeout) * time.Millisecond
}

type subscribeRequest struct {
	Channel string `json:"channel"`
	Data    any    `json:"data,omitempty"`
}

type publishData struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// ackError 解析应答中的 error 字段，可能是对象或字符串
func ackError(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var re RemoteError
	if err := json.Unmarshal(raw, &re); err == nil && (re.Name != "" || re.Message != "") {
		return &re
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &RemoteError{Message: s}
	}
	return &RemoteError{Message: string(raw)}
}
