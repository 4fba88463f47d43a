package socketcluster

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPath             = "/socketcluster/"
	DefaultAckTimeout       = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingTimeout      = 20 * time.Second
)

// Options 行情连接参数
type Options struct {
	Host   string
	Port   int // 0 表示使用协议默认端口
	Path   string
	Secure bool
	APIKey string // 作为查询参数 apikey 附加到连接地址

	AckTimeout       time.Duration // 等待服务端应答的超时，超时后断开连接
	HandshakeTimeout time.Duration // TCP + WebSocket 升级超时
	PingTimeout      time.Duration // 服务端未在握手中给出时使用
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	return o
}

// URL 组装 ws(s)://host[:port]/path?apikey=...
func (o Options) URL() string {
	u := url.URL{Scheme: "ws", Host: o.Host, Path: o.Path}
	if o.Secure {
		u.Scheme = "wss"
	}
	if o.Port > 0 {
		u.Host = net.JoinHostPort(strings.Trim(o.Host, "[]"), strconv.Itoa(o.Port))
	}
	if u.Path == "" {
		u.Path = DefaultPath
	}
	if o.APIKey != "" {
		q := url.Values{}
		q.Set("apikey", o.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
