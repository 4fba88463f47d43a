package realtime

import "mktstream/internal/application/port"

// Callback 频道消息回调。以指针身份区分：
// 同一个 *Callback 重复注册是幂等的，内容相同的两个 *Callback 视为不同的回调
type Callback struct {
	fn func(port.Message)
}

// NewCallback 包装一个消息处理函数
func NewCallback(fn func(port.Message)) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) call(msg port.Message) {
	if c == nil || c.fn == nil {
		return
	}
	c.fn(msg)
}
