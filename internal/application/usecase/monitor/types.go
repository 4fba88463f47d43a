package monitor

// Status 连接与录制概况，由 svc 提供
type Status struct {
	State    string
	Channels int
	Written  int64
	Dropped  int64
}

// StatusFunc 返回当前概况
type StatusFunc func() Status
