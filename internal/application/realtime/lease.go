package realtime

import "sync"

// Lease 一次作用域内的订阅，Release 保证只释放一次，
// 持有者应在所有退出路径（包括错误路径）上调用 Release
type Lease struct {
	once    sync.Once
	release func()
}

func newLease(release func()) *Lease {
	return &Lease{release: release}
}

// Release 释放订阅；重复调用或对 nil 调用均为空操作
func (l *Lease) Release() {
	if l == nil || l.release == nil {
		return
	}
	l.once.Do(l.release)
}

// JoinLeases 合并多个 Lease，按获取的逆序释放
func JoinLeases(leases ...*Lease) *Lease {
	return newLease(func() {
		for i := len(leases) - 1; i >= 0; i-- {
			leases[i].Release()
		}
	})
}
