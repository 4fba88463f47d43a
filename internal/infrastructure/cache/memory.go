package cache

import (
	"sort"
	"sync"

	"mktstream/internal/application/port"
)

// Store 进程内键值缓存，实现 port.Cache。
// 更新函数在写锁内执行，不得回调 Store；
// 存入的值视为不可变，调用方通过更新函数返回新值而不是原地修改
type Store struct {
	mu   sync.RWMutex
	data map[string]any

	onChange func(key string, value any)
}

type Option func(*Store)

// WithMirror 每次写入后以新值调用 fn（在锁外、写入方协程中）
func WithMirror(fn func(key string, value any)) Option {
	return func(s *Store) { s.onChange = fn }
}

func NewStore(opts ...Option) *Store {
	s := &Store{data: make(map[string]any)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Set(key string, update port.Updater) {
	s.mu.Lock()
	v := update(s.data[key])
	s.data[key] = v
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(key, v)
	}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Keys 所有键，按字典序
func (s *Store) Keys() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ port.Cache = (*Store)(nil)
