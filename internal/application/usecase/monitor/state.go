package monitor

import (
	"strconv"
	"strings"
	"sync"

	"mktstream/internal/domain/model"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

type pxState struct {
	str  string
	num  float64
	vol  float64
	dir  Dir
	seen bool
}

type State struct {
	mu sync.Mutex

	order []string
	syms  map[string]*pxState
}

func NewState(symbols []string) *State {
	order := make([]string, 0, len(symbols))
	syms := make(map[string]*pxState, len(symbols))
	for _, sym := range symbols {
		u := strings.ToUpper(strings.TrimSpace(sym))
		if u == "" {
			continue
		}
		if _, ok := syms[u]; ok {
			continue
		}
		order = append(order, u)
		syms[u] = &pxState{}
	}
	return &State{order: order, syms: syms}
}

func (s *State) Symbols() []string {
	return s.order
}

// Apply 用缓存中的个股快照更新显示状态，返回是否需要重画。
// 价格取字段 c，成交量取字段 vo；缺少价格的快照忽略
func (s *State) Apply(symbol string, data model.SymbolData) bool {
	price, ok := number(data["c"])
	if !ok {
		return false
	}
	vol, _ := number(data["vo"])

	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.syms[strings.ToUpper(symbol)]
	if ps == nil {
		return false
	}

	if ps.seen && ps.num == price && ps.vol == vol {
		return false
	}

	switch {
	case !ps.seen:
		ps.dir = DirSame
	case price > ps.num:
		ps.dir = DirUp
	case price < ps.num:
		ps.dir = DirDown
	}
	ps.num = price
	ps.vol = vol
	ps.str = strconv.FormatFloat(price, 'f', -1, 64)
	ps.seen = true
	return true
}

func (s *State) Snapshot() map[string]pxState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]pxState, len(s.syms))
	for k, v := range s.syms {
		out[k] = *v
	}
	return out
}

// number JSON 数字解码为 float64；行情源偶尔以字符串下发
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
