package monitor

import (
	"context"
	"errors"
	"time"

	"mktstream/internal/application/port"
	"mktstream/internal/domain/model"
)

type ServiceDeps struct {
	Symbols      []string
	Cache        port.Cache
	Status       StatusFunc
	Sink         port.Sink
	RefreshEvery time.Duration // 实时行刷新间隔
	ReportEvery  time.Duration // 快照行间隔，0 表示不输出快照
}

// Service 终端行情看板：定期从缓存读取个股快照，变化时重画实时行
type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	if deps.RefreshEvery <= 0 {
		deps.RefreshEvery = 500 * time.Millisecond
	}
	if deps.Status == nil {
		deps.Status = func() Status { return Status{} }
	}
	return &Service{
		deps: deps,
		st:   NewState(deps.Symbols),
		fmt:  NewFormatter(),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Cache == nil || s.deps.Sink == nil {
		return errors.New("monitor: cache and sink are required")
	}

	refresh := time.NewTicker(s.deps.RefreshEvery)
	defer refresh.Stop()

	var report <-chan time.Time
	if s.deps.ReportEvery > 0 {
		t := time.NewTicker(s.deps.ReportEvery)
		defer t.Stop()
		report = t.C
	}

	// initial live line
	last := s.deps.Status()
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st, last, RenderLive))

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case now := <-report:
			_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(s.st, s.deps.Status(), RenderSnapshot))

		case <-refresh.C:
			status := s.deps.Status()
			changed := s.poll() || status.State != last.State || status.Channels != last.Channels
			last = status
			if changed {
				_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st, status, RenderLive))
			}
		}
	}
}

// poll 读取所有关注个股的缓存快照
func (s *Service) poll() bool {
	changed := false
	for _, sym := range s.st.Symbols() {
		v, ok := s.deps.Cache.Get(model.StockKey(sym))
		if !ok {
			continue
		}
		data, ok := v.(model.SymbolData)
		if !ok {
			continue
		}
		if s.st.Apply(sym, data) {
			changed = true
		}
	}
	return changed
}
