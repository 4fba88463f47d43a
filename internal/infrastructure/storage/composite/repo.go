package composite

import (
	"context"
	"errors"

	"mktstream/internal/application/port"
)

type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

// Len 实际写入的存储数量
func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatest(ctx context.Context, key string, payload []byte, ts int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatest(ctx, key, payload, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) AppendMessage(ctx context.Context, channel string, payload []byte, ts int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.AppendMessage(ctx, channel, payload, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PruneMessages 清理所有支持清理的存储，返回删除总数与第一个错误
func (r *Repo) PruneMessages(ctx context.Context, before int64) (int64, error) {
	var (
		total    int64
		firstErr error
	)
	for _, repo := range r.repos {
		p, ok := repo.(port.Pruner)
		if !ok {
			continue
		}
		n, err := p.PruneMessages(ctx, before)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		total += n
	}
	return total, firstErr
}

// Close 关闭全部存储，返回所有错误
func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.Pruner     = (*Repo)(nil)
)
