package composite

import (
	"context"
	"errors"
	"testing"

	"mktstream/internal/infrastructure/storage"
)

type failingRepo struct {
	storage.Noop
	err error
}

func (f failingRepo) UpsertLatest(context.Context, string, []byte, int64) error { return f.err }
func (f failingRepo) Close() error                                             { return f.err }

func TestCompositeFansOut(t *testing.T) {
	a, b := storage.NewMemory(0), storage.NewMemory(0)
	repo := New(a, nil, b)
	if repo.Len() != 2 {
		t.Fatalf("expected nil repos filtered, got %d", repo.Len())
	}

	ctx := context.Background()
	if err := repo.UpsertLatest(ctx, "k", []byte("v"), 1); err != nil {
		t.Fatalf("UpsertLatest failed: %v", err)
	}
	if err := repo.AppendMessage(ctx, "c", []byte("m"), 1); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	for _, m := range []*storage.Memory{a, b} {
		if _, ok := m.Latest("k"); !ok {
			t.Error("latest not written to every repo")
		}
		if len(m.Messages("c")) != 1 {
			t.Error("message not written to every repo")
		}
	}
}

func TestCompositeFirstErrorWins(t *testing.T) {
	first := errors.New("first")
	mem := storage.NewMemory(0)
	repo := New(failingRepo{err: first}, failingRepo{err: errors.New("second")}, mem)

	err := repo.UpsertLatest(context.Background(), "k", []byte("v"), 1)
	if !errors.Is(err, first) {
		t.Fatalf("expected first error, got %v", err)
	}
	if _, ok := mem.Latest("k"); !ok {
		t.Error("later repos must still be written")
	}

	if err := repo.Close(); err == nil {
		t.Error("expected joined close error")
	}
}

type pruningRepo struct {
	storage.Noop
	removed int64
	before  *int64
}

func (p pruningRepo) PruneMessages(_ context.Context, before int64) (int64, error) {
	*p.before = before
	return p.removed, nil
}

func TestCompositePrunesOnlyPruners(t *testing.T) {
	var a, b int64
	repo := New(pruningRepo{removed: 3, before: &a}, storage.NewMemory(0), pruningRepo{removed: 4, before: &b})

	n, err := repo.PruneMessages(context.Background(), 500)
	if err != nil {
		t.Fatalf("PruneMessages failed: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 pruned rows, got %d", n)
	}
	if a != 500 || b != 500 {
		t.Errorf("expected cutoff 500 on every pruner, got %d %d", a, b)
	}
}
