package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepoUpsertLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertLatest(ctx, "market.stock.SSI", []byte(`{"c":1}`), 100); err != nil {
		t.Fatalf("UpsertLatest failed: %v", err)
	}
	if err := repo.UpsertLatest(ctx, "market.stock.SSI", []byte(`{"c":2}`), 200); err != nil {
		t.Fatalf("UpsertLatest failed: %v", err)
	}

	var (
		payload string
		ts      int64
		count   int
	)
	err := repo.db.QueryRowContext(ctx,
		`SELECT payload, ts_ms, updated_count FROM latest WHERE key=?`, "market.stock.SSI").Scan(&payload, &ts, &count)
	if err != nil {
		t.Fatalf("query latest failed: %v", err)
	}
	if payload != `{"c":2}` || ts != 200 {
		t.Errorf("expected latest payload {\"c\":2}@200, got %s@%d", payload, ts)
	}
	if count != 2 {
		t.Errorf("expected updated_count 2, got %d", count)
	}
}

func countMessages(t *testing.T, repo *Repo, channel string) int {
	t.Helper()
	var n int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE channel=?`, channel).Scan(&n); err != nil {
		t.Fatalf("count messages failed: %v", err)
	}
	return n
}

func TestSQLiteRepoAppendMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.AppendMessage(ctx, "market.quote.SSI", []byte(`{"n":1}`), 100)
	repo.AppendMessage(ctx, "market.quote.SSI", []byte(`{"n":2}`), 200)
	repo.AppendMessage(ctx, "market.quote.VND", []byte(`{"n":3}`), 300)

	if n := countMessages(t, repo, "market.quote.SSI"); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
	if n := countMessages(t, repo, "market.quote.VND"); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}
}

func TestSQLiteRepoPruneMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.AppendMessage(ctx, "market.status", []byte(`{}`), 100)
	repo.AppendMessage(ctx, "market.status", []byte(`{}`), 200)

	n, err := repo.PruneMessages(ctx, 150)
	if err != nil {
		t.Fatalf("PruneMessages failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned row, got %d", n)
	}
	if left := countMessages(t, repo, "market.status"); left != 1 {
		t.Errorf("expected 1 remaining row, got %d", left)
	}
}
