package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"mktstream/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest (
  key TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  updated_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  channel TEXT NOT NULL,
  payload TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel);
CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatest(ctx context.Context, key string, payload []byte, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest(key, payload, ts_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		payload=excluded.payload, ts_ms=excluded.ts_ms, updated_count=latest.updated_count+1
	`, key, string(payload), ts)
	return err
}

func (r *Repo) AppendMessage(ctx context.Context, channel string, payload []byte, ts int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO messages(channel, payload, ts_ms) VALUES(?, ?, ?)`, channel, string(payload), ts)
	return err
}

// PruneMessages 删除早于 before 的磁带记录，返回删除条数
func (r *Repo) PruneMessages(ctx context.Context, before int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE ts_ms < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.Pruner     = (*Repo)(nil)
)
