package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mktstream/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
CREATE TABLE IF NOT EXISTS market_latest (
  key TEXT PRIMARY KEY,
  payload JSONB NOT NULL,
  ts_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS market_messages (
  id BIGSERIAL PRIMARY KEY,
  channel TEXT NOT NULL,
  payload JSONB NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_market_messages_channel_ts ON market_messages(channel, ts_ms);
CREATE INDEX IF NOT EXISTS idx_market_messages_ts ON market_messages(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatest(ctx context.Context, key string, payload []byte, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_latest(key, payload, ts_ms) VALUES($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, ts_ms=excluded.ts_ms
	`, key, string(payload), ts)
	return err
}

func (r *Repo) AppendMessage(ctx context.Context, channel string, payload []byte, ts int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO market_messages(channel, payload, ts_ms) VALUES($1, $2, $3)`, channel, string(payload), ts)
	return err
}

// PruneMessages 删除早于 before 的磁带记录
func (r *Repo) PruneMessages(ctx context.Context, before int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM market_messages WHERE ts_ms < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.Pruner     = (*Repo)(nil)
)
