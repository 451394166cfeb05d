package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// Repo — единый репозиторий поверх pgxpool; методы доменов
// разложены по файлам (task_repo.go, agent_repo.go, ...).
type Repo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepo поднимает пул, с ретраями дожидается базу и накатывает схему.
func NewRepo(ctx context.Context, cfg infra.DatabaseConfig, logger *zap.Logger) (*Repo, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	r := &Repo{pool: pool, logger: logger.Named("postgres")}

	// На старте база может еще подниматься — ждем с бэкоффом
	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
	).Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: database unreachable: %w", err)
	}

	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Ping проверяет доступность базы при старте
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close освобождает пул
func (r *Repo) Close() {
	r.pool.Close()
}

// migrate накатывает схему идемпотентно; отдельного инструмента
// миграций проект пока не тянет.
func (r *Repo) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	payload      JSONB,
	priority     TEXT NOT NULL DEFAULT 'normal',
	status       TEXT NOT NULL DEFAULT 'pending',
	assigned_to  TEXT,
	result       JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	claimed_at   TIMESTAMPTZ,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tasks_pending ON tasks (status, priority, created_at);

CREATE TABLE IF NOT EXISTS agents (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	type         TEXT NOT NULL DEFAULT '',
	capabilities TEXT[] NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL DEFAULT 'idle',
	last_seen    TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS heartbeats (
	sender    TEXT PRIMARY KEY,
	last_seen TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'operator',
	scopes        JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS coordination_events (
	id          TEXT PRIMARY KEY,
	trace_id    TEXT NOT NULL DEFAULT '',
	agent_id    TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	task_id     TEXT NOT NULL DEFAULT '',
	detail      JSONB,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_events_created ON coordination_events (created_at);
`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: schema migration failed: %w", err)
	}
	r.logger.Info("schema ensured")
	return nil
}
