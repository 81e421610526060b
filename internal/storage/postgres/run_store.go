// Package postgres provides the Postgres-backed run log.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/post-scraper/internal/store"
)

// Schema creates the scrape_runs table when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id            UUID PRIMARY KEY,
	subject       TEXT        NOT NULL,
	actor_id      TEXT,
	remote_run_id TEXT,
	dataset_id    TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT        NOT NULL,
	outcome       TEXT,
	polls         INTEGER     NOT NULL DEFAULT 0,
	records       INTEGER     NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS scrape_runs_started_at_idx ON scrape_runs (started_at DESC);
`

const selectColumns = `id, subject, COALESCE(actor_id, ''), COALESCE(remote_run_id, ''), COALESCE(dataset_id, ''),
	started_at, finished_at, status, outcome, polls, records, error_message`

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// RunStore implements store.RunRepository on Postgres.
type RunStore struct {
	pool pool
}

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p}, nil
}

// NewRunStoreWithPool wraps an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Migrate applies Schema.
func (s *RunStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// StartRun inserts a pending run; an existing row is left untouched.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, subject string, startedAt time.Time) error {
	query := `
		INSERT INTO scrape_runs (id, subject, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, id, subject, startedAt, string(store.RunPending)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkSubmitted records the remote identifiers of a run.
func (s *RunStore) MarkSubmitted(ctx context.Context, id uuid.UUID, actorID, remoteRunID, datasetID string) error {
	query := `
		UPDATE scrape_runs
		SET actor_id = $1, remote_run_id = $2, dataset_id = $3,
			status = CASE WHEN finished_at IS NULL THEN $4 ELSE status END
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, actorID, remoteRunID, datasetID, string(store.RunSubmitted), id)
	if err != nil {
		return fmt.Errorf("mark run submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordPoll raises the poll counter to at least attempt.
func (s *RunStore) RecordPoll(ctx context.Context, id uuid.UUID, attempt int) error {
	query := `UPDATE scrape_runs SET polls = GREATEST(polls, $1) WHERE id = $2;`
	if _, err := s.pool.Exec(ctx, query, attempt, id); err != nil {
		return fmt.Errorf("record run poll: %w", err)
	}
	return nil
}

// CompleteRun marks a run terminal.
func (s *RunStore) CompleteRun(ctx context.Context, id uuid.UUID, c store.Completion) error {
	query := `
		UPDATE scrape_runs
		SET finished_at = $1, status = $2, outcome = $3, polls = GREATEST(polls, $4),
			records = $5, error_message = $6
		WHERE id = $7;
	`
	tag, err := s.pool.Exec(ctx, query,
		c.FinishedAt, string(c.Status), c.Outcome, c.Polls, c.Records, c.ErrorMessage, id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	query := `SELECT ` + selectColumns + ` FROM scrape_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + selectColumns + `
		FROM scrape_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Subject,
		&run.ActorID,
		&run.RemoteRunID,
		&run.DatasetID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Outcome,
		&run.Polls,
		&run.Records,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err //nolint:wrapcheck // callers wrap with context
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
