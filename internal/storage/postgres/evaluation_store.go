// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/service"
)

const (
	defaultTable    = "evaluations"
	uniqueViolation = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for evaluation records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// EvaluationStore persists evaluation records in a single table with JSONB
// product, progress and result columns.
type EvaluationStore struct {
	pool  pool
	table string
}

// NewEvaluationStore connects a pool using cfg.
func NewEvaluationStore(ctx context.Context, cfg Config) (*EvaluationStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &EvaluationStore{pool: p, table: table}, nil
}

// NewEvaluationStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewEvaluationStoreWithPool(p pool, table string) (*EvaluationStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &EvaluationStore{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *EvaluationStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the evaluations table if it does not exist.
func (s *EvaluationStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	product      JSONB NOT NULL,
	progress     JSONB NOT NULL DEFAULT '{}'::jsonb,
	result       JSONB,
	error_text   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Create inserts a new record.
func (s *EvaluationStore) Create(ctx context.Context, rec service.Record) error {
	product, err := json.Marshal(rec.Product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	progress, err := marshalProgress(rec.Progress)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, status, product, progress, created_at)
VALUES ($1, $2, $3, $4, $5)`, s.table)
	if _, err := s.pool.Exec(ctx, query, rec.ID, string(rec.Status), product, progress, rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return service.ErrExists
		}
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// MarkRunning moves a pending record to running.
func (s *EvaluationStore) MarkRunning(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'running' WHERE id = $1 AND status IN ('pending', 'running')`, s.table)
	return s.updateLive(ctx, "mark running", id, query, id)
}

// UpdateProgress replaces the progress map of a live record.
func (s *EvaluationStore) UpdateProgress(ctx context.Context, id string, progress map[string]float64) error {
	raw, err := marshalProgress(progress)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET progress = $2 WHERE id = $1 AND status IN ('pending', 'running')`, s.table)
	return s.updateLive(ctx, "update progress", id, query, id, raw)
}

// Complete stores the result and marks the record completed.
func (s *EvaluationStore) Complete(ctx context.Context, id string, result evaluation.ResultSnapshot, at time.Time) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'completed', result = $2, completed_at = $3,
	progress = COALESCE((SELECT jsonb_object_agg(key, 1) FROM jsonb_each(progress)), '{}'::jsonb)
WHERE id = $1 AND status IN ('pending', 'running')`, s.table)
	return s.updateLive(ctx, "complete evaluation", id, query, id, raw, at)
}

// Fail marks the record failed with reason.
func (s *EvaluationStore) Fail(ctx context.Context, id string, reason string, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'failed', error_text = $2, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'running')`, s.table)
	return s.updateLive(ctx, "fail evaluation", id, query, id, reason, at)
}

// Cancel marks a live record cancelled and returns the stored record.
func (s *EvaluationStore) Cancel(ctx context.Context, id string, at time.Time) (service.Record, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'cancelled', completed_at = $2
WHERE id = $1 AND status IN ('pending', 'running')`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return service.Record{}, fmt.Errorf("cancel evaluation: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves a single record by id.
func (s *EvaluationStore) Get(ctx context.Context, id string) (service.Record, error) {
	query := fmt.Sprintf(`
SELECT id, status, product, progress, result, error_text, created_at, completed_at
FROM %s
WHERE id = $1`, s.table)

	var (
		rec                      service.Record
		status                   string
		product, progress, reslt []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&status,
		&product,
		&progress,
		&reslt,
		&rec.ErrorText,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Record{}, evaluation.ErrNotFound
		}
		return service.Record{}, fmt.Errorf("get evaluation: %w", err)
	}
	rec.Status = evaluation.Status(status)
	if err := json.Unmarshal(product, &rec.Product); err != nil {
		return service.Record{}, fmt.Errorf("decode product: %w", err)
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &rec.Progress); err != nil {
			return service.Record{}, fmt.Errorf("decode progress: %w", err)
		}
	}
	if len(reslt) > 0 {
		var res evaluation.ResultSnapshot
		if err := json.Unmarshal(reslt, &res); err != nil {
			return service.Record{}, fmt.Errorf("decode result: %w", err)
		}
		rec.Result = &res
	}
	return rec, nil
}

// updateLive runs an UPDATE restricted to live rows and explains a miss.
func (s *EvaluationStore) updateLive(ctx context.Context, op, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.table), id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return evaluation.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return service.ErrFinished
}

func marshalProgress(progress map[string]float64) ([]byte, error) {
	if progress == nil {
		progress = map[string]float64{}
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return nil, fmt.Errorf("marshal progress: %w", err)
	}
	return raw, nil
}
