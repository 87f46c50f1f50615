// Package postgres provides a monitor.Store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/monitor"
)

// Store is a monitor.Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver. Open uses the pgx
// stdlib driver registered by this package.
type Store struct {
	db *sql.DB
}

var _ monitor.Store = (*Store)(nil)

// Open connects to the database at dsn and initializes the schema.
// The store owns the connection; call Close when done.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore initializes the required schema in db and returns a Store using
// it. The caller keeps ownership of db.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS stepflow_runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at BIGINT NOT NULL,
			finished_at BIGINT
		);
		CREATE TABLE IF NOT EXISTS stepflow_values (
			run_id TEXT NOT NULL REFERENCES stepflow_runs(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value BYTEA,
			PRIMARY KEY (run_id, key)
		);
		CREATE INDEX IF NOT EXISTS stepflow_runs_started_at ON stepflow_runs (started_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) StartRun(ctx context.Context, run api.RunInfo, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stepflow_runs (id, workflow, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, '', $4, NULL)
		ON CONFLICT (id) DO UPDATE SET
			workflow = EXCLUDED.workflow,
			status = EXCLUDED.status,
			error = '',
			started_at = EXCLUDED.started_at,
			finished_at = NULL
	`, run.ID, run.Workflow, string(monitor.StatusRunning), at.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stepflow_values WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("reset values: %w", err)
	}
	return tx.Commit()
}

func (s *Store) PutValue(ctx context.Context, runID, key string, value any) error {
	data, err := codec.EncodeValue(codec.Portable(value))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stepflow_values (run_id, key, value)
		SELECT id, $2::text, $3::bytea FROM stepflow_runs WHERE id = $1
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value
	`, runID, key, data)
	if err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	return requireRow(res)
}

func (s *Store) FinishRun(ctx context.Context, runID string, status monitor.Status, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stepflow_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4
	`, string(status), errMsg, at.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetRun(ctx context.Context, runID string) (*monitor.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, status, error, started_at, finished_at
		FROM stepflow_runs WHERE id = $1
	`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, monitor.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM stepflow_values WHERE run_id = $1`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.Values = make(map[string]any)
	for rows.Next() {
		var (
			key  string
			data []byte
		)
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		v, err := codec.DecodeValue(data)
		if err != nil {
			return nil, err
		}
		r.Values[key] = v
	}
	return r, rows.Err()
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*monitor.Run, error) {
	query := `
		SELECT id, workflow, status, error, started_at, finished_at
		FROM stepflow_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*monitor.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*monitor.Run, error) {
	var (
		r        monitor.Run
		status   string
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Workflow, &status, &r.Error, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = monitor.Status(status)
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		r.FinishedAt = &t
	}
	return &r, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return monitor.ErrRunNotFound
	}
	return nil
}
