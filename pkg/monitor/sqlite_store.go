package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/api"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    workflow    TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER
)`

const createStateValuesTable = `
CREATE TABLE IF NOT EXISTS state_values (
    run_id TEXT NOT NULL,
    key    TEXT NOT NULL,
    value  BLOB,
    PRIMARY KEY (run_id, key)
)`

// SQLiteStore is a Store backed by SQLite through modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens the SQLite database at path and creates the schema.
// The store owns the connection; call Close when done.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore initializes the schema in db and returns a store using it.
// The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	for _, stmt := range []string{createRunsTable, createStateValuesTable} {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, run api.RunInfo, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, workflow, status, error, started_at, finished_at)
		VALUES (?, ?, ?, '', ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			workflow = excluded.workflow,
			status = excluded.status,
			error = '',
			started_at = excluded.started_at,
			finished_at = NULL`,
		run.ID, run.Workflow, string(StatusRunning), at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM state_values WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("reset values: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutValue(ctx context.Context, runID, key string, value any) error {
	data, err := codec.EncodeValue(codec.Portable(value))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO state_values (run_id, key, value)
		SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM runs WHERE id = ?)
		ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`,
		runID, key, data, runID,
	)
	if err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status Status, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, at.UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, status, error, started_at, finished_at
		FROM runs WHERE id = ?`, runID)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM state_values WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
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

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
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

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Workflow, &status, &r.Error, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = Status(status)
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
		return ErrRunNotFound
	}
	return nil
}
