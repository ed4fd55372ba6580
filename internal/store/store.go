package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/wizprobe/internal/findings"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository is the run history used by the commands.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, rec findings.Record) error
	GetRun(ctx context.Context, id string) (findings.Record, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is one line of the run history.
type RunSummary struct {
	ID         string    `json:"id" yaml:"id"`
	TargetURL  string    `json:"target_url" yaml:"target_url"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Terminal   bool      `json:"terminal" yaml:"terminal"`
	Defects    int       `json:"defects" yaml:"defects"`
}

// Store provides the PostgreSQL implementation of Repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ Repository = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects a pool to url and wraps it in a Store. The returned close
// function releases the pool.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wizprobe_runs (
        id           TEXT PRIMARY KEY,
        target_url   TEXT NOT NULL,
        started_at   TIMESTAMPTZ NOT NULL,
        finished_at  TIMESTAMPTZ,
        terminal     BOOLEAN NOT NULL DEFAULT FALSE,
        defect_count INTEGER NOT NULL DEFAULT 0,
        warnings     JSONB NOT NULL DEFAULT '[]'
    )`,
	`CREATE TABLE IF NOT EXISTS wizprobe_defects (
        run_id   TEXT NOT NULL REFERENCES wizprobe_runs(id) ON DELETE CASCADE,
        seq      INTEGER NOT NULL,
        kind     TEXT NOT NULL,
        step     INTEGER NOT NULL,
        field    TEXT NOT NULL DEFAULT '',
        expected TEXT NOT NULL DEFAULT '',
        observed TEXT NOT NULL DEFAULT '',
        message  TEXT NOT NULL,
        PRIMARY KEY (run_id, seq)
    )`,
	`CREATE INDEX IF NOT EXISTS wizprobe_runs_started_at_idx ON wizprobe_runs (started_at DESC)`,
}

// EnsureSchema creates the history tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

const (
	sqlUpsertRun = `
        INSERT INTO wizprobe_runs (id, target_url, started_at, finished_at, terminal, defect_count, warnings)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            target_url = EXCLUDED.target_url,
            started_at = EXCLUDED.started_at,
            finished_at = EXCLUDED.finished_at,
            terminal = EXCLUDED.terminal,
            defect_count = EXCLUDED.defect_count,
            warnings = EXCLUDED.warnings;
    `
	sqlDeleteDefects = `DELETE FROM wizprobe_defects WHERE run_id = $1;`
	sqlSelectRun     = `
        SELECT target_url, started_at, finished_at, terminal, warnings
        FROM wizprobe_runs
        WHERE id = $1;
    `
	sqlSelectDefects = `
        SELECT kind, step, field, expected, observed, message
        FROM wizprobe_defects
        WHERE run_id = $1
        ORDER BY seq ASC;
    `
	sqlListRuns = `
        SELECT id, target_url, started_at, finished_at, terminal, defect_count
        FROM wizprobe_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

// DefectColumns are the columns written by SaveRun's COPY.
var DefectColumns = []string{"run_id", "seq", "kind", "step", "field", "expected", "observed", "message"}

// SaveRun stores a run record in one transaction. Saving the same run ID
// again replaces its defects.
func (s *Store) SaveRun(ctx context.Context, rec findings.Record) error {
	warnings := rec.Warnings
	if warnings == nil {
		warnings = []findings.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlUpsertRun,
		rec.ID, rec.TargetURL, rec.StartedAt.UTC(), nullTime(rec.FinishedAt),
		rec.Terminal, len(rec.Defects), warningsJSON,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteDefects, rec.ID); err != nil {
		return fmt.Errorf("failed to clear defects: %w", err)
	}
	if len(rec.Defects) > 0 {
		if err := s.copyDefects(ctx, tx, rec.ID, rec.Defects); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Saved run.", zap.String("run_id", rec.ID), zap.Int("defects", len(rec.Defects)))
	return nil
}

func (s *Store) copyDefects(ctx context.Context, tx pgx.Tx, runID string, defects []findings.Defect) error {
	rows := make([][]any, len(defects))
	for i, d := range defects {
		rows[i] = []any{runID, i, string(d.Kind), d.Step, d.Field, d.Expected, d.Observed, d.Message}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"wizprobe_defects"}, DefectColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy defects: %w", err)
	}
	if int(copyCount) != len(defects) {
		return fmt.Errorf("mismatch in copied defects count: expected %d, got %d", len(defects), copyCount)
	}
	return nil
}

// GetRun loads a run and its defects in their original order.
func (s *Store) GetRun(ctx context.Context, id string) (findings.Record, error) {
	rec := findings.Record{ID: id}
	var finished *time.Time
	var warningsJSON []byte

	err := s.pool.QueryRow(ctx, sqlSelectRun, id).Scan(&rec.TargetURL, &rec.StartedAt, &finished, &rec.Terminal, &warningsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to query run: %w", err)
	}
	if finished != nil {
		rec.FinishedAt = *finished
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &rec.Warnings); err != nil {
			return rec, fmt.Errorf("failed to decode warnings: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx, sqlSelectDefects, id)
	if err != nil {
		return rec, fmt.Errorf("failed to query defects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d findings.Defect
		var kind string
		if err := rows.Scan(&kind, &d.Step, &d.Field, &d.Expected, &d.Observed, &d.Message); err != nil {
			return rec, fmt.Errorf("failed to scan defect row: %w", err)
		}
		d.Kind = findings.Kind(kind)
		rec.Defects = append(rec.Defects, d)
	}
	if err := rows.Err(); err != nil {
		return rec, fmt.Errorf("error during row iteration: %w", err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var finished *time.Time
		if err := rows.Scan(&r.ID, &r.TargetURL, &r.StartedAt, &finished, &r.Terminal, &r.Defects); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if finished != nil {
			r.FinishedAt = *finished
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
