// Package history persists smoke run outcomes to PostgreSQL so flaky
// commands can be spotted across runs. It is optional; the runner only
// wires it when a history URL is configured.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Step statuses recorded per scenario.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Run is one completed smoke run.
type Run struct {
	ID        string
	Revision  string
	StartedAt time.Time
	Duration  time.Duration
	Passed    bool
	Failure   string
}

// StepResult is the outcome of a single command within a run.
type StepResult struct {
	Seq      int
	Command  string
	Status   string
	Duration time.Duration
	Message  string
	// Payload holds pre-encoded JSON extras (timings, evidence). Empty or
	// "null" is stored as an empty object.
	Payload json.RawMessage
}

const (
	ddlRuns = `
        CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            revision TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT NOT NULL,
            passed BOOLEAN NOT NULL,
            failure TEXT NOT NULL DEFAULT ''
        );
    `
	ddlRunSteps = `
        CREATE TABLE IF NOT EXISTS run_steps (
            run_id TEXT NOT NULL REFERENCES runs(id),
            seq INT NOT NULL,
            command TEXT NOT NULL,
            status TEXT NOT NULL,
            duration_ms BIGINT NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            payload JSONB NOT NULL DEFAULT '{}',
            PRIMARY KEY (run_id, seq)
        );
    `
)

// Store writes and reads run history.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store, verifies the connection, and ensures the schema
// exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlRuns); err != nil {
		return nil, fmt.Errorf("failed to ensure runs table: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlRunSteps); err != nil {
		return nil, fmt.Errorf("failed to ensure run_steps table: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("history"),
	}, nil
}

// RecordRun inserts the run and its step results in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, steps []StepResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports pgx.ErrTxClosed, which
		// is the normal case and not worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	const sqlRun = `
        INSERT INTO runs (id, revision, started_at, duration_ms, passed, failure)
        VALUES ($1, $2, $3, $4, $5, $6);
    `
	startedAtUTC := run.StartedAt.UTC()
	if _, err := tx.Exec(ctx, sqlRun,
		run.ID, run.Revision, startedAtUTC,
		run.Duration.Milliseconds(), run.Passed, run.Failure,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(steps) > 0 {
		if err := s.persistSteps(ctx, tx, run.ID, steps); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistSteps(ctx context.Context, tx pgx.Tx, runID string, steps []StepResult) error {
	rows := make([][]interface{}, len(steps))
	for i, st := range steps {
		payload := st.Payload
		if len(payload) == 0 || string(payload) == "null" {
			payload = json.RawMessage("{}")
		}
		rows[i] = []interface{}{
			runID, st.Seq, st.Command, st.Status,
			st.Duration.Milliseconds(), st.Message, payload,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"run_steps"},
		[]string{"run_id", "seq", "command", "status", "duration_ms", "message", "payload"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy step results: %w", err)
	}
	if int(copyCount) != len(steps) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(steps), copyCount)
	}

	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	const query = `
        SELECT id, revision, started_at, duration_ms, passed, failure
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64

		if err := rows.Scan(&r.ID, &r.Revision, &r.StartedAt, &durationMS, &r.Passed, &r.Failure); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return runs, nil
}

// FailureStreak returns how many of the most recent runs failed in a row.
// A zero streak means the latest run passed or no runs exist.
func (s *Store) FailureStreak(ctx context.Context, window int) (int, error) {
	const query = `
        SELECT passed
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, window)
	if err != nil {
		return 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var passed bool
		if err := rows.Scan(&passed); err != nil {
			return 0, fmt.Errorf("failed to scan run row: %w", err)
		}
		if passed {
			return streak, nil
		}
		streak++
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error during row iteration: %w", err)
	}

	return streak, nil
}
