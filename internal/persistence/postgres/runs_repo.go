// Package postgres implements the persistence repositories on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Shoebbirader4/Upstockbot/internal/persistence"
)

// ErrDuplicate is returned when a unique key already exists
var ErrDuplicate = errors.New("duplicate record")

// mapError turns unique violations into ErrDuplicate
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Detail)
	}
	return err
}

// runsRepo implements RunsRepo for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a new PostgreSQL runs repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunsRepo {
	return &runsRepo{
		db:      db,
		timeout: timeout,
	}
}

const runColumns = `id, kind, source, outcome, bars, start_time, end_time, metrics, created_at`

// Insert adds a run header
func (r *runsRepo) Insert(ctx context.Context, run persistence.Run) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Kind != persistence.KindBacktest && run.Kind != persistence.KindWalkForward {
		return fmt.Errorf("invalid run kind: %q", run.Kind)
	}
	metrics := []byte(run.Metrics)
	if len(metrics) == 0 {
		metrics = []byte("{}")
	}

	query := `
		INSERT INTO backtest_runs (id, kind, source, outcome, bars, start_time, end_time, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Kind, run.Source, run.Outcome, run.Bars, run.StartTime, run.EndTime, metrics)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", mapError(err))
	}
	return nil
}

// Get returns a run by id
func (r *runsRepo) Get(ctx context.Context, id string) (*persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var run persistence.Run
	err := r.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM backtest_runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRecent returns the newest runs first
func (r *runsRepo) ListRecent(ctx context.Context, kind string, limit int) ([]persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	var (
		runs []persistence.Run
		err  error
	)
	if kind == "" {
		err = r.db.SelectContext(ctx, &runs,
			`SELECT `+runColumns+` FROM backtest_runs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &runs,
			`SELECT `+runColumns+` FROM backtest_runs WHERE kind = $1 ORDER BY created_at DESC LIMIT $2`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListRange returns runs created within the time range, oldest first
func (r *runsRepo) ListRange(ctx context.Context, tr persistence.TimeRange) ([]persistence.Run, error) {
	if !tr.Valid() {
		return nil, fmt.Errorf("invalid time range: %s after %s", tr.From, tr.To)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var runs []persistence.Run
	err := r.db.SelectContext(ctx, &runs,
		`SELECT `+runColumns+` FROM backtest_runs WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at`,
		tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs in range: %w", err)
	}
	return runs, nil
}
