package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Shoebbirader4/Upstockbot/internal/persistence"
)

// foldsRepo implements FoldsRepo for PostgreSQL
type foldsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFoldsRepo creates a new PostgreSQL walk-forward folds repository
func NewFoldsRepo(db *sqlx.DB, timeout time.Duration) persistence.FoldsRepo {
	return &foldsRepo{
		db:      db,
		timeout: timeout,
	}
}

// InsertBatch adds all folds in a single transaction
func (r *foldsRepo) InsertBatch(ctx context.Context, folds []persistence.FoldRecord) error {
	if len(folds) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO walkforward_folds (run_id, fold, train_start, train_end, test_start, test_end,
			status, reason, train_samples, test_samples, test_f1_macro, test_accuracy,
			backtest_pnl, backtest_win_rate, backtest_sharpe, backtest_trades)
		VALUES (:run_id, :fold, :train_start, :train_end, :test_start, :test_end,
			:status, :reason, :train_samples, :test_samples, :test_f1_macro, :test_accuracy,
			:backtest_pnl, :backtest_win_rate, :backtest_sharpe, :backtest_trades)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range folds {
		if _, err := stmt.ExecContext(ctx, f); err != nil {
			return fmt.Errorf("failed to insert fold %d: %w", f.Fold, mapError(err))
		}
	}

	return tx.Commit()
}

// ListByRun returns a run's folds in fold order
func (r *foldsRepo) ListByRun(ctx context.Context, runID string) ([]persistence.FoldRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, fold, train_start, train_end, test_start, test_end, status, reason,
			train_samples, test_samples, test_f1_macro, test_accuracy,
			backtest_pnl, backtest_win_rate, backtest_sharpe, backtest_trades
		FROM walkforward_folds
		WHERE run_id = $1
		ORDER BY fold`

	var folds []persistence.FoldRecord
	if err := r.db.SelectContext(ctx, &folds, query, runID); err != nil {
		return nil, fmt.Errorf("failed to query folds by run: %w", err)
	}
	return folds, nil
}
