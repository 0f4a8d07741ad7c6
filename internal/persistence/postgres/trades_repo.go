package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Shoebbirader4/Upstockbot/internal/persistence"
)

// tradesRepo implements TradesRepo for PostgreSQL
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a new PostgreSQL trades repository
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{
		db:      db,
		timeout: timeout,
	}
}

// InsertBatch adds all trades in a single transaction
func (r *tradesRepo) InsertBatch(ctx context.Context, trades []persistence.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(trades)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, seq, fold, entry_time, exit_time, direction,
			entry_price, exit_price, stop_loss, target, gross_pnl, cost, net_pnl, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if t.RunID == "" {
			return fmt.Errorf("trade %d has no run id", t.Seq)
		}
		_, err = stmt.ExecContext(ctx,
			t.RunID, t.Seq, t.Fold, t.EntryTime, t.ExitTime, t.Direction,
			t.EntryPrice, t.ExitPrice, t.StopLoss, t.Target, t.GrossPnL, t.Cost, t.NetPnL, t.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert trade in batch: %w", mapError(err))
		}
	}

	return tx.Commit()
}

// ListByRun returns a run's trades in fold and sequence order
func (r *tradesRepo) ListByRun(ctx context.Context, runID string) ([]persistence.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, seq, fold, entry_time, exit_time, direction, entry_price, exit_price,
			stop_loss, target, gross_pnl, cost, net_pnl, reason
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY fold, seq`

	var trades []persistence.TradeRecord
	if err := r.db.SelectContext(ctx, &trades, query, runID); err != nil {
		return nil, fmt.Errorf("failed to query trades by run: %w", err)
	}
	return trades, nil
}

// CountByReason returns trade counts grouped by close reason
func (r *tradesRepo) CountByReason(ctx context.Context, runID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT reason, COUNT(*)
		FROM backtest_trades
		WHERE run_id = $1
		GROUP BY reason
		ORDER BY reason`

	rows, err := r.db.QueryxContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count trades by reason: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("failed to scan reason count: %w", err)
		}
		counts[reason] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}
