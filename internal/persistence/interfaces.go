package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run id does not exist
var ErrNotFound = errors.New("record not found")

// Run kinds
const (
	KindBacktest    = "backtest"
	KindWalkForward = "walkforward"
)

// TimeRange represents a time window for queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether To is not before From
func (tr TimeRange) Valid() bool {
	return !tr.To.Before(tr.From)
}

// Run is one archived backtest or walk-forward invocation
type Run struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Source    string          `json:"source" db:"source"`
	Outcome   string          `json:"outcome" db:"outcome"`
	Bars      int             `json:"bars" db:"bars"`
	StartTime time.Time       `json:"start_time" db:"start_time"`
	EndTime   time.Time       `json:"end_time" db:"end_time"`
	Metrics   json.RawMessage `json:"metrics" db:"metrics"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// TradeRecord is one simulated round trip belonging to a run
type TradeRecord struct {
	RunID      string    `json:"run_id" db:"run_id"`
	Seq        int       `json:"seq" db:"seq"`
	Fold       int       `json:"fold" db:"fold"` // 0 for plain backtests
	EntryTime  time.Time `json:"entry_time" db:"entry_time"`
	ExitTime   time.Time `json:"exit_time" db:"exit_time"`
	Direction  string    `json:"direction" db:"direction"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	StopLoss   float64   `json:"stop_loss" db:"stop_loss"`
	Target     float64   `json:"target" db:"target"`
	GrossPnL   float64   `json:"gross_pnl" db:"gross_pnl"`
	Cost       float64   `json:"cost" db:"cost"`
	NetPnL     float64   `json:"net_pnl" db:"net_pnl"`
	Reason     string    `json:"reason" db:"reason"`
}

// FoldRecord is the outcome of one walk-forward fold
type FoldRecord struct {
	RunID        string    `json:"run_id" db:"run_id"`
	Fold         int       `json:"fold" db:"fold"`
	TrainStart   time.Time `json:"train_start" db:"train_start"`
	TrainEnd     time.Time `json:"train_end" db:"train_end"`
	TestStart    time.Time `json:"test_start" db:"test_start"`
	TestEnd      time.Time `json:"test_end" db:"test_end"`
	Status       string    `json:"status" db:"status"`
	Reason       *string   `json:"reason,omitempty" db:"reason"`
	TrainSamples int       `json:"train_samples" db:"train_samples"`
	TestSamples  int       `json:"test_samples" db:"test_samples"`
	TestF1Macro  float64   `json:"test_f1_macro" db:"test_f1_macro"`
	TestAccuracy float64   `json:"test_accuracy" db:"test_accuracy"`
	PnL          float64   `json:"backtest_pnl" db:"backtest_pnl"`
	WinRate      float64   `json:"backtest_win_rate" db:"backtest_win_rate"`
	Sharpe       float64   `json:"backtest_sharpe" db:"backtest_sharpe"`
	Trades       int       `json:"backtest_trades" db:"backtest_trades"`
}

// RunsRepo stores run headers
type RunsRepo interface {
	// Insert adds a run; the id must be unique
	Insert(ctx context.Context, run Run) error

	// Get returns a run by id or ErrNotFound
	Get(ctx context.Context, id string) (*Run, error)

	// ListRecent returns the newest runs of a kind, or of every kind when kind is empty
	ListRecent(ctx context.Context, kind string, limit int) ([]Run, error)

	// ListRange returns runs created within tr
	ListRange(ctx context.Context, tr TimeRange) ([]Run, error)
}

// TradesRepo stores simulated trades
type TradesRepo interface {
	// InsertBatch adds all trades atomically
	InsertBatch(ctx context.Context, trades []TradeRecord) error

	// ListByRun returns a run's trades ordered by fold and sequence
	ListByRun(ctx context.Context, runID string) ([]TradeRecord, error)

	// CountByReason returns close-reason counts for a run
	CountByReason(ctx context.Context, runID string) (map[string]int64, error)
}

// FoldsRepo stores walk-forward fold results
type FoldsRepo interface {
	// InsertBatch adds all folds atomically
	InsertBatch(ctx context.Context, folds []FoldRecord) error

	// ListByRun returns a run's folds ordered by fold number
	ListByRun(ctx context.Context, runID string) ([]FoldRecord, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs   RunsRepo
	Trades TradesRepo
	Folds  FoldsRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the database
	Ping(ctx context.Context) error

	// Stats returns connection pool statistics
	Stats(ctx context.Context) map[string]interface{}
}
