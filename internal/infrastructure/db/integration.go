package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/persistence"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

// Integration archives backtest and walk-forward runs. With the database
// disabled every save is a no-op that returns an empty run id.
type Integration struct {
	manager *Manager
}

// NewIntegration creates a new database integration with the given configuration
func NewIntegration(config Config) (*Integration, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	manager, err := NewManager(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	log.Info().Bool("db_enabled", config.Enabled).Msg("Database integration initialized")
	return &Integration{manager: manager}, nil
}

// NewIntegrationWithManager wraps an existing manager
func NewIntegrationWithManager(m *Manager) *Integration {
	return &Integration{manager: m}
}

// Manager returns the database manager for direct repository access
func (i *Integration) Manager() *Manager {
	return i.manager
}

// IsEnabled returns whether runs are persisted
func (i *Integration) IsEnabled() bool {
	return i.manager != nil && i.manager.IsEnabled()
}

// Health returns repository health
func (i *Integration) Health(ctx context.Context) persistence.HealthCheck {
	return i.manager.Health().Health(ctx)
}

// SaveBacktest stores a backtest run header and its trades
func (i *Integration) SaveBacktest(ctx context.Context, source string, res *engine.Result) (string, error) {
	if !i.IsEnabled() {
		return "", nil
	}

	runID := persistence.NewRunID()
	run, trades, err := persistence.BacktestRecords(runID, source, res)
	if err != nil {
		return "", err
	}

	repos := i.manager.Repository()
	if err := repos.Runs.Insert(ctx, run); err != nil {
		return "", err
	}
	if err := repos.Trades.InsertBatch(ctx, trades); err != nil {
		return "", err
	}

	log.Info().Str("run_id", runID).Int("trades", len(trades)).Msg("Backtest run archived")
	return runID, nil
}

// SaveWalkForward stores a walk-forward run header, its folds and the trades
// of every completed fold
func (i *Integration) SaveWalkForward(ctx context.Context, source string, rep *walkforward.Report) (string, error) {
	if !i.IsEnabled() {
		return "", nil
	}

	runID := persistence.NewRunID()
	run, folds, trades, err := persistence.WalkForwardRecords(runID, source, rep)
	if err != nil {
		return "", err
	}

	repos := i.manager.Repository()
	if err := repos.Runs.Insert(ctx, run); err != nil {
		return "", err
	}
	if err := repos.Folds.InsertBatch(ctx, folds); err != nil {
		return "", err
	}
	if err := repos.Trades.InsertBatch(ctx, trades); err != nil {
		return "", err
	}

	log.Info().Str("run_id", runID).Int("folds", len(folds)).Int("trades", len(trades)).Msg("Walk-forward run archived")
	return runID, nil
}

// Close closes the database connection
func (i *Integration) Close() error {
	if i.manager == nil {
		return nil
	}
	return i.manager.Close()
}
