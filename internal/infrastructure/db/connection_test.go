package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"enabled without dsn": func(c *Config) { c.Enabled = true },
		"no open conns":       func(c *Config) { c.MaxOpenConns = 0 },
		"idle above open":     func(c *Config) { c.MaxIdleConns = 20 },
		"no timeout":          func(c *Config) { c.QueryTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://bot@localhost/upstock?sslmode=disable")
	t.Setenv("PG_ENABLED", "true")
	t.Setenv("PG_QUERY_TIMEOUT", "5s")
	t.Setenv("PG_MAX_OPEN_CONNS", "not-a-number")

	c := DefaultConfig()
	c.ApplyEnv()
	assert.True(t, c.Enabled)
	assert.Equal(t, "postgres://bot@localhost/upstock?sslmode=disable", c.DSN)
	assert.Equal(t, 5*time.Second, c.QueryTimeout)
	assert.Equal(t, 10, c.MaxOpenConns)
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Repository())
	assert.Nil(t, manager.DB())
	assert.NoError(t, manager.Close())

	check := manager.Health().Health(context.Background())
	assert.True(t, check.Healthy)
	assert.Contains(t, check.Errors[0], "disabled")
	assert.NoError(t, manager.Health().Ping(context.Background()))
	assert.Equal(t, false, manager.Health().Stats(context.Background())["enabled"])
	assert.Error(t, manager.Migrate(context.Background()))
}

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewManagerWithDB(sqlx.NewDb(mockDB, "postgres"), DefaultConfig()), mock
}

func TestManager_WithDB(t *testing.T) {
	m, mock := newMockManager(t)
	require.True(t, m.IsEnabled())
	require.NotNil(t, m.Repository())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backtest_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, m.Migrate(context.Background()))

	mock.ExpectPing()
	check := m.Health().Health(context.Background())
	assert.True(t, check.Healthy)
	assert.Contains(t, check.ConnectionPool, "open")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegration_Disabled(t *testing.T) {
	in, err := NewIntegration(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, in.IsEnabled())

	id, err := in.SaveBacktest(context.Background(), "bars.csv", &engine.Result{})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestIntegration_SaveBacktest(t *testing.T) {
	m, mock := newMockManager(t)
	in := NewIntegrationWithManager(m)

	at := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	res := &engine.Result{
		Outcome: engine.OutcomeComplete,
		Bars:    3,
		Trades: []engine.Trade{
			{EntryTime: at, ExitTime: at.Add(time.Minute), Direction: engine.Long, EntryPrice: 100, ExitPrice: 101, NetPnL: 1, Reason: engine.ReasonSignal},
		},
	}

	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO backtest_trades").ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := in.SaveBacktest(context.Background(), "bars.csv", res)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegration_SaveWalkForward(t *testing.T) {
	m, mock := newMockManager(t)
	in := NewIntegrationWithManager(m)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := walkforward.Window{Index: 1, TrainStart: start, TrainEnd: start.AddDate(0, 0, 10), TestStart: start.AddDate(0, 0, 10), TestEnd: start.AddDate(0, 0, 15)}
	rep := walkforward.Aggregate([]walkforward.FoldOutcome{{Window: w, Status: walkforward.FoldSkipped, Reason: "too few bars"}})

	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO walkforward_folds").ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := in.SaveWalkForward(context.Background(), "bars.csv", rep)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
