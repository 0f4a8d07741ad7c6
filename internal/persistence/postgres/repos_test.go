package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestRunsRepo_Insert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO backtest_runs").
		WithArgs("run-1", "backtest", "bars.csv", "complete", 120, sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("{}")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), persistence.Run{
		ID: "run-1", Kind: persistence.KindBacktest, Source: "bars.csv", Outcome: "complete", Bars: 120,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_InsertValidation(t *testing.T) {
	db, _ := newMock(t)
	repo := NewRunsRepo(db, time.Second)

	assert.Error(t, repo.Insert(context.Background(), persistence.Run{Kind: persistence.KindBacktest}))
	assert.Error(t, repo.Insert(context.Background(), persistence.Run{ID: "x", Kind: "live"}))
}

func TestRunsRepo_InsertDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO backtest_runs").
		WillReturnError(&pq.Error{Code: "23505", Detail: "Key (id)=(run-1) already exists."})

	err := repo.Insert(context.Background(), persistence.Run{ID: "run-1", Kind: persistence.KindBacktest})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestRunsRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)

	start := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "kind", "source", "outcome", "bars", "start_time", "end_time", "metrics", "created_at"}).
		AddRow("run-1", "backtest", "bars.csv", "complete", 50, start, start.Add(time.Hour), []byte(`{"net_pnl":12.5}`), start)
	mock.ExpectQuery("SELECT (.+) FROM backtest_runs WHERE id").WithArgs("run-1").WillReturnRows(rows)

	run, err := repo.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 50, run.Bars)
	assert.JSONEq(t, `{"net_pnl":12.5}`, string(run.Metrics))

	mock.ExpectQuery("SELECT (.+) FROM backtest_runs WHERE id").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_ListRecent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)

	cols := []string{"id", "kind", "source", "outcome", "bars", "start_time", "end_time", "metrics", "created_at"}
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM backtest_runs WHERE kind = (.+) LIMIT").
		WithArgs("walkforward", 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("wf-2", "walkforward", "", "complete", 0, now, now, []byte("{}"), now).
			AddRow("wf-1", "walkforward", "", "empty", 0, now, now, []byte("{}"), now))

	runs, err := repo.ListRecent(context.Background(), persistence.KindWalkForward, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "wf-2", runs[0].ID)

	mock.ExpectQuery("SELECT (.+) FROM backtest_runs ORDER BY").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(cols))
	runs, err = repo.ListRecent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_ListRangeRejectsInvertedRange(t *testing.T) {
	db, _ := newMock(t)
	repo := NewRunsRepo(db, time.Second)
	now := time.Now()
	_, err := repo.ListRange(context.Background(), persistence.TimeRange{From: now, To: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestTradesRepo_InsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, time.Second)

	at := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	trades := []persistence.TradeRecord{
		{RunID: "run-1", Seq: 1, EntryTime: at, ExitTime: at.Add(time.Hour), Direction: "long", EntryPrice: 100, ExitPrice: 101, NetPnL: 1, Reason: "signal"},
		{RunID: "run-1", Seq: 2, EntryTime: at.Add(time.Hour), ExitTime: at.Add(2 * time.Hour), Direction: "short", EntryPrice: 101, ExitPrice: 102, NetPnL: -1, Reason: "stop_loss"},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO backtest_trades")
	prep.ExpectExec().WithArgs("run-1", 1, 0, at, at.Add(time.Hour), "long", 100.0, 101.0, 0.0, 0.0, 0.0, 0.0, 1.0, "signal").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("run-1", 2, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), "short", 101.0, 102.0, 0.0, 0.0, 0.0, 0.0, -1.0, "stop_loss").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), trades))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepo_InsertBatchRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, time.Second)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO backtest_trades")
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []persistence.TradeRecord{{RunID: "run-1", Seq: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepo_EmptyBatchIsNoop(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, time.Second)
	require.NoError(t, repo.InsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepo_CountByReason(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, time.Second)

	mock.ExpectQuery("SELECT reason, COUNT").WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"reason", "count"}).
			AddRow("signal", 4).
			AddRow("stop_loss", 2))

	counts, err := repo.CountByReason(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"signal": 4, "stop_loss": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepo_ListByRun(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTradesRepo(db, time.Second)

	at := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	cols := []string{"run_id", "seq", "fold", "entry_time", "exit_time", "direction", "entry_price", "exit_price",
		"stop_loss", "target", "gross_pnl", "cost", "net_pnl", "reason"}
	mock.ExpectQuery("FROM backtest_trades").WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("run-1", 1, 0, at, at.Add(time.Hour), "long", 100.0, 103.0, 98.0, 104.0, 3.0, 0.1, 2.9, "signal"))

	trades, err := repo.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 2.9, trades[0].NetPnL)
	assert.Equal(t, "signal", trades[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFoldsRepo_InsertBatchAndList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFoldsRepo(db, time.Second)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reason := "too few training rows"
	folds := []persistence.FoldRecord{
		{RunID: "wf-1", Fold: 1, TrainStart: start, Status: "completed", TestF1Macro: 0.41, Trades: 7},
		{RunID: "wf-1", Fold: 2, TrainStart: start, Status: "skipped", Reason: &reason},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO walkforward_folds")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.InsertBatch(context.Background(), folds))

	cols := []string{"run_id", "fold", "train_start", "train_end", "test_start", "test_end", "status", "reason",
		"train_samples", "test_samples", "test_f1_macro", "test_accuracy",
		"backtest_pnl", "backtest_win_rate", "backtest_sharpe", "backtest_trades"}
	mock.ExpectQuery("FROM walkforward_folds").WithArgs("wf-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("wf-1", 1, start, start, start, start, "completed", nil, 200, 90, 0.41, 0.5, 12.0, 0.6, 1.1, 7).
			AddRow("wf-1", 2, start, start, start, start, "skipped", reason, 0, 0, 0.0, 0.0, 0.0, 0.0, 0.0, 0))

	got, err := repo.ListByRun(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Reason)
	require.NotNil(t, got[1].Reason)
	assert.Equal(t, reason, *got[1].Reason)
	assert.Equal(t, 7, got[0].Trades)
	assert.NoError(t, mock.ExpectationsWereMet())
}
