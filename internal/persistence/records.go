package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// BacktestRecords maps a backtest result onto a run header and its trades
func BacktestRecords(runID, source string, res *engine.Result) (Run, []TradeRecord, error) {
	if res == nil {
		return Run{}, nil, fmt.Errorf("nil backtest result")
	}
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return Run{}, nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	run := Run{
		ID:        runID,
		Kind:      KindBacktest,
		Source:    source,
		Outcome:   string(res.Outcome),
		Bars:      res.Bars,
		StartTime: res.StartTime,
		EndTime:   res.EndTime,
		Metrics:   metrics,
		CreatedAt: time.Now().UTC(),
	}
	return run, tradeRecords(runID, 0, res.Trades), nil
}

// WalkForwardRecords maps a walk-forward report onto a run header, one fold
// record per planned fold and the trades of every completed fold.
func WalkForwardRecords(runID, source string, rep *walkforward.Report) (Run, []FoldRecord, []TradeRecord, error) {
	if rep == nil {
		return Run{}, nil, nil, fmt.Errorf("nil walk-forward report")
	}
	summary, err := json.Marshal(rep)
	if err != nil {
		return Run{}, nil, nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	outcome := "complete"
	if rep.Empty() {
		outcome = "empty"
	}
	run := Run{
		ID:        runID,
		Kind:      KindWalkForward,
		Source:    source,
		Outcome:   outcome,
		Metrics:   summary,
		CreatedAt: time.Now().UTC(),
	}

	var folds []FoldRecord
	var trades []TradeRecord
	for _, o := range rep.Outcomes {
		if run.StartTime.IsZero() || o.Window.TrainStart.Before(run.StartTime) {
			run.StartTime = o.Window.TrainStart
		}
		if o.Window.TestEnd.After(run.EndTime) {
			run.EndTime = o.Window.TestEnd
		}

		fr := FoldRecord{
			RunID:      runID,
			Fold:       o.Window.Index,
			TrainStart: o.Window.TrainStart,
			TrainEnd:   o.Window.TrainEnd,
			TestStart:  o.Window.TestStart,
			TestEnd:    o.Window.TestEnd,
			Status:     string(o.Status),
		}
		if o.Reason != "" {
			reason := o.Reason
			fr.Reason = &reason
		}
		if r := o.Result; r != nil {
			fr.TrainSamples = r.TrainSamples
			fr.TestSamples = r.TestSamples
			fr.TestF1Macro = r.TestF1Macro
			fr.TestAccuracy = r.TestAccuracy
			fr.PnL = r.BacktestPnL
			fr.WinRate = r.BacktestWinRate
			fr.Sharpe = r.BacktestSharpe
			fr.Trades = r.BacktestTrades
			if r.Backtest != nil {
				run.Bars += r.Backtest.Bars
				trades = append(trades, tradeRecords(runID, o.Window.Index, r.Backtest.Trades)...)
			}
		}
		folds = append(folds, fr)
	}
	return run, folds, trades, nil
}

func tradeRecords(runID string, fold int, trades []engine.Trade) []TradeRecord {
	out := make([]TradeRecord, len(trades))
	for i, t := range trades {
		out[i] = TradeRecord{
			RunID:      runID,
			Seq:        i + 1,
			Fold:       fold,
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			Direction:  t.Direction.String(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			StopLoss:   t.StopLoss,
			Target:     t.Target,
			GrossPnL:   t.GrossPnL,
			Cost:       t.Cost,
			NetPnL:     t.NetPnL,
			Reason:     string(t.Reason),
		}
	}
	return out
}
