package walkforward

import (
	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
)

// Report aggregates the completed folds of a walk-forward run. NFolds counts
// completed folds only; a report with NFolds == 0 is the explicit empty result.
type Report struct {
	NFolds           int          `json:"n_folds"`
	PlannedFolds     int          `json:"planned_folds"`
	SkippedFolds     int          `json:"skipped_folds"`
	FailedFolds      int          `json:"failed_folds"`
	AvgTestF1        float64      `json:"avg_test_f1"`
	StdTestF1        float64      `json:"std_test_f1"`
	AvgTestAccuracy  float64      `json:"avg_test_accuracy"`
	AvgBacktestPnL   float64      `json:"avg_backtest_pnl"`
	TotalBacktestPnL float64      `json:"total_backtest_pnl"`
	AvgWinRate       float64      `json:"avg_win_rate"`
	AvgSharpe        float64      `json:"avg_sharpe"`
	TotalTrades      int          `json:"total_trades"`
	FoldResults      []FoldResult `json:"fold_results"`

	Outcomes []FoldOutcome `json:"-"`
}

// Empty reports whether no fold completed
func (r *Report) Empty() bool {
	return r == nil || r.NFolds == 0
}

// Aggregate reduces fold outcomes, in fold order, into a report
func Aggregate(outcomes []FoldOutcome) *Report {
	r := &Report{
		PlannedFolds: len(outcomes),
		FoldResults:  make([]FoldResult, 0, len(outcomes)),
		Outcomes:     outcomes,
	}

	var f1, acc, pnl, wr, sharpe []float64
	for _, o := range outcomes {
		switch o.Status {
		case FoldSkipped:
			r.SkippedFolds++
			continue
		case FoldFailed:
			r.FailedFolds++
			continue
		}
		if o.Result == nil {
			continue
		}
		fr := *o.Result
		r.FoldResults = append(r.FoldResults, fr)
		f1 = append(f1, fr.TestF1Macro)
		acc = append(acc, fr.TestAccuracy)
		pnl = append(pnl, fr.BacktestPnL)
		wr = append(wr, fr.BacktestWinRate)
		sharpe = append(sharpe, fr.BacktestSharpe)
		r.TotalTrades += fr.BacktestTrades
	}

	r.NFolds = len(r.FoldResults)
	if r.NFolds == 0 {
		return r
	}

	r.AvgTestF1, r.StdTestF1 = perf.MeanStd(f1)
	r.AvgTestAccuracy, _ = perf.MeanStd(acc)
	r.AvgBacktestPnL, _ = perf.MeanStd(pnl)
	for _, p := range pnl {
		r.TotalBacktestPnL += p
	}
	r.AvgWinRate, _ = perf.MeanStd(wr)
	r.AvgSharpe, _ = perf.MeanStd(sharpe)
	return r
}

func (r *Report) log() {
	if r.Empty() {
		log.Error().Int("planned", r.PlannedFolds).Int("skipped", r.SkippedFolds).Int("failed", r.FailedFolds).
			Msg("No successful folds completed")
		return
	}
	log.Info().
		Int("completed_folds", r.NFolds).
		Int("skipped", r.SkippedFolds).
		Int("failed", r.FailedFolds).
		Float64("avg_test_f1", r.AvgTestF1).
		Float64("std_test_f1", r.StdTestF1).
		Float64("avg_test_accuracy", r.AvgTestAccuracy).
		Float64("total_backtest_pnl", r.TotalBacktestPnL).
		Float64("avg_win_rate", r.AvgWinRate).
		Float64("avg_sharpe", r.AvgSharpe).
		Int("total_trades", r.TotalTrades).
		Msg("Walk-forward optimization results")
}
