// Package perf provides performance calculation for backtest runs
package perf

import (
	"math"

	"github.com/montanaflynn/stats"
)

// varianceFloor treats a standard deviation below this as zero so that a flat
// return series cannot blow a ratio up through float rounding noise.
const varianceFloor = 1e-14

// PerfMetrics contains the performance summary of one backtest run
type PerfMetrics struct {
	// Trade counts
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	// P&L
	GrossPnL     float64 `json:"gross_pnl"`
	NetPnL       float64 `json:"net_pnl"`
	AvgWin       float64 `json:"avg_win"`  // mean net P&L of winners
	AvgLoss      float64 `json:"avg_loss"` // mean net P&L of losers (negative)
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`

	// Returns and drawdown
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdown    float64 `json:"max_drawdown"`     // most negative equity - peak
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // relative to initial capital

	// Risk-adjusted
	Sharpe         float64 `json:"sharpe_ratio"`
	Sortino        float64 `json:"sortino_ratio"`
	Calmar         float64 `json:"calmar_ratio"`
	RecoveryFactor float64 `json:"recovery_factor"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
}

// TradeOutcome is the realized result of one closed trade
type TradeOutcome struct {
	GrossPnL float64
	NetPnL   float64
}

// Input is everything the calculator needs from a finished simulation
type Input struct {
	InitialCapital float64
	FinalCapital   float64
	Trades         []TradeOutcome
	Equity         []float64 // mark-to-market equity, one value per bar
}

// PerfCalculatorConfig holds annualization settings
type PerfCalculatorConfig struct {
	TradingDaysPerYear int     `yaml:"trading_days_per_year"` // annualization constant (default: 252)
	RiskFreeRate       float64 `yaml:"risk_free_rate"`        // annual risk-free rate (default: 0.06)
}

// DefaultPerfCalculatorConfig returns the NSE-style defaults
func DefaultPerfCalculatorConfig() PerfCalculatorConfig {
	return PerfCalculatorConfig{
		TradingDaysPerYear: 252,
		RiskFreeRate:       0.06,
	}
}

// PerfCalculator computes performance metrics from trades and an equity curve
type PerfCalculator struct {
	config PerfCalculatorConfig
}

// NewPerfCalculator creates a new performance calculator
func NewPerfCalculator(config PerfCalculatorConfig) *PerfCalculator {
	if config.TradingDaysPerYear <= 0 {
		config.TradingDaysPerYear = 252
	}
	return &PerfCalculator{config: config}
}

// Calculate computes the full metric set. With no trades it returns a zeroed
// summary that only carries the capital figures.
func (pc *PerfCalculator) Calculate(in Input) PerfMetrics {
	metrics := PerfMetrics{
		InitialCapital: in.InitialCapital,
		FinalCapital:   in.FinalCapital,
	}
	if len(in.Trades) == 0 {
		return metrics
	}

	pc.calculateTradeMetrics(in.Trades, &metrics)
	pc.calculateDrawdown(in.Equity, in.InitialCapital, &metrics)

	if in.InitialCapital != 0 {
		metrics.TotalReturnPct = (in.FinalCapital - in.InitialCapital) / in.InitialCapital * 100
	}

	pc.calculateRiskMetrics(Returns(in.Equity), &metrics)

	if metrics.MaxDrawdownPct != 0 {
		metrics.Calmar = math.Abs(metrics.TotalReturnPct / metrics.MaxDrawdownPct)
	}
	if metrics.MaxDrawdown != 0 {
		metrics.RecoveryFactor = math.Abs(metrics.NetPnL / metrics.MaxDrawdown)
	}

	sanitize(&metrics)
	return metrics
}

// calculateTradeMetrics computes counts, sums and win/loss averages
func (pc *PerfCalculator) calculateTradeMetrics(trades []TradeOutcome, metrics *PerfMetrics) {
	var winSum, lossSum float64
	for _, t := range trades {
		metrics.GrossPnL += t.GrossPnL
		metrics.NetPnL += t.NetPnL
		switch {
		case t.NetPnL > 0:
			metrics.WinningTrades++
			winSum += t.NetPnL
		case t.NetPnL < 0:
			metrics.LosingTrades++
			lossSum += t.NetPnL
		}
	}

	metrics.TotalTrades = len(trades)
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)

	if metrics.WinningTrades > 0 {
		metrics.AvgWin = winSum / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AvgLoss = lossSum / float64(metrics.LosingTrades)
		denominator := metrics.AvgLoss * float64(metrics.LosingTrades)
		if denominator != 0 {
			metrics.ProfitFactor = math.Abs(metrics.AvgWin * float64(metrics.WinningTrades) / denominator)
		}
	}

	metrics.Expectancy = metrics.WinRate*metrics.AvgWin - (1-metrics.WinRate)*math.Abs(metrics.AvgLoss)
}

// calculateDrawdown finds the deepest equity-minus-peak excursion
func (pc *PerfCalculator) calculateDrawdown(equity []float64, initialCapital float64, metrics *PerfMetrics) {
	for _, dd := range Drawdowns(equity) {
		if dd < metrics.MaxDrawdown {
			metrics.MaxDrawdown = dd
		}
	}
	if initialCapital != 0 {
		metrics.MaxDrawdownPct = metrics.MaxDrawdown / initialCapital * 100
	}
}

// calculateRiskMetrics computes Sharpe and Sortino from per-step returns
func (pc *PerfCalculator) calculateRiskMetrics(returns []float64, metrics *PerfMetrics) {
	if len(returns) == 0 {
		return
	}

	periods := float64(pc.config.TradingDaysPerYear)
	dailyRiskFree := pc.config.RiskFreeRate / periods

	excess := make([]float64, len(returns))
	var downside []float64
	for i, r := range returns {
		excess[i] = r - dailyRiskFree
		if r < 0 {
			downside = append(downside, r)
		}
	}

	meanExcess, err := stats.Mean(excess)
	if err != nil {
		return
	}

	if sd := sampleStdDev(excess); sd > 0 {
		metrics.Sharpe = meanExcess / sd * math.Sqrt(periods)
	}
	if sd := sampleStdDev(downside); sd > 0 {
		metrics.Sortino = meanExcess / sd * math.Sqrt(periods)
	}
}

// Drawdowns returns equity minus running peak for every point (always <= 0)
func Drawdowns(equity []float64) []float64 {
	out := make([]float64, len(equity))
	if len(equity) == 0 {
		return out
	}
	peak := equity[0]
	for i, e := range equity {
		if e > peak {
			peak = e
		}
		out[i] = e - peak
	}
	return out
}

// Returns computes simple step returns; the first point has no return and a
// zero previous equity yields no return either.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		out = append(out, (equity[i]-equity[i-1])/equity[i-1])
	}
	return out
}

// MeanStd returns the mean and sample standard deviation of xs, both zero
// when undefined.
func MeanStd(xs []float64) (float64, float64) {
	mean, err := stats.Mean(xs)
	if err != nil {
		return 0, 0
	}
	return finite(mean), sampleStdDev(xs)
}

func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(xs)
	if err != nil || !isFinite(sd) || sd < varianceFloor {
		return 0
	}
	return sd
}

func sanitize(m *PerfMetrics) {
	for _, v := range []*float64{
		&m.WinRate, &m.GrossPnL, &m.NetPnL, &m.AvgWin, &m.AvgLoss,
		&m.ProfitFactor, &m.Expectancy, &m.TotalReturnPct, &m.MaxDrawdown,
		&m.MaxDrawdownPct, &m.Sharpe, &m.Sortino, &m.Calmar, &m.RecoveryFactor,
	} {
		*v = finite(*v)
	}
}

func finite(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
