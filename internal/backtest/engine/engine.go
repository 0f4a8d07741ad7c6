// Package engine simulates a single-instrument directional strategy bar by bar
// and summarises the realized trades and equity curve.
package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
)

// Engine runs backtests. It holds configuration only; every Run builds a
// fresh simulation, so one Engine can be reused across runs and goroutines.
type Engine struct {
	config     Config
	calculator *perf.PerfCalculator
	recorder   Recorder
	now        func() time.Time
}

// Option customises an Engine
type Option func(*Engine)

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New creates an engine. The config is expected to have passed Validate.
func New(config Config, opts ...Option) *Engine {
	e := &Engine{
		config:     config,
		calculator: perf.NewPerfCalculator(config.Perf),
		recorder:   nopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Run simulates signals over bars. volatility may be nil; when present it must
// be the same length as bars. A length mismatch returns ErrDataMismatch and no
// result.
func (e *Engine) Run(bars []market.Bar, signals []market.Signal, volatility []float64) (*Result, error) {
	if len(bars) != len(signals) {
		log.Error().Int("bars", len(bars)).Int("signals", len(signals)).Msg("Data and signals length mismatch")
		return nil, fmt.Errorf("%w: %d bars, %d signals", ErrDataMismatch, len(bars), len(signals))
	}
	if volatility != nil && len(volatility) != len(bars) {
		log.Error().Int("bars", len(bars)).Int("volatility", len(volatility)).Msg("Data and volatility length mismatch")
		return nil, fmt.Errorf("%w: %d bars, %d volatility values", ErrDataMismatch, len(bars), len(volatility))
	}
	for i, s := range signals {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: %d at bar %d", ErrInvalidSignal, int(s), i)
		}
	}

	started := e.now()
	if e.config.LatencyMs > 0 {
		log.Debug().Int("latency_ms", e.config.LatencyMs).Msg("Order latency is accepted but not modeled")
	}

	sim := newSimulation(e.config, len(bars))
	for i := range bars {
		sim.step(bars[i], signals[i], e.volatilityAt(bars[i], volatility, i))
	}
	sim.finish(bars)
	sim.fillDrawdowns()

	result := &Result{
		Trades:        sim.trades,
		Equity:        sim.equity,
		Bars:          len(bars),
		FinalPosition: sim.pos.dir,
	}
	result.StartTime, result.EndTime = market.Span(bars)

	switch {
	case len(bars) == 0:
		result.Outcome = OutcomeInsufficientData
		log.Warn().Msg("No bars supplied to backtest")
	case len(sim.trades) == 0:
		result.Outcome = OutcomeNoTrades
		log.Warn().Int("bars", len(bars)).Msg("No trades executed")
	default:
		result.Outcome = OutcomeComplete
	}

	result.Metrics = e.calculator.Calculate(sim.perfInput())
	for _, t := range sim.trades {
		e.recorder.ObserveTrade(string(t.Reason), t.NetPnL)
	}
	e.recorder.ObserveRun(string(result.Outcome), len(bars), e.now().Sub(started))

	if result.HasTrades() {
		m := result.Metrics
		log.Info().
			Int("trades", m.TotalTrades).
			Float64("win_rate", m.WinRate).
			Float64("net_pnl", m.NetPnL).
			Float64("sharpe", m.Sharpe).
			Float64("sortino", m.Sortino).
			Float64("calmar", m.Calmar).
			Msg("Backtest results")
	}

	return result, nil
}

// volatilityAt resolves the ATR for bar i: explicit series, then the bar's
// own estimate, then the configured fallback.
func (e *Engine) volatilityAt(bar market.Bar, volatility []float64, i int) float64 {
	if volatility != nil {
		if v := volatility[i]; (market.Bar{ATR: v}).HasATR() {
			return v
		}
	}
	if bar.HasATR() {
		return bar.ATR
	}
	return e.config.FallbackVolatility
}
