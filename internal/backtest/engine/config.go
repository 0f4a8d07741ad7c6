package engine

import (
	"fmt"

	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
)

// Config represents backtest engine configuration
type Config struct {
	InitialCapital     float64 `yaml:"initial_capital"`      // starting capital (default 1,000,000)
	TransactionCostBps float64 `yaml:"transaction_cost_bps"` // charged on both legs (default 5)
	SlippageBps        float64 `yaml:"slippage_bps"`         // adverse fill adjustment on signal fills (default 2)
	LatencyMs          int     `yaml:"latency_ms"`           // accepted but not modeled (default 100)
	StopLossATR        float64 `yaml:"stop_loss_atr"`        // stop distance in ATR (default 2.0)
	TargetATR          float64 `yaml:"target_atr"`           // target distance in ATR (default 3.0)
	FallbackVolatility float64 `yaml:"fallback_volatility"`  // ATR used when none is supplied (default 50)

	Perf perf.PerfCalculatorConfig `yaml:",inline"`
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		InitialCapital:     1_000_000,
		TransactionCostBps: 5,
		SlippageBps:        2,
		LatencyMs:          100,
		StopLossATR:        2.0,
		TargetATR:          3.0,
		FallbackVolatility: 50,
		Perf:               perf.DefaultPerfCalculatorConfig(),
	}
}

// Validate checks that the configuration can drive a simulation
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %v", c.InitialCapital)
	}
	if c.TransactionCostBps < 0 {
		return fmt.Errorf("transaction_cost_bps must not be negative, got %v", c.TransactionCostBps)
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("slippage_bps must not be negative, got %v", c.SlippageBps)
	}
	if c.LatencyMs < 0 {
		return fmt.Errorf("latency_ms must not be negative, got %d", c.LatencyMs)
	}
	if c.StopLossATR <= 0 || c.TargetATR <= 0 {
		return fmt.Errorf("stop_loss_atr and target_atr must be positive, got %v/%v", c.StopLossATR, c.TargetATR)
	}
	if c.FallbackVolatility <= 0 {
		return fmt.Errorf("fallback_volatility must be positive, got %v", c.FallbackVolatility)
	}
	if c.Perf.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading_days_per_year must be positive, got %d", c.Perf.TradingDaysPerYear)
	}
	return nil
}

func (c Config) costRate() float64 {
	return c.TransactionCostBps / 10000
}

func (c Config) slippageRate() float64 {
	return c.SlippageBps / 10000
}
