package perf

import (
	"fmt"
	"time"
)

// Alert represents a performance threshold breach found in a backtest summary
type Alert struct {
	Type      string    `json:"type"`     // performance, drawdown, hit_rate, profit_factor
	Severity  string    `json:"severity"` // CRITICAL, WARNING
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
}

// AlertThresholds are the acceptance limits a run is checked against
type AlertThresholds struct {
	MinSharpeRatio    float64 `yaml:"min_sharpe_ratio"`     // default: 1.0
	MaxDrawdownPct    float64 `yaml:"max_drawdown_pct"`     // default: 10 (% of initial capital)
	MinWinRate        float64 `yaml:"min_win_rate"`         // default: 0.40
	MinProfitFactor   float64 `yaml:"min_profit_factor"`    // default: 1.0
	MinTradesForCheck int     `yaml:"min_trades_for_check"` // default: 5
}

// DefaultAlertThresholds returns the thresholds used by the CLI
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MinSharpeRatio:    1.0,
		MaxDrawdownPct:    10.0,
		MinWinRate:        0.40,
		MinProfitFactor:   1.0,
		MinTradesForCheck: 5,
	}
}

// AlertChecker evaluates metrics against thresholds
type AlertChecker struct {
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertChecker creates a new alert checker
func NewAlertChecker(thresholds AlertThresholds) *AlertChecker {
	return &AlertChecker{thresholds: thresholds, now: time.Now}
}

// Check returns every breached threshold. Runs with fewer trades than
// MinTradesForCheck are not judged.
func (ac *AlertChecker) Check(metrics PerfMetrics) []Alert {
	alerts := make([]Alert, 0)
	if metrics.TotalTrades < ac.thresholds.MinTradesForCheck {
		return alerts
	}
	now := ac.now()

	if metrics.Sharpe < ac.thresholds.MinSharpeRatio {
		alerts = append(alerts, Alert{
			Type:      "performance",
			Severity:  "WARNING",
			Message:   fmt.Sprintf("Sharpe ratio %.2f is below minimum threshold of %.2f", metrics.Sharpe, ac.thresholds.MinSharpeRatio),
			Timestamp: now,
			Metric:    "sharpe_ratio",
			Value:     metrics.Sharpe,
			Threshold: ac.thresholds.MinSharpeRatio,
		})
	}

	// MaxDrawdownPct is negative in the metrics, the threshold is a magnitude
	if -metrics.MaxDrawdownPct > ac.thresholds.MaxDrawdownPct {
		severity := "WARNING"
		if -metrics.MaxDrawdownPct > ac.thresholds.MaxDrawdownPct*1.5 {
			severity = "CRITICAL"
		}
		alerts = append(alerts, Alert{
			Type:      "drawdown",
			Severity:  severity,
			Message:   fmt.Sprintf("Maximum drawdown %.2f%% exceeds threshold of %.2f%%", -metrics.MaxDrawdownPct, ac.thresholds.MaxDrawdownPct),
			Timestamp: now,
			Metric:    "max_drawdown_pct",
			Value:     metrics.MaxDrawdownPct,
			Threshold: ac.thresholds.MaxDrawdownPct,
		})
	}

	if metrics.WinRate < ac.thresholds.MinWinRate {
		alerts = append(alerts, Alert{
			Type:      "hit_rate",
			Severity:  "WARNING",
			Message:   fmt.Sprintf("Win rate %.2f%% is below %.2f%%", metrics.WinRate*100, ac.thresholds.MinWinRate*100),
			Timestamp: now,
			Metric:    "win_rate",
			Value:     metrics.WinRate,
			Threshold: ac.thresholds.MinWinRate,
		})
	}

	// profit factor is 0 when there were no losers, which is not a breach
	if metrics.LosingTrades > 0 && metrics.ProfitFactor < ac.thresholds.MinProfitFactor {
		alerts = append(alerts, Alert{
			Type:      "profit_factor",
			Severity:  "CRITICAL",
			Message:   fmt.Sprintf("Profit factor %.2f indicates net losses", metrics.ProfitFactor),
			Timestamp: now,
			Metric:    "profit_factor",
			Value:     metrics.ProfitFactor,
			Threshold: ac.thresholds.MinProfitFactor,
		})
	}

	return alerts
}
