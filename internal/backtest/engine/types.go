package engine

import (
	"errors"
	"time"

	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
)

var (
	// ErrDataMismatch is returned when bars, signals and volatility are not index aligned
	ErrDataMismatch = errors.New("data and signals length mismatch")
	// ErrInvalidSignal is returned for a signal outside Sell/Hold/Buy
	ErrInvalidSignal = errors.New("invalid signal value")
)

// Direction is the sign of the open position
type Direction int

const (
	Short Direction = -1
	Flat  Direction = 0
	Long  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// MarshalText encodes the direction by name
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// CloseReason explains why a position was closed
type CloseReason string

const (
	ReasonSignal        CloseReason = "signal"
	ReasonStopLoss      CloseReason = "stop_loss"
	ReasonTarget        CloseReason = "target"
	ReasonEndOfBacktest CloseReason = "end_of_backtest"
)

// Trade is a closed round trip
type Trade struct {
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   time.Time   `json:"exit_time"`
	Direction  Direction   `json:"direction"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
	StopLoss   float64     `json:"stop_loss"`
	Target     float64     `json:"target"`
	GrossPnL   float64     `json:"gross_pnl"`
	Cost       float64     `json:"cost"`
	NetPnL     float64     `json:"net_pnl"`
	Reason     CloseReason `json:"reason"`
}

// EquityPoint is the mark-to-market state after one bar
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Drawdown  float64   `json:"drawdown"`
	Position  Direction `json:"position"`
}

// Outcome tells callers which kind of result they hold
type Outcome string

const (
	// OutcomeComplete means at least one trade closed and metrics are populated
	OutcomeComplete Outcome = "complete"
	// OutcomeNoTrades means the run was valid but never opened a position
	OutcomeNoTrades Outcome = "no_trades"
	// OutcomeInsufficientData means there were no bars to simulate
	OutcomeInsufficientData Outcome = "insufficient_data"
)

// Result is the output of one run. Metrics are always well formed; on
// non-complete outcomes they are zeroed apart from the capital figures.
type Result struct {
	Outcome       Outcome          `json:"outcome"`
	Metrics       perf.PerfMetrics `json:"metrics"`
	Trades        []Trade          `json:"trades"`
	Equity        []EquityPoint    `json:"equity_curve"`
	Bars          int              `json:"bars"`
	FinalPosition Direction        `json:"final_position"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
}

// HasTrades reports whether the result carries populated trade metrics
func (r *Result) HasTrades() bool {
	return r != nil && r.Outcome == OutcomeComplete
}

// Recorder receives run and trade observations (prometheus in production)
type Recorder interface {
	ObserveRun(outcome string, bars int, duration time.Duration)
	ObserveTrade(reason string, netPnL float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, int, time.Duration) {}
func (nopRecorder) ObserveTrade(string, float64)          {}
