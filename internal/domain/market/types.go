// Package market holds the bar, signal and feature-frame types shared by the
// backtest engine, the risk gate and the walk-forward pipeline.
package market

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Bar is one OHLCV sample. ATR is optional; zero means "not supplied".
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	ATR       float64   `json:"atr,omitempty"`
}

// HasATR reports whether the bar carries a usable volatility estimate.
func (b Bar) HasATR() bool {
	return b.ATR > 0 && !math.IsInf(b.ATR, 0) && !math.IsNaN(b.ATR)
}

// Signal is the discrete model output for one bar.
type Signal int

const (
	Sell Signal = 0
	Hold Signal = 1
	Buy  Signal = 2
)

// NumClasses is the width of a probability row over {Sell, Hold, Buy}.
const NumClasses = 3

func (s Signal) String() string {
	switch s {
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	case Buy:
		return "BUY"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Valid reports whether s is one of Sell, Hold or Buy.
func (s Signal) Valid() bool {
	return s >= Sell && s <= Buy
}

// ParseSignal accepts the numeric 0/1/2 encoding or the names sell/hold/buy.
func ParseSignal(raw string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "sell", "short":
		return Sell, nil
	case "1", "hold", "":
		return Hold, nil
	case "2", "buy", "long":
		return Buy, nil
	}
	return Hold, fmt.Errorf("unknown signal %q", raw)
}

// SignalFromProba picks the most probable class; ties resolve to the lower index.
func SignalFromProba(p [NumClasses]float64) Signal {
	best := 0
	for i := 1; i < NumClasses; i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return Signal(best)
}

// Confidence is the probability of the chosen class.
func Confidence(p [NumClasses]float64) float64 {
	return p[SignalFromProba(p)]
}

// Closes extracts the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Slice returns the bars with from <= Timestamp < to. Input must be time-sorted.
func Slice(bars []Bar, from, to time.Time) []Bar {
	lo := lowerBound(bars, from)
	hi := lowerBound(bars, to)
	if hi < lo {
		hi = lo
	}
	return bars[lo:hi]
}

// lowerBound returns the first index whose timestamp is not before t.
func lowerBound(bars []Bar, t time.Time) int {
	low, high := 0, len(bars)
	for low < high {
		mid := (low + high) / 2
		if bars[mid].Timestamp.Before(t) {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return low
}

// Span returns the first and last timestamps of a non-empty sorted series.
func Span(bars []Bar) (time.Time, time.Time) {
	if len(bars) == 0 {
		return time.Time{}, time.Time{}
	}
	return bars[0].Timestamp, bars[len(bars)-1].Timestamp
}
