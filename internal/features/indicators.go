package features

import (
	"math"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// TrueRange is high-low for the first bar and the classic three-way max after
func TrueRange(bars []market.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		tr[i] = b.High - b.Low
		if i == 0 {
			continue
		}
		prev := bars[i-1].Close
		tr[i] = math.Max(tr[i], math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return tr
}

// RollingMean is the trailing simple mean; positions before the first full
// window are NaN.
func RollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// ATR is the rolling mean of the true range
func ATR(bars []market.Bar, period int) []float64 {
	return RollingMean(TrueRange(bars), period)
}

// RSI uses simple rolling means of gains and losses. Flat windows read 50
// and loss-free windows read 100.
func RSI(closes []float64, period int) []float64 {
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	avgGain := RollingMean(gains, period)
	avgLoss := RollingMean(losses, period)
	out := make([]float64, len(closes))
	for i := range closes {
		switch {
		case i < period:
			out[i] = math.NaN()
		case avgLoss[i] == 0 && avgGain[i] == 0:
			out[i] = 50
		case avgLoss[i] == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain[i]/avgLoss[i])
		}
	}
	return out
}

// EMA with span smoothing (alpha = 2/(span+1)), seeded with the first value
func EMA(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2 / (float64(span) + 1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// PctChange is x[i]/x[i-lag]-1, NaN where undefined
func PctChange(xs []float64, lag int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < lag || xs[i-lag] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[i]/xs[i-lag] - 1
	}
	return out
}
