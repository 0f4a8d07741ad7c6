package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

func trendingBars(n int) []market.Bar {
	start := time.Date(2024, 2, 1, 9, 15, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 200 + float64(i)*0.5 + 3*math.Sin(float64(i)/3)
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c - 0.2, High: c + 1, Low: c - 1, Close: c,
			Volume: float64(1000 + 10*(i%7)),
		}
	}
	return bars
}

func TestTrueRangeAndATR(t *testing.T) {
	bars := []market.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 12, Low: 10, Close: 11}, // gap up: |12-9| = 3
		{High: 11, Low: 10.5, Close: 10.8},
	}
	tr := TrueRange(bars)
	assert.Equal(t, []float64{2, 3, 0.5}, tr)

	atr := ATR(bars, 2)
	assert.True(t, math.IsNaN(atr[0]))
	assert.InDelta(t, 2.5, atr[1], 1e-12)
	assert.InDelta(t, 1.75, atr[2], 1e-12)
}

func TestRSI(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5}
	rsi := RSI(up, 3)
	assert.True(t, math.IsNaN(rsi[2]))
	assert.Equal(t, 100.0, rsi[3])

	flat := RSI([]float64{5, 5, 5, 5}, 2)
	assert.Equal(t, 50.0, flat[3])

	mixed := RSI([]float64{10, 11, 10, 11}, 2)
	assert.InDelta(t, 50.0, mixed[3], 1e-12)
}

func TestEMAAndPctChange(t *testing.T) {
	ema := EMA([]float64{10, 20}, 3)
	assert.Equal(t, 10.0, ema[0])
	assert.InDelta(t, 15.0, ema[1], 1e-12)

	pc := PctChange([]float64{100, 110, 0, 5}, 1)
	assert.True(t, math.IsNaN(pc[0]))
	assert.InDelta(t, 0.1, pc[1], 1e-12)
	assert.True(t, math.IsNaN(pc[3]), "division by zero previous value")
}

func TestEngineer_FitTransform(t *testing.T) {
	e := NewEngineer(DefaultConfig())
	train := trendingBars(200)
	test := trendingBars(60)

	_, err := e.Transform(test)
	require.ErrorIs(t, err, ErrScalerNotFitted)

	require.NoError(t, e.Fit(train))

	frame, err := e.Transform(test)
	require.NoError(t, err)
	require.NoError(t, frame.Validate())

	assert.Equal(t, 19, e.WarmUp())
	assert.Equal(t, 60-19, frame.Len())
	assert.Equal(t, test[19].Timestamp, frame.Bars[0].Timestamp)
	assert.Equal(t, Columns, frame.Columns)
	for i, row := range frame.X {
		require.Len(t, row, len(Columns))
		for _, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.Greater(t, frame.Volatility[i], 0.0)
	}
}

func TestEngineer_TransformDoesNotRefit(t *testing.T) {
	e := NewEngineer(DefaultConfig())
	require.NoError(t, e.Fit(trendingBars(200)))
	center := append([]float64(nil), e.scaler.Center...)

	_, err := e.Transform(trendingBars(80))
	require.NoError(t, err)
	assert.Equal(t, center, e.scaler.Center)
}

func TestEngineer_InsufficientData(t *testing.T) {
	e := NewEngineer(DefaultConfig())
	err := e.Fit(trendingBars(19))
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRobustScaler(t *testing.T) {
	var s RobustScaler
	X := [][]float64{{1, 7}, {2, 7}, {3, 7}, {4, 7}, {5, 7}}
	require.NoError(t, s.Fit(X))

	assert.Equal(t, 3.0, s.Center[0])
	assert.Equal(t, 7.0, s.Center[1])
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")

	out, err := s.Transform([][]float64{{3, 8}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0][0])
	assert.Equal(t, 1.0, out[0][1])

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}
