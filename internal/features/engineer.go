// Package features derives a scaled feature matrix from OHLCV bars.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// ErrInsufficientData is returned when bars do not cover the warm-up period
var ErrInsufficientData = errors.New("insufficient data for feature creation")

// Config controls indicator windows
type Config struct {
	ATRPeriod    int `yaml:"atr_period"`    // 14
	RSIPeriod    int `yaml:"rsi_period"`    // 14
	VolumeWindow int `yaml:"volume_window"` // 20
	FastEMA      int `yaml:"fast_ema"`      // 5
	SlowEMA      int `yaml:"slow_ema"`      // 10
}

// DefaultConfig returns the standard indicator windows
func DefaultConfig() Config {
	return Config{
		ATRPeriod:    14,
		RSIPeriod:    14,
		VolumeWindow: 20,
		FastEMA:      5,
		SlowEMA:      10,
	}
}

// Columns lists the feature names in matrix order
var Columns = []string{
	"return_1",
	"return_5",
	"ema_cross",
	"normalized_atr",
	"rsi",
	"close_position",
	"volume_ratio",
	"hour_sin",
	"hour_cos",
}

// Engineer computes features and owns the scaler fitted on training data.
// One Engineer must not be shared between folds.
type Engineer struct {
	config Config
	scaler RobustScaler
	fitted bool
}

// NewEngineer creates a feature engineer
func NewEngineer(config Config) *Engineer {
	return &Engineer{config: config}
}

// WarmUp is the number of leading rows dropped because an indicator window
// is not yet full.
func (e *Engineer) WarmUp() int {
	w := 5
	for _, n := range []int{e.config.ATRPeriod - 1, e.config.RSIPeriod, e.config.VolumeWindow - 1} {
		if n > w {
			w = n
		}
	}
	return w
}

// Fit computes raw features on bars and fits the scaler
func (e *Engineer) Fit(bars []market.Bar) error {
	raw, _, err := e.raw(bars)
	if err != nil {
		return err
	}
	if err := e.scaler.Fit(raw); err != nil {
		return fmt.Errorf("fit scaler: %w", err)
	}
	e.fitted = true
	log.Debug().Int("features", len(Columns)).Int("rows", len(raw)).Msg("Fitted scaler")
	return nil
}

// Transform returns the scaled frame for bars. Volatility carries the
// unscaled ATR so the backtest can size stops from it.
func (e *Engineer) Transform(bars []market.Bar) (market.Frame, error) {
	if !e.fitted {
		return market.Frame{}, ErrScalerNotFitted
	}
	raw, atr, err := e.raw(bars)
	if err != nil {
		return market.Frame{}, err
	}
	X, err := e.scaler.Transform(raw)
	if err != nil {
		return market.Frame{}, err
	}

	warm := e.WarmUp()
	return market.Frame{
		Bars:       bars[warm:],
		X:          X,
		Columns:    Columns,
		Volatility: atr[warm:],
	}, nil
}

// raw computes unscaled rows for bars[WarmUp():]
func (e *Engineer) raw(bars []market.Bar) ([][]float64, []float64, error) {
	warm := e.WarmUp()
	if len(bars) <= warm {
		log.Warn().Int("bars", len(bars)).Int("warm_up", warm).Msg("Insufficient data for feature creation")
		return nil, nil, fmt.Errorf("%w: %d bars, need more than %d", ErrInsufficientData, len(bars), warm)
	}

	closes := market.Closes(bars)
	atr := ATR(bars, e.config.ATRPeriod)
	rsi := RSI(closes, e.config.RSIPeriod)
	ret1 := PctChange(closes, 1)
	ret5 := PctChange(closes, 5)
	fast := EMA(closes, e.config.FastEMA)
	slow := EMA(closes, e.config.SlowEMA)

	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	volMean := RollingMean(volumes, e.config.VolumeWindow)

	rows := make([][]float64, 0, len(bars)-warm)
	for i := warm; i < len(bars); i++ {
		b := bars[i]
		closePos := 0.5
		if b.High > b.Low {
			closePos = (b.Close - b.Low) / (b.High - b.Low)
		}
		volRatio := 1.0
		if volMean[i] > 0 {
			volRatio = b.Volume / volMean[i]
		}
		hour := float64(b.Timestamp.Hour()) + float64(b.Timestamp.Minute())/60

		row := []float64{
			ret1[i],
			ret5[i],
			(fast[i] - slow[i]) / b.Close,
			atr[i] / b.Close,
			rsi[i],
			closePos,
			volRatio,
			math.Sin(2 * math.Pi * hour / 24),
			math.Cos(2 * math.Pi * hour / 24),
		}
		for c, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[c] = 0
			}
		}
		rows = append(rows, row)
	}
	return rows, atr, nil
}
