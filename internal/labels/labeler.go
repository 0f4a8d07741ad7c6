// Package labels derives Sell/Hold/Buy targets from forward returns.
package labels

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// ErrInsufficientData is returned when a frame is shorter than the horizon
var ErrInsufficientData = errors.New("insufficient data for label creation")

// Config sets the forward horizon and return thresholds
type Config struct {
	HorizonBars   int     `yaml:"horizon_bars"`   // 3
	BuyThreshold  float64 `yaml:"buy_threshold"`  // 0.001
	SellThreshold float64 `yaml:"sell_threshold"` // -0.001
}

// DefaultConfig returns the standard labeling rule
func DefaultConfig() Config {
	return Config{
		HorizonBars:   3,
		BuyThreshold:  0.001,
		SellThreshold: -0.001,
	}
}

// Labeler assigns Buy when the forward return exceeds BuyThreshold, Sell when
// it is below SellThreshold and Hold otherwise.
type Labeler struct {
	config Config
}

// NewLabeler creates a labeler
func NewLabeler(config Config) *Labeler {
	return &Labeler{config: config}
}

// ForwardReturn is (close[i+h]-close[i])/close[i]
func ForwardReturn(bars []market.Bar, i, horizon int) float64 {
	return (bars[i+horizon].Close - bars[i].Close) / bars[i].Close
}

// Label returns frame with Labels set. The last HorizonBars rows have no
// forward return and are dropped.
func (l *Labeler) Label(frame market.Frame) (market.Frame, error) {
	h := l.config.HorizonBars
	if frame.Len() < h+1 {
		log.Warn().Int("rows", frame.Len()).Int("horizon", h).Msg("Insufficient data for label creation")
		return market.Frame{}, fmt.Errorf("%w: %d rows, horizon %d", ErrInsufficientData, frame.Len(), h)
	}

	out := frame.Head(frame.Len() - h)
	out.Labels = make([]market.Signal, out.Len())
	var counts [market.NumClasses]int
	for i := range out.Labels {
		r := ForwardReturn(frame.Bars, i, h)
		s := market.Hold
		switch {
		case r > l.config.BuyThreshold:
			s = market.Buy
		case r < l.config.SellThreshold:
			s = market.Sell
		}
		out.Labels[i] = s
		counts[s]++
	}

	log.Debug().
		Int("sell", counts[market.Sell]).
		Int("hold", counts[market.Hold]).
		Int("buy", counts[market.Buy]).
		Msg("Label distribution")
	return out, nil
}
