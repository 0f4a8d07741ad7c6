package gates

import (
	"fmt"
	"time"
)

// RiskConfig contains the per-day limits enforced by RiskGate
type RiskConfig struct {
	MaxDailyLoss        float64       `yaml:"max_daily_loss"`             // block and flatten at this loss (20,000)
	MaxTradesPerDay     int           `yaml:"max_trades_per_day"`         // 20
	MaxPositionSize     int           `yaml:"max_position_size"`          // lots (2)
	VolatilitySpike     float64       `yaml:"volatility_spike_threshold"` // atr > avg × 3.0
	CooldownAfterLosses int           `yaml:"cooldown_after_losses"`      // 3 consecutive losses
	CooldownDuration    time.Duration `yaml:"cooldown_duration"`          // 30m
	RiskPerTrade        float64       `yaml:"risk_per_trade"`             // fraction of capital (0.02)
	Timezone            string        `yaml:"timezone"`                   // trading-day calendar, empty = local
}

// DefaultRiskConfig returns the production risk limits
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxDailyLoss:        20000,
		MaxTradesPerDay:     20,
		MaxPositionSize:     2,
		VolatilitySpike:     3.0,
		CooldownAfterLosses: 3,
		CooldownDuration:    30 * time.Minute,
		RiskPerTrade:        0.02,
	}
}

// Validate checks the limits are usable
func (c RiskConfig) Validate() error {
	if c.MaxDailyLoss <= 0 {
		return fmt.Errorf("max_daily_loss must be positive, got %v", c.MaxDailyLoss)
	}
	if c.MaxTradesPerDay <= 0 {
		return fmt.Errorf("max_trades_per_day must be positive, got %d", c.MaxTradesPerDay)
	}
	if c.MaxPositionSize < 1 {
		return fmt.Errorf("max_position_size must be at least 1, got %d", c.MaxPositionSize)
	}
	if c.VolatilitySpike <= 0 {
		return fmt.Errorf("volatility_spike_threshold must be positive, got %v", c.VolatilitySpike)
	}
	if c.CooldownAfterLosses < 1 {
		return fmt.Errorf("cooldown_after_losses must be at least 1, got %d", c.CooldownAfterLosses)
	}
	if c.CooldownDuration < 0 {
		return fmt.Errorf("cooldown_duration must not be negative, got %s", c.CooldownDuration)
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		return fmt.Errorf("risk_per_trade must be in (0,1), got %v", c.RiskPerTrade)
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c RiskConfig) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
