package gates

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// Clock provides time for day rollover and cooldown checks
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Check names the rule that decided a CanTrade call
type Check string

const (
	CheckDailyLoss       Check = "daily_loss"
	CheckMaxTrades       Check = "max_trades"
	CheckCooldown        Check = "cooldown"
	CheckVolatilitySpike Check = "volatility_spike"
	CheckHoldSignal      Check = "hold_signal"
	CheckPassed          Check = "passed"
)

// Decision is the outcome of CanTrade
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Check   Check  `json:"check"`
}

// RiskState holds the day-scoped counters. It is exported so the gate can be
// snapshotted and restored across restarts within a trading day.
type RiskState struct {
	Date              string     `json:"date"`
	DailyPnL          float64    `json:"daily_pnl"`
	DailyTrades       int        `json:"daily_trades"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	LastTradeTime     *time.Time `json:"last_trade_time,omitempty"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
}

// Status is the read-only view of the gate
type Status struct {
	Date              string     `json:"date"`
	DailyPnL          float64    `json:"daily_pnl"`
	DailyTrades       int        `json:"daily_trades"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	InCooldown        bool       `json:"in_cooldown"`
	CooldownUntil     *time.Time `json:"cooldown_until"`
	LastTradeTime     *time.Time `json:"last_trade_time"`
	MaxDailyLoss      float64    `json:"max_daily_loss"`
	MaxTradesPerDay   int        `json:"max_trades_per_day"`
}

// RiskRecorder receives gate observations
type RiskRecorder interface {
	ObserveDecision(check string, allowed bool)
	ObserveTradeRecorded(pnl float64, cooldown bool)
}

type nopRiskRecorder struct{}

func (nopRiskRecorder) ObserveDecision(string, bool)       {}
func (nopRiskRecorder) ObserveTradeRecorded(float64, bool) {}

// RiskGate enforces daily loss, trade count, cooldown and volatility limits.
// All methods are safe for concurrent use; each holds one lock for its whole
// body so rollover and counter updates are atomic.
type RiskGate struct {
	mu       sync.Mutex
	config   RiskConfig
	loc      *time.Location
	clock    Clock
	recorder RiskRecorder
	state    RiskState
}

// RiskOption customises a RiskGate
type RiskOption func(*RiskGate)

// WithClock replaces the wall clock
func WithClock(c Clock) RiskOption {
	return func(g *RiskGate) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithRiskRecorder attaches a metrics recorder
func WithRiskRecorder(r RiskRecorder) RiskOption {
	return func(g *RiskGate) {
		if r != nil {
			g.recorder = r
		}
	}
}

// NewRiskGate creates a gate with fresh counters for the current day
func NewRiskGate(config RiskConfig, opts ...RiskOption) (*RiskGate, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	loc, _ := config.location()

	g := &RiskGate{
		config:   config,
		loc:      loc,
		clock:    systemClock{},
		recorder: nopRiskRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.state.Date = g.dateKey(g.clock.Now())
	return g, nil
}

// Config returns the configured limits
func (g *RiskGate) Config() RiskConfig {
	return g.config
}

// CanTrade decides whether a new trade may be taken. Checks run in a fixed
// precedence and the first failing one wins.
func (g *RiskGate) CanTrade(signal market.Signal, price, atr, avgATR float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.rollover(now)

	d := g.evaluate(now, signal, atr, avgATR)
	g.recorder.ObserveDecision(string(d.Check), d.Allowed)
	if !d.Allowed {
		log.Debug().Str("check", string(d.Check)).Float64("price", price).Msg(d.Reason)
	}
	return d
}

func (g *RiskGate) evaluate(now time.Time, signal market.Signal, atr, avgATR float64) Decision {
	s := &g.state

	if s.DailyPnL <= -g.config.MaxDailyLoss {
		return Decision{Reason: fmt.Sprintf("Daily loss limit reached: %.2f", s.DailyPnL), Check: CheckDailyLoss}
	}
	if s.DailyTrades >= g.config.MaxTradesPerDay {
		return Decision{Reason: fmt.Sprintf("Max trades per day reached: %d", s.DailyTrades), Check: CheckMaxTrades}
	}
	if s.CooldownUntil != nil && now.Before(*s.CooldownUntil) {
		remaining := int(s.CooldownUntil.Sub(now) / time.Minute)
		return Decision{Reason: fmt.Sprintf("In cooldown period. %d minutes remaining", remaining), Check: CheckCooldown}
	}
	if atr > avgATR*g.config.VolatilitySpike {
		return Decision{
			Reason: fmt.Sprintf("Volatility spike detected. ATR: %.2f, Avg: %.2f", atr, avgATR),
			Check:  CheckVolatilitySpike,
		}
	}
	if signal == market.Hold {
		return Decision{Reason: "Signal is Hold", Check: CheckHoldSignal}
	}
	return Decision{Allowed: true, Reason: "Trade allowed", Check: CheckPassed}
}

// CalculatePositionSize sizes a trade so that a 2×ATR stop risks riskPerTrade
// of capital, clamped to [1, MaxPositionSize] lots. riskPerTrade <= 0 uses the
// configured default, as does a non-finite one. A non-positive or non-finite
// ATR or capital sizes at the minimum.
func (g *RiskGate) CalculatePositionSize(capital, atr, riskPerTrade float64) int {
	if !(riskPerTrade > 0) || math.IsInf(riskPerTrade, 0) {
		riskPerTrade = g.config.RiskPerTrade
	}
	if !(capital > 0) || math.IsInf(capital, 0) {
		log.Warn().Float64("capital", capital).Msg("Unusable capital for position sizing, using minimum size")
		return 1
	}
	if atr <= 0 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		log.Warn().Float64("atr", atr).Msg("Unusable ATR for position sizing, using minimum size")
		return 1
	}

	raw := math.Floor(capital * riskPerTrade / (2 * atr))
	if raw > float64(g.config.MaxPositionSize) {
		return g.config.MaxPositionSize
	}
	if !(raw >= 1) {
		return 1
	}
	return int(raw)
}

// RecordTrade books a realized P&L. Losses count towards the cooldown; any
// non-negative result resets the consecutive-loss streak.
func (g *RiskGate) RecordTrade(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.rollover(now)

	s := &g.state
	s.DailyPnL += pnl
	s.DailyTrades++
	s.LastTradeTime = &now

	cooldown := false
	if pnl < 0 {
		s.ConsecutiveLosses++
		log.Warn().Int("consecutive_losses", s.ConsecutiveLosses).Msg("Loss recorded")

		if s.ConsecutiveLosses >= g.config.CooldownAfterLosses {
			until := now.Add(g.config.CooldownDuration)
			s.CooldownUntil = &until
			cooldown = true
			log.Warn().Time("cooldown_until", until).Msg("Cooldown triggered")
		}
	} else {
		s.ConsecutiveLosses = 0
	}

	g.recorder.ObserveTradeRecorded(pnl, cooldown)
	log.Info().Float64("daily_pnl", s.DailyPnL).Int("daily_trades", s.DailyTrades).Msg("Trade recorded")
}

// ShouldFlattenAll reports whether the daily loss limit has been breached
func (g *RiskGate) ShouldFlattenAll() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover(g.clock.Now())
	if g.state.DailyPnL <= -g.config.MaxDailyLoss {
		return true, "Daily loss limit breached"
	}
	return false, ""
}

// Status returns the current counters and limits
func (g *RiskGate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.rollover(now)

	s := g.state
	return Status{
		Date:              s.Date,
		DailyPnL:          s.DailyPnL,
		DailyTrades:       s.DailyTrades,
		ConsecutiveLosses: s.ConsecutiveLosses,
		InCooldown:        s.CooldownUntil != nil && now.Before(*s.CooldownUntil),
		CooldownUntil:     copyTime(s.CooldownUntil),
		LastTradeTime:     copyTime(s.LastTradeTime),
		MaxDailyLoss:      g.config.MaxDailyLoss,
		MaxTradesPerDay:   g.config.MaxTradesPerDay,
	}
}

// Snapshot returns a copy of the state for persistence
func (g *RiskGate) Snapshot() RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state
	s.CooldownUntil = copyTime(s.CooldownUntil)
	s.LastTradeTime = copyTime(s.LastTradeTime)
	return s
}

// Restore loads a persisted state. Counters from an earlier trading day are
// discarded but an unexpired cooldown is kept, matching rollover.
func (g *RiskGate) Restore(state RiskState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.dateKey(g.clock.Now())
	if state.Date != today {
		log.Info().Str("snapshot_date", state.Date).Str("today", today).Msg("Discarding stale risk snapshot counters")
		state = RiskState{
			Date:          today,
			CooldownUntil: state.CooldownUntil,
			LastTradeTime: state.LastTradeTime,
		}
	}
	state.CooldownUntil = copyTime(state.CooldownUntil)
	state.LastTradeTime = copyTime(state.LastTradeTime)
	g.state = state
}

// rollover resets daily counters when the calendar date has advanced. The
// cooldown expiry is left alone. Caller holds g.mu.
func (g *RiskGate) rollover(now time.Time) {
	today := g.dateKey(now)
	if today == g.state.Date {
		return
	}
	log.Info().Float64("previous_pnl", g.state.DailyPnL).Str("date", today).Msg("Resetting daily counters")
	g.state.Date = today
	g.state.DailyPnL = 0
	g.state.DailyTrades = 0
	g.state.ConsecutiveLosses = 0
}

func (g *RiskGate) dateKey(t time.Time) string {
	return t.In(g.loc).Format("2006-01-02")
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
