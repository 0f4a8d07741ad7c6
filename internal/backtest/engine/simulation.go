package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
)

type position struct {
	dir        Direction
	entryPrice float64
	entryTime  time.Time
	stop       float64
	target     float64
}

// simulation is the mutable state of exactly one Run
type simulation struct {
	cfg     Config
	capital float64
	pos     position
	trades  []Trade
	equity  []EquityPoint
}

func newSimulation(cfg Config, bars int) *simulation {
	return &simulation{
		cfg:     cfg,
		capital: cfg.InitialCapital,
		trades:  make([]Trade, 0),
		equity:  make([]EquityPoint, 0, bars),
	}
}

// step applies the trading rule to one bar and records its equity point
func (s *simulation) step(bar market.Bar, signal market.Signal, atr float64) {
	price := bar.Close
	execution := s.executionPrice(price, signal)

	switch s.pos.dir {
	case Flat:
		switch signal {
		case market.Buy:
			s.open(Long, execution, bar.Timestamp, atr)
		case market.Sell:
			s.open(Short, execution, bar.Timestamp, atr)
		}
	case Long:
		if signal == market.Sell {
			s.close(execution, bar.Timestamp, ReasonSignal)
		} else {
			s.checkExits(price, bar.Timestamp)
		}
	case Short:
		if signal == market.Buy {
			s.close(execution, bar.Timestamp, ReasonSignal)
		} else {
			s.checkExits(price, bar.Timestamp)
		}
	}

	s.equity = append(s.equity, EquityPoint{
		Timestamp: bar.Timestamp,
		Equity:    s.markToMarket(price),
		Position:  s.pos.dir,
	})
}

// finish force-closes any open position at the last raw close
func (s *simulation) finish(bars []market.Bar) {
	if s.pos.dir == Flat || len(bars) == 0 {
		return
	}
	last := bars[len(bars)-1]
	s.close(last.Close, last.Timestamp, ReasonEndOfBacktest)
}

// executionPrice applies slippage against the trade direction. Hold fills at
// the raw close.
func (s *simulation) executionPrice(close float64, signal market.Signal) float64 {
	switch signal {
	case market.Buy:
		return close * (1 + s.cfg.slippageRate())
	case market.Sell:
		return close * (1 - s.cfg.slippageRate())
	default:
		return close
	}
}

func (s *simulation) open(dir Direction, price float64, ts time.Time, atr float64) {
	s.pos = position{
		dir:        dir,
		entryPrice: price,
		entryTime:  ts,
	}
	stopDistance := s.cfg.StopLossATR * atr
	targetDistance := s.cfg.TargetATR * atr
	if dir == Long {
		s.pos.stop = price - stopDistance
		s.pos.target = price + targetDistance
	} else {
		s.pos.stop = price + stopDistance
		s.pos.target = price - targetDistance
	}

	log.Debug().
		Str("direction", dir.String()).
		Float64("price", price).
		Float64("stop_loss", s.pos.stop).
		Float64("target", s.pos.target).
		Msg("Opened position")
}

func (s *simulation) close(price float64, ts time.Time, reason CloseReason) {
	if s.pos.dir == Flat {
		return
	}

	gross := float64(s.pos.dir) * (price - s.pos.entryPrice)
	cost := (s.pos.entryPrice + price) * s.cfg.costRate()
	net := gross - cost
	s.capital += net

	s.trades = append(s.trades, Trade{
		EntryTime:  s.pos.entryTime,
		ExitTime:   ts,
		Direction:  s.pos.dir,
		EntryPrice: s.pos.entryPrice,
		ExitPrice:  price,
		StopLoss:   s.pos.stop,
		Target:     s.pos.target,
		GrossPnL:   gross,
		Cost:       cost,
		NetPnL:     net,
		Reason:     reason,
	})

	log.Debug().
		Str("direction", s.pos.dir.String()).
		Float64("price", price).
		Float64("net_pnl", net).
		Str("reason", string(reason)).
		Msg("Closed position")

	s.pos = position{}
}

// checkExits tests stop and target against the raw close
func (s *simulation) checkExits(price float64, ts time.Time) {
	switch s.pos.dir {
	case Long:
		if price <= s.pos.stop {
			s.close(price, ts, ReasonStopLoss)
		} else if price >= s.pos.target {
			s.close(price, ts, ReasonTarget)
		}
	case Short:
		if price >= s.pos.stop {
			s.close(price, ts, ReasonStopLoss)
		} else if price <= s.pos.target {
			s.close(price, ts, ReasonTarget)
		}
	}
}

func (s *simulation) markToMarket(price float64) float64 {
	if s.pos.dir == Flat {
		return s.capital
	}
	return s.capital + float64(s.pos.dir)*(price-s.pos.entryPrice)
}

// fillDrawdowns sets each point's drawdown from the curve's own running peak,
// the same series the metrics take their max drawdown from.
func (s *simulation) fillDrawdowns() {
	for i, dd := range perf.Drawdowns(s.equityValues()) {
		s.equity[i].Drawdown = dd
	}
}

func (s *simulation) equityValues() []float64 {
	equity := make([]float64, len(s.equity))
	for i, p := range s.equity {
		equity[i] = p.Equity
	}
	return equity
}

func (s *simulation) perfInput() perf.Input {
	outcomes := make([]perf.TradeOutcome, len(s.trades))
	for i, t := range s.trades {
		outcomes[i] = perf.TradeOutcome{GrossPnL: t.GrossPnL, NetPnL: t.NetPnL}
	}
	equity := s.equityValues()
	return perf.Input{
		InitialCapital: s.cfg.InitialCapital,
		FinalCapital:   s.capital,
		Trades:         outcomes,
		Equity:         equity,
	}
}
