// Package metrics exposes Prometheus metrics for backtests, walk-forward
// folds, risk decisions and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

const namespace = "upstockbot"

// Registry holds all Prometheus metrics. It satisfies the recorder
// interfaces of the backtest engine, the walk-forward optimizer and the risk
// gate.
type Registry struct {
	reg *prometheus.Registry

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Backtest metrics
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration *prometheus.HistogramVec
	BacktestBars     prometheus.Histogram
	TradesClosed     *prometheus.CounterVec
	TradeNetPnL      prometheus.Histogram

	// Walk-forward metrics
	Folds        *prometheus.CounterVec
	FoldDuration *prometheus.HistogramVec

	// Risk gate metrics
	RiskDecisions   *prometheus.CounterVec
	RiskAllowRatio  prometheus.Gauge
	RiskTrades      *prometheus.CounterVec
	RiskCooldowns   prometheus.Counter
	RiskRecordedPnL prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with every metric registered on its own
// prometheus.Registry, plus the Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of each CLI pipeline step in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"step", "result"},
		),

		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_runs_total",
				Help:      "Backtest runs by outcome",
			},
			[]string{"outcome"},
		),

		BacktestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backtest_duration_seconds",
				Help:      "Wall time of a single backtest run",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"outcome"},
		),

		BacktestBars: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backtest_bars",
				Help:      "Bars simulated per backtest run",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),

		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_trades_total",
				Help:      "Simulated trades closed by reason",
			},
			[]string{"reason"},
		),

		TradeNetPnL: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backtest_trade_net_pnl",
				Help:      "Net P&L per simulated trade",
				Buckets:   []float64{-500, -200, -100, -50, -20, -5, 0, 5, 20, 50, 100, 200, 500},
			},
		),

		Folds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "walkforward_folds_total",
				Help:      "Walk-forward folds by status",
			},
			[]string{"status"},
		),

		FoldDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "walkforward_fold_duration_seconds",
				Help:      "Wall time per walk-forward fold",
				Buckets:   prometheus.ExponentialBuckets(0.01, 3, 9),
			},
			[]string{"status"},
		),

		RiskDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_decisions_total",
				Help:      "Risk gate decisions by deciding check",
			},
			[]string{"check", "allowed"},
		),

		RiskAllowRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "risk_allow_ratio",
				Help:      "Share of risk checks that allowed a trade (0.0 to 1.0)",
			},
		),

		RiskTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_recorded_trades_total",
				Help:      "Trades booked against the risk gate by result",
			},
			[]string{"result"},
		),

		RiskCooldowns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_cooldowns_total",
				Help:      "Cooldown windows opened after consecutive losses",
			},
		),

		RiskRecordedPnL: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_recorded_loss_total",
				Help:      "Absolute realized loss booked against the risk gate",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "method", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	r.reg.MustRegister(
		r.StepDuration,
		r.BacktestRuns,
		r.BacktestDuration,
		r.BacktestBars,
		r.TradesClosed,
		r.TradeNetPnL,
		r.Folds,
		r.FoldDuration,
		r.RiskDecisions,
		r.RiskAllowRatio,
		r.RiskTrades,
		r.RiskCooldowns,
		r.RiskRecordedPnL,
		r.HTTPRequests,
		r.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Gatherer exposes the underlying registry for tests and custom handlers
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for Prometheus metrics
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// StepTimer tracks execution time for CLI steps
type StepTimer struct {
	registry *Registry
	step     string
	start    time.Time
}

// StartStepTimer begins timing a step
func (r *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		registry: r,
		step:     step,
		start:    time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.registry.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Step completed")
}

// ObserveRun records one backtest run
func (r *Registry) ObserveRun(outcome string, bars int, duration time.Duration) {
	r.BacktestRuns.WithLabelValues(outcome).Inc()
	r.BacktestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	r.BacktestBars.Observe(float64(bars))
}

// ObserveTrade records one simulated trade
func (r *Registry) ObserveTrade(reason string, netPnL float64) {
	r.TradesClosed.WithLabelValues(reason).Inc()
	r.TradeNetPnL.Observe(netPnL)
}

// ObserveFold records one walk-forward fold
func (r *Registry) ObserveFold(status string, duration time.Duration) {
	r.Folds.WithLabelValues(status).Inc()
	r.FoldDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveDecision records one risk gate decision
func (r *Registry) ObserveDecision(check string, allowed bool) {
	r.RiskDecisions.WithLabelValues(check, strconv.FormatBool(allowed)).Inc()
	r.updateAllowRatio()
}

// ObserveTradeRecorded records one realized trade booked against the gate
func (r *Registry) ObserveTradeRecorded(pnl float64, cooldown bool) {
	result := "win"
	if pnl < 0 {
		result = "loss"
		r.RiskRecordedPnL.Add(-pnl)
	}
	r.RiskTrades.WithLabelValues(result).Inc()
	if cooldown {
		r.RiskCooldowns.Inc()
	}
}

// ObserveHTTP records one served request
func (r *Registry) ObserveHTTP(route, method string, code int, duration time.Duration) {
	r.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	r.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// riskChecks lists the decision series the allow ratio is computed over
var riskChecks = map[string]string{
	"passed":           "true",
	"daily_loss":       "false",
	"max_trades":       "false",
	"cooldown":         "false",
	"volatility_spike": "false",
	"hold_signal":      "false",
}

// updateAllowRatio recomputes the allow ratio from the decision counters
func (r *Registry) updateAllowRatio() {
	metric := &io_prometheus_client.Metric{}

	var allowed, total float64
	for check, allowedLabel := range riskChecks {
		counter, err := r.RiskDecisions.GetMetricWithLabelValues(check, allowedLabel)
		if err != nil {
			continue
		}
		if err := counter.Write(metric); err != nil {
			continue
		}
		v := metric.GetCounter().GetValue()
		total += v
		if labelValue(metric, "allowed") == "true" {
			allowed += v
		}
	}
	if total > 0 {
		r.RiskAllowRatio.Set(allowed / total)
	}
}

func labelValue(m *io_prometheus_client.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
