package walkforward

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// hourlyBars builds a gently oscillating hourly series
func hourlyBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 100 + 5*math.Sin(float64(i)/7)
		bars[i] = market.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

type passthroughFeatures struct {
	fitted    bool
	failAfter time.Time
}

func (f *passthroughFeatures) Fit(bars []market.Bar) error {
	f.fitted = true
	return nil
}

func (f *passthroughFeatures) Transform(bars []market.Bar) (market.Frame, error) {
	if !f.fitted {
		return market.Frame{}, errors.New("transform before fit")
	}
	if !f.failAfter.IsZero() && len(bars) > 0 && !bars[0].Timestamp.Before(f.failAfter) {
		return market.Frame{}, errors.New("feature source unavailable")
	}
	frame := market.Frame{Bars: bars, Columns: []string{"close"}}
	for _, b := range bars {
		frame.X = append(frame.X, []float64{b.Close})
		frame.Volatility = append(frame.Volatility, 1)
	}
	return frame, nil
}

// nextBarLabeler labels by the next bar's direction and drops the last row
type nextBarLabeler struct {
	panicOn time.Time
}

func (l nextBarLabeler) Label(f market.Frame) (market.Frame, error) {
	if !l.panicOn.IsZero() && f.Len() > 0 && f.Bars[0].Timestamp.Equal(l.panicOn) {
		panic("labeler blew up")
	}
	out := f.Head(f.Len() - 1)
	out.Labels = make([]market.Signal, out.Len())
	for i := range out.Labels {
		switch next := f.Bars[i+1].Close; {
		case next > f.Bars[i].Close:
			out.Labels[i] = market.Buy
		case next < f.Bars[i].Close:
			out.Labels[i] = market.Sell
		default:
			out.Labels[i] = market.Hold
		}
	}
	return out, nil
}

// constantModel always prefers one class
type constantModel struct {
	class market.Signal
}

func (m *constantModel) Fit(X [][]float64, y []market.Signal) error {
	if len(X) != len(y) {
		return errors.New("misaligned training data")
	}
	return nil
}

func (m *constantModel) PredictProba(X [][]float64) ([][market.NumClasses]float64, error) {
	out := make([][market.NumClasses]float64, len(X))
	for i := range out {
		out[i][m.class] = 1
	}
	return out, nil
}

func testCollaborators() Collaborators {
	return Collaborators{
		NewFeatureEngineer: func() FeatureEngineer { return &passthroughFeatures{} },
		NewLabeler:         func() Labeler { return nextBarLabeler{} },
		NewModel: func(p ModelParams) (Model, error) {
			if p.Type("constant") != "constant" {
				return nil, errors.New("unknown model type " + p.Type(""))
			}
			return &constantModel{class: market.Buy}, nil
		},
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.TrainWindowDays = 10
	cfg.TestWindowDays = 5
	cfg.Parallelism = 3
	return cfg
}

type foldRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *foldRecorder) ObserveFold(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestPlanFolds(t *testing.T) {
	bars := hourlyBars(24 * 31) // last bar 30 days 23 hours after the first
	windows := PlanFolds(bars, smallConfig())
	require.Len(t, windows, 4)

	for i, w := range windows {
		assert.Equal(t, i+1, w.Index)
		assert.Equal(t, w.TrainEnd, w.TestStart)
		assert.Equal(t, 10*day, w.TrainEnd.Sub(w.TrainStart))
		assert.Equal(t, 5*day, w.TestEnd.Sub(w.TestStart))
		if i > 0 {
			assert.Equal(t, windows[i-1].TestStart.Add(5*day), w.TestStart)
		}
	}
	assert.Equal(t, t0, windows[0].TrainStart)

	train, test := windows[0].Split(bars)
	assert.Len(t, train, 240)
	assert.Len(t, test, 120)
	assert.True(t, train[len(train)-1].Timestamp.Before(test[0].Timestamp))

	assert.Empty(t, PlanFolds(hourlyBars(24*12), smallConfig()))
	assert.Empty(t, PlanFolds(nil, smallConfig()))
}

func TestRun_AllFoldsComplete(t *testing.T) {
	rec := &foldRecorder{}
	opt, err := NewOptimizer(smallConfig(), engine.DefaultConfig(), testCollaborators(), WithRecorder(rec))
	require.NoError(t, err)

	report, err := opt.Run(context.Background(), hourlyBars(24*31), ModelParams{"type": "constant"})
	require.NoError(t, err)

	require.False(t, report.Empty())
	assert.Equal(t, 4, report.NFolds)
	assert.Equal(t, 4, report.PlannedFolds)
	require.Len(t, report.FoldResults, 4)
	for i, fr := range report.FoldResults {
		assert.Equal(t, i+1, fr.Index, "fold order is stable")
		assert.Equal(t, 239, fr.TrainSamples)
		assert.Equal(t, 119, fr.TestSamples)
		assert.GreaterOrEqual(t, fr.TestF1Macro, 0.0)
		assert.LessOrEqual(t, fr.TestF1Macro, 1.0)
		require.NotNil(t, fr.Backtest)
		assert.Equal(t, fr.BacktestTrades, len(fr.Backtest.Trades))
	}

	var total float64
	trades := 0
	for _, fr := range report.FoldResults {
		total += fr.BacktestPnL
		trades += fr.BacktestTrades
	}
	assert.InDelta(t, total, report.TotalBacktestPnL, 1e-6)
	assert.InDelta(t, total/4, report.AvgBacktestPnL, 1e-6)
	assert.Equal(t, trades, report.TotalTrades)
	assert.Len(t, rec.statuses, 4)
}

func TestRun_FoldFailuresAreIsolated(t *testing.T) {
	bars := hourlyBars(24 * 31)
	windows := PlanFolds(bars, smallConfig())

	collab := testCollaborators()
	collab.NewFeatureEngineer = func() FeatureEngineer {
		// test slices of the last two folds start at or after fold 3's test start
		return &passthroughFeatures{failAfter: windows[2].TestStart}
	}
	collab.NewLabeler = func() Labeler {
		return nextBarLabeler{panicOn: windows[0].TrainStart}
	}

	opt, err := NewOptimizer(smallConfig(), engine.DefaultConfig(), collab)
	require.NoError(t, err)

	report, err := opt.Run(context.Background(), bars, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.NFolds)
	assert.Equal(t, 3, report.FailedFolds)
	require.Len(t, report.FoldResults, 1)
	assert.Equal(t, 2, report.FoldResults[0].Index)

	require.Len(t, report.Outcomes, 4)
	assert.Equal(t, FoldFailed, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, "panic")
	assert.Contains(t, report.Outcomes[3].Reason, "feature source unavailable")
}

func TestRun_UnknownModelTypeFailsEveryFold(t *testing.T) {
	opt, err := NewOptimizer(smallConfig(), engine.DefaultConfig(), testCollaborators())
	require.NoError(t, err)

	report, err := opt.Run(context.Background(), hourlyBars(24*31), ModelParams{"type": "xgboost"})
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, 4, report.FailedFolds)
	assert.Empty(t, report.FoldResults)
}

func TestRun_SkipsThinFolds(t *testing.T) {
	cfg := smallConfig()
	cfg.MinTestBars = 500

	opt, err := NewOptimizer(cfg, engine.DefaultConfig(), testCollaborators())
	require.NoError(t, err)

	report, err := opt.Run(context.Background(), hourlyBars(24*31), nil)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, 4, report.SkippedFolds)
}

func TestRun_NoFolds(t *testing.T) {
	opt, err := NewOptimizer(smallConfig(), engine.DefaultConfig(), testCollaborators())
	require.NoError(t, err)

	report, err := opt.Run(context.Background(), hourlyBars(10), nil)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Zero(t, report.PlannedFolds)
}

func TestRun_Cancelled(t *testing.T) {
	opt, err := NewOptimizer(smallConfig(), engine.DefaultConfig(), testCollaborators())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = opt.Run(ctx, hourlyBars(24*31), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_UnsortedInput(t *testing.T) {
	bars := hourlyBars(24 * 31)
	reversed := make([]market.Bar, len(bars))
	for i := range bars {
		reversed[len(bars)-1-i] = bars[i]
	}

	opt, err := NewOptimizer(smallConfig(), engine.DefaultConfig(), testCollaborators())
	require.NoError(t, err)
	a, err := opt.Run(context.Background(), bars, nil)
	require.NoError(t, err)
	b, err := opt.Run(context.Background(), reversed, nil)
	require.NoError(t, err)

	assert.Equal(t, a.NFolds, b.NFolds)
	assert.InDelta(t, a.TotalBacktestPnL, b.TotalBacktestPnL, 1e-9)
}

func TestNewOptimizer_Validation(t *testing.T) {
	cfg := smallConfig()
	cfg.TestWindowDays = 0
	_, err := NewOptimizer(cfg, engine.DefaultConfig(), testCollaborators())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOptimizer(smallConfig(), engine.DefaultConfig(), Collaborators{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAggregate(t *testing.T) {
	outcomes := []FoldOutcome{
		{Status: FoldCompleted, Result: &FoldResult{Window: Window{Index: 1}, TestF1Macro: 0.4, TestAccuracy: 0.5, BacktestPnL: 100, BacktestWinRate: 0.6, BacktestSharpe: 1, BacktestTrades: 3}},
		{Status: FoldSkipped, Window: Window{Index: 2}},
		{Status: FoldCompleted, Result: &FoldResult{Window: Window{Index: 3}, TestF1Macro: 0.6, TestAccuracy: 0.7, BacktestPnL: -50, BacktestWinRate: 0.4, BacktestSharpe: -1, BacktestTrades: 2}},
		{Status: FoldFailed, Window: Window{Index: 4}},
	}

	r := Aggregate(outcomes)
	assert.Equal(t, 2, r.NFolds)
	assert.Equal(t, 1, r.SkippedFolds)
	assert.Equal(t, 1, r.FailedFolds)
	assert.InDelta(t, 0.5, r.AvgTestF1, 1e-12)
	assert.InDelta(t, math.Sqrt(0.02), r.StdTestF1, 1e-12)
	assert.InDelta(t, 0.6, r.AvgTestAccuracy, 1e-12)
	assert.InDelta(t, 50.0, r.TotalBacktestPnL, 1e-12)
	assert.InDelta(t, 25.0, r.AvgBacktestPnL, 1e-12)
	assert.InDelta(t, 0.5, r.AvgWinRate, 1e-12)
	assert.InDelta(t, 0.0, r.AvgSharpe, 1e-12)
	assert.Equal(t, 5, r.TotalTrades)
	assert.Equal(t, 3, r.FoldResults[1].Index)

	single := Aggregate(outcomes[:1])
	assert.Zero(t, single.StdTestF1, "one fold has no spread")

	assert.True(t, Aggregate(nil).Empty())
}

func TestScoring(t *testing.T) {
	yTrue := []market.Signal{market.Sell, market.Hold, market.Buy, market.Buy}
	yPred := []market.Signal{market.Sell, market.Buy, market.Buy, market.Hold}

	assert.InDelta(t, 0.5, F1Macro(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.5, Accuracy(yTrue, yPred), 1e-12)

	// classes absent from both vectors are not averaged in
	assert.InDelta(t, 1.0/3.0, F1Macro(
		[]market.Signal{market.Hold, market.Hold},
		[]market.Signal{market.Hold, market.Buy},
	), 1e-12)

	assert.Zero(t, F1Macro(nil, nil))
	assert.Zero(t, Accuracy([]market.Signal{market.Buy}, nil))
}

func TestModelParams(t *testing.T) {
	p := ModelParams{"type": "softmax", "epochs": 200, "learning_rate": 0.05}
	assert.Equal(t, "softmax", p.Type("x"))
	assert.Equal(t, "x", ModelParams{}.Type("x"))
	assert.Equal(t, 200, p.Int("epochs", 1))
	assert.Equal(t, 0.05, p.Float("learning_rate", 1))
	assert.Equal(t, 1.0, p.Float("missing", 1))
}
