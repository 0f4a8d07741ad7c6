package walkforward

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// FoldStatus classifies how a fold ended
type FoldStatus string

const (
	FoldCompleted FoldStatus = "completed"
	FoldSkipped   FoldStatus = "skipped"
	FoldFailed    FoldStatus = "failed"
)

// FoldResult is the record of one completed fold
type FoldResult struct {
	Window
	TrainSamples    int     `json:"train_samples"`
	TestSamples     int     `json:"test_samples"`
	TestF1Macro     float64 `json:"test_f1_macro"`
	TestAccuracy    float64 `json:"test_accuracy"`
	BacktestPnL     float64 `json:"backtest_pnl"`
	BacktestWinRate float64 `json:"backtest_win_rate"`
	BacktestSharpe  float64 `json:"backtest_sharpe"`
	BacktestTrades  int     `json:"backtest_trades"`

	Backtest *engine.Result `json:"-"`
}

// FoldOutcome is the per-fold result the optimizer reduces over. Result is
// set only when Status is FoldCompleted.
type FoldOutcome struct {
	Window Window      `json:"window"`
	Status FoldStatus  `json:"status"`
	Reason string      `json:"reason,omitempty"`
	Result *FoldResult `json:"result,omitempty"`
}

// Recorder receives fold observations
type Recorder interface {
	ObserveFold(status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFold(string, time.Duration) {}

// Optimizer runs walk-forward analysis
type Optimizer struct {
	config       Config
	engineConfig engine.Config
	collab       Collaborators
	recorder     Recorder
	engineOpts   []engine.Option
}

// Option customises an Optimizer
type Option func(*Optimizer)

// WithRecorder attaches a fold metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *Optimizer) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithEngineOptions passes options to every per-fold backtest engine
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *Optimizer) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// NewOptimizer creates an optimizer
func NewOptimizer(config Config, engineConfig engine.Config, collab Collaborators, opts ...Option) (*Optimizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := engineConfig.Validate(); err != nil {
		return nil, fmt.Errorf("%w: backtest: %v", ErrInvalidConfig, err)
	}
	if err := collab.validate(); err != nil {
		return nil, fmt.Errorf("%w: feature engineer, labeler and model factories are required", err)
	}

	o := &Optimizer{
		config:       config,
		engineConfig: engineConfig,
		collab:       collab,
		recorder:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run evaluates every fold and aggregates the completed ones. Fold failures
// are logged and skipped; only cancellation of ctx aborts the run.
func (o *Optimizer) Run(ctx context.Context, bars []market.Bar, params ModelParams) (*Report, error) {
	sorted := make([]market.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	windows := PlanFolds(sorted, o.config)
	log.Info().
		Int("train_window_days", o.config.TrainWindowDays).
		Int("test_window_days", o.config.TestWindowDays).
		Int("bars", len(sorted)).
		Int("folds", len(windows)).
		Msg("Starting walk-forward optimization")

	outcomes := make([]FoldOutcome, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.workers())
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			outcomes[i] = o.runFold(w, sorted, params)
			o.recorder.ObserveFold(string(outcomes[i].Status), time.Since(started))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("walk-forward cancelled: %w", err)
	}

	report := Aggregate(outcomes)
	report.log()
	return report, nil
}

// runFold never returns an error; failures become a FoldFailed outcome.
func (o *Optimizer) runFold(w Window, bars []market.Bar, params ModelParams) (out FoldOutcome) {
	out = FoldOutcome{Window: w}
	defer func() {
		if r := recover(); r != nil {
			out = FoldOutcome{Window: w, Status: FoldFailed, Reason: fmt.Sprintf("panic: %v", r)}
			log.Error().Int("fold", w.Index).Interface("panic", r).Msg("Fold panicked")
		}
	}()

	train, test := w.Split(bars)
	if len(train) < o.config.MinTrainBars || len(test) < o.config.MinTestBars {
		log.Warn().Int("fold", w.Index).Int("train", len(train)).Int("test", len(test)).
			Msg("Insufficient data for fold, skipping")
		return FoldOutcome{Window: w, Status: FoldSkipped, Reason: "insufficient bars"}
	}

	log.Info().
		Int("fold", w.Index).
		Time("train_start", w.TrainStart).Time("train_end", w.TrainEnd).Int("train_bars", len(train)).
		Time("test_start", w.TestStart).Time("test_end", w.TestEnd).Int("test_bars", len(test)).
		Msg("Fold windows")

	result, skipped, err := o.evaluate(w, train, test, params)
	switch {
	case err != nil:
		log.Error().Err(err).Int("fold", w.Index).Msg("Error in fold")
		return FoldOutcome{Window: w, Status: FoldFailed, Reason: err.Error()}
	case skipped != "":
		log.Warn().Int("fold", w.Index).Msg("Insufficient data after processing, skipping fold")
		return FoldOutcome{Window: w, Status: FoldSkipped, Reason: skipped}
	}

	log.Info().
		Int("fold", w.Index).
		Float64("test_f1", result.TestF1Macro).
		Float64("accuracy", result.TestAccuracy).
		Float64("backtest_pnl", result.BacktestPnL).
		Float64("win_rate", result.BacktestWinRate).
		Msg("Fold results")
	return FoldOutcome{Window: w, Status: FoldCompleted, Result: result}
}

func (o *Optimizer) evaluate(w Window, train, test []market.Bar, params ModelParams) (*FoldResult, string, error) {
	fe := o.collab.NewFeatureEngineer()
	if err := fe.Fit(train); err != nil {
		return nil, "", fmt.Errorf("fit features: %w", err)
	}
	trainFrame, err := fe.Transform(train)
	if err != nil {
		return nil, "", fmt.Errorf("transform train: %w", err)
	}
	testFrame, err := fe.Transform(test)
	if err != nil {
		return nil, "", fmt.Errorf("transform test: %w", err)
	}

	labeler := o.collab.NewLabeler()
	if trainFrame, err = labeler.Label(trainFrame); err != nil {
		return nil, "", fmt.Errorf("label train: %w", err)
	}
	if testFrame, err = labeler.Label(testFrame); err != nil {
		return nil, "", fmt.Errorf("label test: %w", err)
	}
	for name, f := range map[string]market.Frame{"train": trainFrame, "test": testFrame} {
		if err := f.Validate(); err != nil {
			return nil, "", fmt.Errorf("%s frame: %w", name, err)
		}
		if len(f.Labels) != f.Len() {
			return nil, "", fmt.Errorf("%s frame has %d labels for %d rows", name, len(f.Labels), f.Len())
		}
	}

	if trainFrame.Len() < o.config.MinTrainRows || testFrame.Len() < o.config.MinTestRows {
		return nil, "insufficient rows after processing", nil
	}

	model, err := o.collab.NewModel(params)
	if err != nil {
		return nil, "", fmt.Errorf("build model: %w", err)
	}
	if err := model.Fit(trainFrame.X, trainFrame.Labels); err != nil {
		return nil, "", fmt.Errorf("train model: %w", err)
	}
	proba, err := model.PredictProba(testFrame.X)
	if err != nil {
		return nil, "", fmt.Errorf("predict: %w", err)
	}
	if len(proba) != testFrame.Len() {
		return nil, "", fmt.Errorf("model returned %d predictions for %d rows", len(proba), testFrame.Len())
	}

	predicted := make([]market.Signal, len(proba))
	for i, p := range proba {
		predicted[i] = market.SignalFromProba(p)
	}

	bt, err := engine.New(o.engineConfig, o.engineOpts...).Run(testFrame.Bars, predicted, testFrame.Volatility)
	if err != nil {
		return nil, "", fmt.Errorf("backtest: %w", err)
	}

	m := bt.Metrics
	return &FoldResult{
		Window:          w,
		TrainSamples:    trainFrame.Len(),
		TestSamples:     testFrame.Len(),
		TestF1Macro:     F1Macro(testFrame.Labels, predicted),
		TestAccuracy:    Accuracy(testFrame.Labels, predicted),
		BacktestPnL:     m.NetPnL,
		BacktestWinRate: m.WinRate,
		BacktestSharpe:  m.Sharpe,
		BacktestTrades:  m.TotalTrades,
		Backtest:        bt,
	}, "", nil
}
