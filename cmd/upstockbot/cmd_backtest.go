package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/data/bars"
	"github.com/Shoebbirader4/Upstockbot/internal/infrastructure/db"
	"github.com/Shoebbirader4/Upstockbot/internal/report/artifacts"
	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
)

func newBacktestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a signal series against bars",
		Long: `Simulates one position at a time over a CSV of bars with a signal column
(0/1/2 or sell/hold/buy), applying ATR stop-loss and target exits, slippage on
signal fills and transaction costs on both legs.`,
		RunE: a.runBacktest,
	}

	f := cmd.Flags()
	f.String("data", "", "CSV of bars with timestamp,open,high,low,close,volume[,atr],signal (required)")
	f.String("output", "out", "Artifacts base directory")
	f.Bool("no-artifacts", false, "Skip writing artifacts")
	f.Float64("initial-capital", 0, "Override backtest.initial_capital")
	f.Float64("cost-bps", 0, "Override backtest.transaction_cost_bps")
	f.Float64("slippage-bps", 0, "Override backtest.slippage_bps")
	f.Float64("stop-atr", 0, "Override backtest.stop_loss_atr")
	f.Float64("target-atr", 0, "Override backtest.target_atr")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) runBacktest(cmd *cobra.Command, args []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	outputDir, _ := cmd.Flags().GetString("output")
	noArtifacts, _ := cmd.Flags().GetBool("no-artifacts")

	cfg := a.cfg.Backtest
	overrideFloat(cmd.Flags(), "initial-capital", &cfg.InitialCapital)
	overrideFloat(cmd.Flags(), "cost-bps", &cfg.TransactionCostBps)
	overrideFloat(cmd.Flags(), "slippage-bps", &cfg.SlippageBps)
	overrideFloat(cmd.Flags(), "stop-atr", &cfg.StopLossATR)
	overrideFloat(cmd.Flags(), "target-atr", &cfg.TargetATR)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("backtest config: %w", err)
	}

	load := a.metrics.StartStepTimer("load_bars")
	series, err := bars.LoadFile(dataPath)
	if err != nil {
		load.Stop("error")
		return err
	}
	load.Stop("ok")
	if !series.HasSignals() {
		return fmt.Errorf("%s has no signal column", dataPath)
	}

	log.Info().
		Str("data", dataPath).
		Int("bars", len(series.Bars)).
		Float64("initial_capital", cfg.InitialCapital).
		Float64("cost_bps", cfg.TransactionCostBps).
		Float64("slippage_bps", cfg.SlippageBps).
		Msg("Starting backtest")

	res, err := engine.New(cfg, engine.WithRecorder(a.metrics)).Run(series.Bars, series.Signals, nil)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	runID, err := a.persist(cmd.Context(), func(ctx context.Context, integ *db.Integration) (string, error) {
		return integ.SaveBacktest(ctx, dataPath, res)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Backtest result not persisted")
	}

	out := cmd.OutOrStdout()
	artifacts.RenderBacktestSummary(out, res)
	if res.HasTrades() {
		fmt.Fprintf(out, "Performance rating: %s\n", perf.Rating(res.Metrics.Sharpe))
	} else {
		fmt.Fprintf(out, "No trades closed (%s)\n", res.Outcome)
	}

	alerts := perf.NewAlertChecker(a.cfg.Alerts).Check(res.Metrics)
	for _, al := range alerts {
		log.Warn().Str("metric", al.Metric).Float64("value", al.Value).Float64("threshold", al.Threshold).Msg(al.Message)
		fmt.Fprintf(out, "[%s] %s\n", al.Severity, al.Message)
	}

	if noArtifacts {
		return nil
	}
	now := time.Now()
	w := artifacts.NewWriter(artifacts.DatedDir(outputDir, "backtest", now))
	paths, err := w.WriteBacktest(artifacts.RunMeta{
		RunID:     runID,
		Source:    filepath.Base(dataPath),
		Generated: now,
		Alerts:    alerts,
	}, res)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Artifacts: %s\n", paths.OutputDir)
	return nil
}

// persist runs save against the configured database. A disabled database
// returns an empty run id and no error.
func (a *app) persist(ctx context.Context, save func(context.Context, *db.Integration) (string, error)) (string, error) {
	if !a.cfg.Database.Enabled {
		return "", nil
	}
	integ, err := db.NewIntegration(a.cfg.Database)
	if err != nil {
		return "", err
	}
	defer integ.Close()

	runID, err := save(ctx, integ)
	if err != nil {
		return "", err
	}
	log.Info().Str("run_id", runID).Msg("Run persisted")
	return runID, nil
}

// overrideFloat copies an explicitly set flag over a config value
func overrideFloat(flags *pflag.FlagSet, name string, dst *float64) {
	if flags.Changed(name) {
		*dst, _ = flags.GetFloat64(name)
	}
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt(name)
	}
}
