package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Shoebbirader4/Upstockbot/internal/data/bars"
	"github.com/Shoebbirader4/Upstockbot/internal/infrastructure/db"
	applog "github.com/Shoebbirader4/Upstockbot/internal/log"
	"github.com/Shoebbirader4/Upstockbot/internal/report/artifacts"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

func newWalkForwardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "walkforward",
		Aliases: []string{"wf"},
		Short:   "Re-train and evaluate the model over rolling windows",
		Long: `Slices the bar history into rolling train/test windows, fits features and
the classifier on each training window, scores predictions on the following
test window and backtests them. Folds that lack data are skipped.`,
		RunE: a.runWalkForward,
	}

	f := cmd.Flags()
	f.String("data", "", "CSV of bars with timestamp,open,high,low,close,volume[,atr] (required)")
	f.String("output", "out", "Artifacts base directory")
	f.Bool("no-artifacts", false, "Skip writing artifacts")
	f.Int("train-days", 0, "Override walk_forward.train_window_days")
	f.Int("test-days", 0, "Override walk_forward.test_window_days")
	f.Int("parallel", 0, "Override walk_forward.parallelism (0 = one per CPU)")
	f.String("model", "", "Override model.type")
	f.String("progress", "auto", "Fold progress output (auto|plain|none)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) runWalkForward(cmd *cobra.Command, args []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	outputDir, _ := cmd.Flags().GetString("output")
	noArtifacts, _ := cmd.Flags().GetBool("no-artifacts")
	progressMode, _ := cmd.Flags().GetString("progress")

	cfg := a.cfg.WalkForward
	overrideInt(cmd.Flags(), "train-days", &cfg.TrainWindowDays)
	overrideInt(cmd.Flags(), "test-days", &cfg.TestWindowDays)
	overrideInt(cmd.Flags(), "parallel", &cfg.Parallelism)

	params := walkforward.ModelParams{}
	for k, v := range a.cfg.Model {
		params[k] = v
	}
	if cmd.Flags().Changed("model") {
		params["type"], _ = cmd.Flags().GetString("model")
	}

	load := a.metrics.StartStepTimer("load_bars")
	series, err := bars.LoadFile(dataPath)
	if err != nil {
		load.Stop("error")
		return err
	}
	load.Stop("ok")

	progress := applog.NewProgressIndicator(cmd.ErrOrStderr(), "walk-forward",
		len(walkforward.PlanFolds(series.Bars, cfg)), showProgress(progressMode))

	optimizer, err := walkforward.NewOptimizer(cfg, a.cfg.Backtest, collaborators(a.cfg),
		walkforward.WithRecorder(foldRecorders{a.metrics, progress}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := optimizer.Run(ctx, series.Bars, params)
	progress.Finish()
	if err != nil {
		return err
	}

	runID, err := a.persist(ctx, func(ctx context.Context, integ *db.Integration) (string, error) {
		return integ.SaveWalkForward(ctx, dataPath, report)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Walk-forward result not persisted")
	}

	out := cmd.OutOrStdout()
	artifacts.RenderWalkForwardSummary(out, report)

	if noArtifacts {
		return nil
	}
	now := time.Now()
	w := artifacts.NewWriter(artifacts.DatedDir(outputDir, "walkforward", now))
	paths, err := w.WriteWalkForward(artifacts.RunMeta{RunID: runID, Source: filepath.Base(dataPath), Generated: now}, report)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Artifacts: %s\n", paths.OutputDir)
	return nil
}

func showProgress(mode string) bool {
	switch mode {
	case "plain":
		return true
	case "none":
		return false
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}
