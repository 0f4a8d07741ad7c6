package main

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Shoebbirader4/Upstockbot/internal/config"
	applog "github.com/Shoebbirader4/Upstockbot/internal/log"
	"github.com/Shoebbirader4/Upstockbot/internal/telemetry/metrics"
)

const (
	appName = "Upstockbot"
	version = "v1.4.0"
)

// app carries state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	cfg     config.Config
	metrics *metrics.Registry
	logOut  *applog.Output
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "upstockbot",
		Short:   "Backtest, walk-forward evaluation and risk gating for intraday signals",
		Version: version,
		Long: `Upstockbot replays Sell/Hold/Buy signals against OHLCV bars with ATR stops and
targets, re-trains a classifier over rolling walk-forward windows, and serves the
daily risk gate that a live trading loop consults before every order.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.logOut.Close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", config.DefaultPath, "Path to config YAML")
	pf.String("secrets", config.DefaultSecretsPath, "Path to secrets env file")
	pf.String("log-level", "", "Override logging.level (debug|info|warn|error)")
	pf.String("log-format", "", "Override logging.format (auto|console|json)")

	rootCmd.AddCommand(
		newBacktestCmd(a),
		newWalkForwardCmd(a),
		newRiskCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

// setup loads config, applies logging overrides and installs the logger
func (a *app) setup(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	secretsPath, _ := cmd.Flags().GetString("secrets")

	cfg, err := config.Load(configPath, secretsPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
	}

	out, err := applog.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	a.cfg = cfg
	a.logOut = out
	a.metrics = metrics.NewRegistry()

	log.Debug().
		Str("app", appName).
		Str("version", version).
		Str("config", configPath).
		Str("command", cmd.CommandPath()).
		Msg("Configuration loaded")
	return nil
}
