package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Shoebbirader4/Upstockbot/internal/infrastructure/db"
	httpapi "github.com/Shoebbirader4/Upstockbot/internal/interfaces/http"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the risk gate, health and metrics over HTTP",
		Long: `Starts the risk API used by the live trading loop:
  GET  /health         component health
  GET  /metrics        Prometheus metrics
  GET  /risk/status    daily counters and limits
  POST /risk/check     {"signal","price","atr","avg_atr"[,"capital"]}
  POST /risk/trades    {"pnl"}
  GET  /risk/flatten   whether open positions must be closed
  GET  /risk/size      ?capital=&atr=[&risk_per_trade=]`,
		RunE: a.runServe,
	}
	cmd.Flags().String("host", "", "Override http.host")
	cmd.Flags().Int("port", 0, "Override http.port")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	httpCfg := a.cfg.HTTP
	if cmd.Flags().Changed("host") {
		httpCfg.Host, _ = cmd.Flags().GetString("host")
	}
	overrideInt(cmd.Flags(), "port", &httpCfg.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate, store, err := a.openGate(ctx)
	if err != nil {
		return err
	}

	deps := httpapi.Deps{Gate: gate, Metrics: a.metrics, Version: version}
	if store != nil {
		defer store.Close()
		deps.Store = store
	}

	if a.cfg.Database.Enabled {
		integ, err := db.NewIntegration(a.cfg.Database)
		if err != nil {
			return err
		}
		defer integ.Close()
		deps.DB = integ.Manager().Health()
	}

	server, err := httpapi.NewServer(httpCfg, deps)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if store != nil {
		if err := store.SaveGate(shutdownCtx, gate); err != nil {
			log.Warn().Err(err).Msg("Failed to save risk state on shutdown")
		}
	}
	log.Info().Msg("Risk API stopped")
	return nil
}
