package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
	"github.com/Shoebbirader4/Upstockbot/internal/gates"
	"github.com/Shoebbirader4/Upstockbot/internal/persistence/redisstore"
)

func newRiskCmd(a *app) *cobra.Command {
	riskCmd := &cobra.Command{
		Use:   "risk",
		Short: "Inspect and drive the daily risk gate",
		Long: `Operates on the risk gate for the current trading day. With redis enabled the
gate is restored from and saved to the state store, so counters survive across
invocations; otherwise every invocation starts a fresh day.`,
	}
	riskCmd.PersistentFlags().Bool("json", false, "Print JSON instead of a table")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daily P&L, trade count, losses and cooldown",
		RunE:  a.runRiskStatus,
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Ask whether a new trade is allowed",
		RunE:  a.runRiskCheck,
	}
	checkCmd.Flags().String("signal", "", "sell|hold|buy or 0|1|2 (required)")
	checkCmd.Flags().Float64("price", 0, "Current price")
	checkCmd.Flags().Float64("atr", 0, "Current ATR")
	checkCmd.Flags().Float64("avg-atr", 0, "Average ATR")
	_ = checkCmd.MarkFlagRequired("signal")

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Book a closed trade's P&L",
		RunE:  a.runRiskRecord,
	}
	recordCmd.Flags().Float64("pnl", 0, "Realized net P&L of the trade (required)")
	_ = recordCmd.MarkFlagRequired("pnl")

	sizeCmd := &cobra.Command{
		Use:   "size",
		Short: "Compute the position size in lots",
		RunE:  a.runRiskSize,
	}
	sizeCmd.Flags().Float64("capital", 0, "Account capital (required)")
	sizeCmd.Flags().Float64("atr", 0, "Current ATR")
	sizeCmd.Flags().Float64("risk", 0, "Risk per trade as a fraction (default risk.risk_per_trade)")
	_ = sizeCmd.MarkFlagRequired("capital")

	riskCmd.AddCommand(statusCmd, checkCmd, recordCmd, sizeCmd)
	return riskCmd
}

// openGate builds the gate and, when redis is enabled, restores today's
// snapshot. The returned store is nil when redis is disabled.
func (a *app) openGate(ctx context.Context) (*gates.RiskGate, *redisstore.Store, error) {
	gate, err := gates.NewRiskGate(a.cfg.Risk, gates.WithRiskRecorder(a.metrics))
	if err != nil {
		return nil, nil, err
	}
	if !a.cfg.Redis.Enabled {
		return gate, nil, nil
	}

	store, err := redisstore.New(a.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	restored, err := store.RestoreGate(ctx, gate)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("restore risk state: %w", err)
	}
	log.Debug().Bool("restored", restored).Msg("Risk gate opened")
	return gate, store, nil
}

func (a *app) runRiskStatus(cmd *cobra.Command, args []string) error {
	gate, store, err := a.openGate(cmd.Context())
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	return printResult(cmd, gate.Status(), statusRows(gate.Status()))
}

func (a *app) runRiskCheck(cmd *cobra.Command, args []string) error {
	rawSignal, _ := cmd.Flags().GetString("signal")
	price, _ := cmd.Flags().GetFloat64("price")
	atr, _ := cmd.Flags().GetFloat64("atr")
	avgATR, _ := cmd.Flags().GetFloat64("avg-atr")

	sig, err := market.ParseSignal(rawSignal)
	if err != nil {
		return err
	}

	gate, store, err := a.openGate(cmd.Context())
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	d := gate.CanTrade(sig, price, atr, avgATR)
	return printResult(cmd, d, [][]string{
		{"Signal", sig.String()},
		{"Allowed", fmt.Sprint(d.Allowed)},
		{"Check", string(d.Check)},
		{"Reason", d.Reason},
	})
}

func (a *app) runRiskRecord(cmd *cobra.Command, args []string) error {
	pnl, _ := cmd.Flags().GetFloat64("pnl")

	gate, store, err := a.openGate(cmd.Context())
	if err != nil {
		return err
	}
	gate.RecordTrade(pnl)

	if store != nil {
		defer store.Close()
		if err := store.SaveGate(cmd.Context(), gate); err != nil {
			return fmt.Errorf("save risk state: %w", err)
		}
	} else {
		log.Warn().Msg("Redis is disabled; recorded trade is not persisted")
	}
	return printResult(cmd, gate.Status(), statusRows(gate.Status()))
}

func (a *app) runRiskSize(cmd *cobra.Command, args []string) error {
	capital, _ := cmd.Flags().GetFloat64("capital")
	atr, _ := cmd.Flags().GetFloat64("atr")
	risk, _ := cmd.Flags().GetFloat64("risk")

	gate, err := gates.NewRiskGate(a.cfg.Risk)
	if err != nil {
		return err
	}
	lots := gate.CalculatePositionSize(capital, atr, risk)
	return printResult(cmd, map[string]int{"lots": lots}, [][]string{{"Lots", fmt.Sprint(lots)}})
}

func statusRows(st gates.Status) [][]string {
	rows := [][]string{
		{"Date", st.Date},
		{"Daily P&L", fmt.Sprintf("%.2f / -%.2f", st.DailyPnL, st.MaxDailyLoss)},
		{"Trades", fmt.Sprintf("%d / %d", st.DailyTrades, st.MaxTradesPerDay)},
		{"Consecutive Losses", fmt.Sprint(st.ConsecutiveLosses)},
		{"In Cooldown", fmt.Sprint(st.InCooldown)},
	}
	if st.CooldownUntil != nil {
		rows = append(rows, []string{"Cooldown Until", st.CooldownUntil.Format(time.RFC3339)})
	}
	if st.LastTradeTime != nil {
		rows = append(rows, []string{"Last Trade", st.LastTradeTime.Format(time.RFC3339)})
	}
	return rows
}

func printResult(cmd *cobra.Command, v any, rows [][]string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	renderKV(out, rows)
	return nil
}

func renderKV(w io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator("")
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}
