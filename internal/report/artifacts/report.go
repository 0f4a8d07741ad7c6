package artifacts

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

func rating(res *engine.Result) string {
	if !res.HasTrades() {
		return "n/a"
	}
	return perf.Rating(res.Metrics.Sharpe)
}

// BacktestMarkdown renders the backtest report
func BacktestMarkdown(meta RunMeta, res *engine.Result) string {
	var b strings.Builder
	m := res.Metrics

	b.WriteString("# Backtest Report\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", meta.Generated.UTC().Format("2006-01-02 15:04:05 UTC"))
	if meta.RunID != "" {
		fmt.Fprintf(&b, "**Run**: `%s`\n", meta.RunID)
	}
	fmt.Fprintf(&b, "**Source**: `%s`\n", meta.Source)
	if res.Bars > 0 {
		fmt.Fprintf(&b, "**Period**: %s to %s (%d bars)\n",
			res.StartTime.Format("2006-01-02 15:04"), res.EndTime.Format("2006-01-02 15:04"), res.Bars)
	}
	fmt.Fprintf(&b, "**Outcome**: %s\n\n", res.Outcome)

	if !res.HasTrades() {
		b.WriteString("No trades were closed; performance metrics are zero.\n\n")
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|------:|\n")
	for _, row := range backtestRows(res) {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
	}
	b.WriteString("\n")

	if len(res.Trades) > 0 {
		b.WriteString("## Exit Reasons\n\n")
		b.WriteString("| Reason | Trades | Net P&L |\n")
		b.WriteString("|--------|-------:|--------:|\n")
		for _, r := range exitReasons(res.Trades) {
			fmt.Fprintf(&b, "| %s | %d | %.2f |\n", r.reason, r.count, r.pnl)
		}
		b.WriteString("\n")
	}

	if len(meta.Alerts) > 0 {
		b.WriteString("## Alerts\n\n")
		for _, a := range meta.Alerts {
			fmt.Fprintf(&b, "- **%s** %s\n", a.Severity, a.Message)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Capital\n\n")
	fmt.Fprintf(&b, "- **Initial**: %.2f\n", m.InitialCapital)
	fmt.Fprintf(&b, "- **Final**: %.2f\n", m.FinalCapital)
	fmt.Fprintf(&b, "- **Max Drawdown**: %.2f (%.2f%%)\n\n", m.MaxDrawdown, m.MaxDrawdownPct)

	b.WriteString("## Artifact Files\n\n")
	for _, f := range []string{MetricsFile, TradesFile, EquityFile, ReportFile} {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}
	return b.String()
}

// WalkForwardMarkdown renders the walk-forward report
func WalkForwardMarkdown(meta RunMeta, rep *walkforward.Report) string {
	var b strings.Builder

	b.WriteString("# Walk-Forward Report\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", meta.Generated.UTC().Format("2006-01-02 15:04:05 UTC"))
	if meta.RunID != "" {
		fmt.Fprintf(&b, "**Run**: `%s`\n", meta.RunID)
	}
	fmt.Fprintf(&b, "**Source**: `%s`\n", meta.Source)
	fmt.Fprintf(&b, "**Folds**: %d planned, %d completed, %d skipped, %d failed\n\n",
		rep.PlannedFolds, rep.NFolds, rep.SkippedFolds, rep.FailedFolds)

	if rep.Empty() {
		b.WriteString("No successful folds completed.\n\n")
	} else {
		b.WriteString("## Aggregate\n\n")
		b.WriteString("| Metric | Value |\n")
		b.WriteString("|--------|------:|\n")
		for _, row := range aggregateRows(rep) {
			fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
		}
		b.WriteString("\n")
	}

	if len(rep.Outcomes) > 0 {
		b.WriteString("## Folds\n\n")
		b.WriteString("| Fold | Test Window | Status | F1 | Accuracy | P&L | Trades |\n")
		b.WriteString("|-----:|-------------|--------|---:|---------:|----:|-------:|\n")
		for _, row := range foldRows(rep) {
			fmt.Fprintf(&b, "| %s |\n", strings.Join(row, " | "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Artifact Files\n\n")
	for _, f := range []string{FoldsFile, MetricsFile, TradesFile, ReportFile} {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}
	return b.String()
}

// RenderBacktestSummary prints the console summary table
func RenderBacktestSummary(w io.Writer, res *engine.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoWrapText(false)
	table.AppendBulk(backtestRows(res))
	table.Render()
}

// RenderWalkForwardSummary prints the per-fold and aggregate tables
func RenderWalkForwardSummary(w io.Writer, rep *walkforward.Report) {
	folds := tablewriter.NewWriter(w)
	folds.SetHeader([]string{"Fold", "Test Window", "Status", "F1", "Accuracy", "P&L", "Trades"})
	folds.SetAutoWrapText(false)
	folds.AppendBulk(foldRows(rep))
	folds.Render()

	if rep.Empty() {
		fmt.Fprintln(w, "No successful folds completed")
		return
	}
	agg := tablewriter.NewWriter(w)
	agg.SetHeader([]string{"Aggregate", "Value"})
	agg.SetAlignment(tablewriter.ALIGN_RIGHT)
	agg.AppendBulk(aggregateRows(rep))
	agg.Render()
}

func backtestRows(res *engine.Result) [][]string {
	m := res.Metrics
	return [][]string{
		{"Total Trades", fmt.Sprint(m.TotalTrades)},
		{"Win Rate", fmt.Sprintf("%.2f%%", m.WinRate*100)},
		{"Net P&L", fmt.Sprintf("%.2f", m.NetPnL)},
		{"Total Return", fmt.Sprintf("%.2f%%", m.TotalReturnPct)},
		{"Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Expectancy", fmt.Sprintf("%.2f", m.Expectancy)},
		{"Sharpe", fmt.Sprintf("%.2f", m.Sharpe)},
		{"Sortino", fmt.Sprintf("%.2f", m.Sortino)},
		{"Calmar", fmt.Sprintf("%.2f", m.Calmar)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdownPct)},
		{"Final Capital", fmt.Sprintf("%.2f", m.FinalCapital)},
		{"Rating", rating(res)},
	}
}

func aggregateRows(rep *walkforward.Report) [][]string {
	return [][]string{
		{"Completed Folds", fmt.Sprintf("%d/%d", rep.NFolds, rep.PlannedFolds)},
		{"Avg Test F1", fmt.Sprintf("%.4f ± %.4f", rep.AvgTestF1, rep.StdTestF1)},
		{"Avg Test Accuracy", fmt.Sprintf("%.4f", rep.AvgTestAccuracy)},
		{"Avg Backtest P&L", fmt.Sprintf("%.2f", rep.AvgBacktestPnL)},
		{"Total Backtest P&L", fmt.Sprintf("%.2f", rep.TotalBacktestPnL)},
		{"Avg Win Rate", fmt.Sprintf("%.2f%%", rep.AvgWinRate*100)},
		{"Avg Sharpe", fmt.Sprintf("%.2f", rep.AvgSharpe)},
		{"Total Trades", fmt.Sprint(rep.TotalTrades)},
	}
}

func foldRows(rep *walkforward.Report) [][]string {
	rows := make([][]string, 0, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		window := o.Window.TestStart.Format("2006-01-02") + " → " + o.Window.TestEnd.Format("2006-01-02")
		row := []string{fmt.Sprint(o.Window.Index), window, string(o.Status), "-", "-", "-", "-"}
		if o.Result != nil {
			row[3] = fmt.Sprintf("%.4f", o.Result.TestF1Macro)
			row[4] = fmt.Sprintf("%.4f", o.Result.TestAccuracy)
			row[5] = fmt.Sprintf("%.2f", o.Result.BacktestPnL)
			row[6] = fmt.Sprint(o.Result.BacktestTrades)
		} else if o.Reason != "" {
			row[2] = string(o.Status) + ": " + o.Reason
		}
		rows = append(rows, row)
	}
	return rows
}

type reasonStat struct {
	reason string
	count  int
	pnl    float64
}

func exitReasons(trades []engine.Trade) []reasonStat {
	byReason := map[engine.CloseReason]*reasonStat{}
	for _, t := range trades {
		s, ok := byReason[t.Reason]
		if !ok {
			s = &reasonStat{reason: string(t.Reason)}
			byReason[t.Reason] = s
		}
		s.count++
		s.pnl += t.NetPnL
	}
	out := make([]reasonStat, 0, len(byReason))
	for _, s := range byReason {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].reason < out[j].reason
	})
	return out
}
