// Package artifacts writes run outputs to disk: metrics JSON, trade and
// equity CSVs, a fold JSONL stream and a markdown report.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

const (
	MetricsFile = "metrics.json"
	TradesFile  = "trades.csv"
	EquityFile  = "equity.csv"
	FoldsFile   = "folds.jsonl"
	ReportFile  = "report.md"
)

// RunMeta identifies the run an artifact set belongs to
type RunMeta struct {
	RunID     string       `json:"run_id,omitempty"`
	Source    string       `json:"source"`
	Generated time.Time    `json:"generated"`
	Alerts    []perf.Alert `json:"alerts,omitempty"`
}

// Paths lists the files a write produced
type Paths struct {
	OutputDir string   `json:"output_dir"`
	Files     []string `json:"files"`
}

// Writer handles writing run artifacts to one directory
type Writer struct {
	outputDir string
}

// NewWriter writes into outputDir, creating it on first write
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// DatedDir returns base/<kind>_YYYYMMDD_HHMMSS
func DatedDir(base, kind string, now time.Time) string {
	return filepath.Join(base, kind+"_"+now.UTC().Format("20060102_150405"))
}

// OutputDir returns the directory artifacts are written to
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// TradeRowDTO is one row of trades.csv
type TradeRowDTO struct {
	Fold       int     `csv:"fold"`
	Seq        int     `csv:"seq"`
	EntryTime  string  `csv:"entry_time"`
	ExitTime   string  `csv:"exit_time"`
	Direction  string  `csv:"direction"`
	EntryPrice float64 `csv:"entry_price"`
	ExitPrice  float64 `csv:"exit_price"`
	StopLoss   float64 `csv:"stop_loss"`
	Target     float64 `csv:"target"`
	GrossPnL   float64 `csv:"gross_pnl"`
	Cost       float64 `csv:"cost"`
	NetPnL     float64 `csv:"net_pnl"`
	Reason     string  `csv:"reason"`
}

// EquityRowDTO is one row of equity.csv
type EquityRowDTO struct {
	Timestamp string  `csv:"timestamp"`
	Equity    float64 `csv:"equity"`
	Drawdown  float64 `csv:"drawdown"`
	Position  string  `csv:"position"`
}

// TradeRows converts trades; fold is 0 for a plain backtest
func TradeRows(fold int, trades []engine.Trade) []TradeRowDTO {
	rows := make([]TradeRowDTO, len(trades))
	for i, t := range trades {
		rows[i] = TradeRowDTO{
			Fold:       fold,
			Seq:        i + 1,
			EntryTime:  t.EntryTime.Format(time.RFC3339),
			ExitTime:   t.ExitTime.Format(time.RFC3339),
			Direction:  t.Direction.String(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			StopLoss:   t.StopLoss,
			Target:     t.Target,
			GrossPnL:   t.GrossPnL,
			Cost:       t.Cost,
			NetPnL:     t.NetPnL,
			Reason:     string(t.Reason),
		}
	}
	return rows
}

// EquityRows converts an equity curve
func EquityRows(curve []engine.EquityPoint) []EquityRowDTO {
	rows := make([]EquityRowDTO, len(curve))
	for i, p := range curve {
		rows[i] = EquityRowDTO{
			Timestamp: p.Timestamp.Format(time.RFC3339),
			Equity:    p.Equity,
			Drawdown:  p.Drawdown,
			Position:  p.Position.String(),
		}
	}
	return rows
}

type backtestMetrics struct {
	RunMeta
	Outcome   engine.Outcome `json:"outcome"`
	Bars      int            `json:"bars"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Rating    string         `json:"rating"`
	Metrics   any            `json:"metrics"`
}

type walkForwardMetrics struct {
	RunMeta
	*walkforward.Report
}

// WriteBacktest writes metrics.json, trades.csv, equity.csv and report.md
func (w *Writer) WriteBacktest(meta RunMeta, res *engine.Result) (*Paths, error) {
	if res == nil {
		return nil, fmt.Errorf("no backtest result to write")
	}
	if err := w.ensureDir(); err != nil {
		return nil, err
	}
	paths := &Paths{OutputDir: w.outputDir}

	summary := backtestMetrics{
		RunMeta:   meta,
		Outcome:   res.Outcome,
		Bars:      res.Bars,
		StartTime: res.StartTime,
		EndTime:   res.EndTime,
		Rating:    rating(res),
		Metrics:   res.Metrics,
	}
	if err := w.writeJSON(MetricsFile, summary, paths); err != nil {
		return nil, err
	}
	trades := TradeRows(0, res.Trades)
	if err := w.writeCSV(TradesFile, &trades, paths); err != nil {
		return nil, err
	}
	equity := EquityRows(res.Equity)
	if err := w.writeCSV(EquityFile, &equity, paths); err != nil {
		return nil, err
	}
	if err := w.writeText(ReportFile, BacktestMarkdown(meta, res), paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// WriteWalkForward writes folds.jsonl, metrics.json, trades.csv and report.md
func (w *Writer) WriteWalkForward(meta RunMeta, rep *walkforward.Report) (*Paths, error) {
	if rep == nil {
		return nil, fmt.Errorf("no walk-forward report to write")
	}
	if err := w.ensureDir(); err != nil {
		return nil, err
	}
	paths := &Paths{OutputDir: w.outputDir}

	if err := w.writeFolds(rep, paths); err != nil {
		return nil, err
	}
	if err := w.writeJSON(MetricsFile, walkForwardMetrics{RunMeta: meta, Report: rep}, paths); err != nil {
		return nil, err
	}

	var trades []TradeRowDTO
	for _, fr := range rep.FoldResults {
		if fr.Backtest != nil {
			trades = append(trades, TradeRows(fr.Index, fr.Backtest.Trades)...)
		}
	}
	if trades == nil {
		trades = []TradeRowDTO{}
	}
	if err := w.writeCSV(TradesFile, &trades, paths); err != nil {
		return nil, err
	}
	if err := w.writeText(ReportFile, WalkForwardMarkdown(meta, rep), paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// writeFolds writes one line per planned fold in fold order
func (w *Writer) writeFolds(rep *walkforward.Report, paths *Paths) error {
	path := filepath.Join(w.outputDir, FoldsFile)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create folds file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, o := range rep.Outcomes {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("failed to write fold %d: %w", o.Window.Index, err)
		}
	}
	paths.Files = append(paths.Files, path)
	return nil
}

func (w *Writer) ensureDir() error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

func (w *Writer) writeJSON(name string, v any, paths *Paths) error {
	path := filepath.Join(w.outputDir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	paths.Files = append(paths.Files, path)
	return nil
}

func (w *Writer) writeCSV(name string, rows any, paths *Paths) error {
	path := filepath.Join(w.outputDir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	paths.Files = append(paths.Files, path)
	return nil
}

func (w *Writer) writeText(name, content string, paths *Paths) error {
	path := filepath.Join(w.outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	paths.Files = append(paths.Files, path)
	return nil
}
