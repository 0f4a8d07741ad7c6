package walkforward

import (
	"time"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

const day = 24 * time.Hour

// Window is the time layout of one fold. Slices are half-open [start, end).
type Window struct {
	Index      int       `json:"fold"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// PlanFolds lays out the rolling windows over sorted bars. The fold count is
// (total_days - train_days) / test_days using whole elapsed days; each fold's
// train window starts one test window later than the previous one.
func PlanFolds(bars []market.Bar, cfg Config) []Window {
	if len(bars) == 0 || cfg.TestWindowDays <= 0 {
		return nil
	}
	first, last := market.Span(bars)
	totalDays := int(last.Sub(first) / day)
	n := (totalDays - cfg.TrainWindowDays) / cfg.TestWindowDays
	if n <= 0 {
		return nil
	}

	train := time.Duration(cfg.TrainWindowDays) * day
	test := time.Duration(cfg.TestWindowDays) * day
	windows := make([]Window, n)
	for f := 0; f < n; f++ {
		trainStart := first.Add(time.Duration(f) * test)
		trainEnd := trainStart.Add(train)
		windows[f] = Window{
			Index:      f + 1,
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    trainEnd.Add(test),
		}
	}
	return windows
}

// Split returns the train and test slices of bars for w
func (w Window) Split(bars []market.Bar) (train, test []market.Bar) {
	return market.Slice(bars, w.TrainStart, w.TrainEnd), market.Slice(bars, w.TestStart, w.TestEnd)
}
