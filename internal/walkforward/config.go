// Package walkforward re-trains and evaluates a model over rolling
// train/test windows and aggregates the out-of-sample results.
package walkforward

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidConfig wraps configuration validation failures
var ErrInvalidConfig = errors.New("invalid walk-forward config")

// Config represents walk-forward configuration
type Config struct {
	TrainWindowDays int `yaml:"train_window_days"` // 60
	TestWindowDays  int `yaml:"test_window_days"`  // 15

	// Minimum bars per slice before feature processing
	MinTrainBars int `yaml:"min_train_bars"` // 100
	MinTestBars  int `yaml:"min_test_bars"`  // 20

	// Minimum rows per slice after features and labels
	MinTrainRows int `yaml:"min_train_rows"` // 50
	MinTestRows  int `yaml:"min_test_rows"`  // 10

	// Folds evaluated concurrently; 0 means one per CPU
	Parallelism int `yaml:"parallelism"`
}

// DefaultConfig returns the default window layout
func DefaultConfig() Config {
	return Config{
		TrainWindowDays: 60,
		TestWindowDays:  15,
		MinTrainBars:    100,
		MinTestBars:     20,
		MinTrainRows:    50,
		MinTestRows:     10,
		Parallelism:     1,
	}
}

// Validate checks the window layout
func (c Config) Validate() error {
	if c.TrainWindowDays <= 0 || c.TestWindowDays <= 0 {
		return fmt.Errorf("%w: train/test windows must be positive, got %d/%d",
			ErrInvalidConfig, c.TrainWindowDays, c.TestWindowDays)
	}
	if c.MinTrainBars < 0 || c.MinTestBars < 0 || c.MinTrainRows < 0 || c.MinTestRows < 0 {
		return fmt.Errorf("%w: minimum sample counts must not be negative", ErrInvalidConfig)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must not be negative, got %d", ErrInvalidConfig, c.Parallelism)
	}
	return nil
}

func (c Config) workers() int {
	if c.Parallelism == 0 {
		return runtime.NumCPU()
	}
	return c.Parallelism
}
