package market

import "fmt"

// Frame is a feature matrix aligned row-for-row with Bars. Feature steps may
// drop warm-up rows and labelers may drop trailing rows; every populated
// column is kept at the same length as Bars.
type Frame struct {
	Bars       []Bar       `json:"-"`
	X          [][]float64 `json:"-"`
	Columns    []string    `json:"columns"`
	Volatility []float64   `json:"-"`
	Labels     []Signal    `json:"-"`
}

// Len is the row count.
func (f Frame) Len() int {
	return len(f.Bars)
}

// Validate checks row alignment of every populated column.
func (f Frame) Validate() error {
	n := len(f.Bars)
	if len(f.X) != n {
		return fmt.Errorf("frame misaligned: %d bars, %d feature rows", n, len(f.X))
	}
	if f.Volatility != nil && len(f.Volatility) != n {
		return fmt.Errorf("frame misaligned: %d bars, %d volatility values", n, len(f.Volatility))
	}
	if f.Labels != nil && len(f.Labels) != n {
		return fmt.Errorf("frame misaligned: %d bars, %d labels", n, len(f.Labels))
	}
	return nil
}

// Head keeps the first n rows of every column.
func (f Frame) Head(n int) Frame {
	if n >= f.Len() {
		return f
	}
	if n < 0 {
		n = 0
	}
	out := Frame{
		Bars:    f.Bars[:n],
		X:       f.X[:n],
		Columns: f.Columns,
	}
	if f.Volatility != nil {
		out.Volatility = f.Volatility[:n]
	}
	if f.Labels != nil {
		out.Labels = f.Labels[:n]
	}
	return out
}
