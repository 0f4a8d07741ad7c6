package perf

// Rating buckets a Sharpe ratio into the labels printed after a backtest.
func Rating(sharpe float64) string {
	switch {
	case sharpe > 2:
		return "Excellent"
	case sharpe > 1:
		return "Good"
	case sharpe > 0.5:
		return "Fair"
	default:
		return "Poor"
	}
}
