package features

import (
	"errors"

	"github.com/montanaflynn/stats"
)

// ErrScalerNotFitted is returned by Transform before Fit
var ErrScalerNotFitted = errors.New("scaler is not fitted")

// RobustScaler centers each column on its median and scales by the
// interquartile range. Columns with zero spread are only centered.
type RobustScaler struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// Fit learns per-column median and IQR
func (s *RobustScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("cannot fit scaler on empty matrix")
	}
	cols := len(X[0])
	s.Center = make([]float64, cols)
	s.Scale = make([]float64, cols)

	column := make([]float64, len(X))
	for c := 0; c < cols; c++ {
		for r := range X {
			column[r] = X[r][c]
		}
		median, err := stats.Median(column)
		if err != nil {
			return err
		}
		iqr, err := stats.InterQuartileRange(column)
		if err != nil || iqr == 0 {
			iqr = 1
		}
		s.Center[c] = median
		s.Scale[c] = iqr
	}
	return nil
}

// Transform scales X in place and returns it
func (s *RobustScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Center == nil {
		return nil, ErrScalerNotFitted
	}
	for _, row := range X {
		if len(row) != len(s.Center) {
			return nil, errors.New("scaler column count mismatch")
		}
		for c := range row {
			row[c] = (row[c] - s.Center[c]) / s.Scale[c]
		}
	}
	return X, nil
}
