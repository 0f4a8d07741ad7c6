package walkforward

import (
	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// FeatureEngineer turns bars into a feature frame. Fit is called on the
// training slice only; Transform is then applied to both slices.
type FeatureEngineer interface {
	Fit(bars []market.Bar) error
	Transform(bars []market.Bar) (market.Frame, error)
}

// Labeler attaches Sell/Hold/Buy targets, possibly dropping trailing rows
type Labeler interface {
	Label(frame market.Frame) (market.Frame, error)
}

// Model is a three-class classifier over feature rows
type Model interface {
	Fit(X [][]float64, y []market.Signal) error
	PredictProba(X [][]float64) ([][market.NumClasses]float64, error)
}

// ModelParams are passed through to the model factory. The "type" key
// selects the implementation.
type ModelParams map[string]any

// Type returns the model type, or def when unset
func (p ModelParams) Type(def string) string {
	if v, ok := p["type"].(string); ok && v != "" {
		return v
	}
	return def
}

// Float returns a numeric parameter, or def when absent or not a number
func (p ModelParams) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Int returns an integer parameter, or def when absent or not a number
func (p ModelParams) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Collaborators builds fresh per-fold instances so no fitted state is shared
// between concurrently running folds.
type Collaborators struct {
	NewFeatureEngineer func() FeatureEngineer
	NewLabeler         func() Labeler
	NewModel           func(params ModelParams) (Model, error)
}

func (c Collaborators) validate() error {
	if c.NewFeatureEngineer == nil || c.NewLabeler == nil || c.NewModel == nil {
		return ErrInvalidConfig
	}
	return nil
}
