// Package model provides the three-class classifier used by walk-forward.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

const TypeSoftmax = "softmax"

var (
	// ErrUnknownType is returned for an unsupported model type
	ErrUnknownType = errors.New("unknown model type")
	// ErrNotFitted is returned by PredictProba before Fit
	ErrNotFitted = errors.New("model is not fitted")
)

// SoftmaxConfig holds training hyperparameters
type SoftmaxConfig struct {
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"` // 0.1
	Epochs       int     `yaml:"epochs" json:"epochs"`               // 300
	L2           float64 `yaml:"l2" json:"l2"`                       // 1e-4
	ClassWeights bool    `yaml:"class_weights" json:"class_weights"` // balance by inverse frequency
}

// DefaultSoftmaxConfig returns sensible defaults for scaled features
func DefaultSoftmaxConfig() SoftmaxConfig {
	return SoftmaxConfig{
		LearningRate: 0.1,
		Epochs:       300,
		L2:           1e-4,
		ClassWeights: true,
	}
}

// FromParams builds a model from a loose parameter map. Unset keys keep
// their defaults; "type" defaults to softmax.
func FromParams(params map[string]any) (*Softmax, error) {
	kind := TypeSoftmax
	if v, ok := params["type"].(string); ok && v != "" {
		kind = v
	}
	if kind != TypeSoftmax {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}

	cfg := DefaultSoftmaxConfig()
	if v, ok := number(params["learning_rate"]); ok {
		cfg.LearningRate = v
	}
	if v, ok := number(params["epochs"]); ok {
		cfg.Epochs = int(v)
	}
	if v, ok := number(params["l2"]); ok {
		cfg.L2 = v
	}
	if v, ok := params["class_weights"].(bool); ok {
		cfg.ClassWeights = v
	}
	if cfg.LearningRate <= 0 || cfg.Epochs <= 0 || cfg.L2 < 0 {
		return nil, fmt.Errorf("invalid softmax params: lr=%v epochs=%d l2=%v", cfg.LearningRate, cfg.Epochs, cfg.L2)
	}
	return NewSoftmax(cfg), nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Softmax is multinomial logistic regression trained by full-batch gradient
// descent.
type Softmax struct {
	config  SoftmaxConfig
	weights [][market.NumClasses]float64 // one row per feature
	bias    [market.NumClasses]float64
}

// NewSoftmax creates an untrained classifier
func NewSoftmax(config SoftmaxConfig) *Softmax {
	return &Softmax{config: config}
}

// Fit trains on X with labels y
func (m *Softmax) Fit(X [][]float64, y []market.Signal) error {
	if len(X) == 0 {
		return errors.New("empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("training data misaligned: %d rows, %d labels", len(X), len(y))
	}
	features := len(X[0])

	var counts [market.NumClasses]int
	for i, label := range y {
		if !label.Valid() {
			return fmt.Errorf("invalid label %d at row %d", int(label), i)
		}
		if len(X[i]) != features {
			return fmt.Errorf("row %d has %d features, want %d", i, len(X[i]), features)
		}
		counts[label]++
	}
	var sampleWeight [market.NumClasses]float64
	for c := range sampleWeight {
		sampleWeight[c] = 1
		if m.config.ClassWeights && counts[c] > 0 {
			sampleWeight[c] = float64(len(y)) / (float64(market.NumClasses) * float64(counts[c]))
		}
	}

	m.weights = make([][market.NumClasses]float64, features)
	m.bias = [market.NumClasses]float64{}
	gradW := make([][market.NumClasses]float64, features)
	n := float64(len(X))

	for epoch := 0; epoch < m.config.Epochs; epoch++ {
		for j := range gradW {
			gradW[j] = [market.NumClasses]float64{}
		}
		var gradB [market.NumClasses]float64

		for i, row := range X {
			p := m.proba(row)
			w := sampleWeight[y[i]]
			for c := 0; c < market.NumClasses; c++ {
				diff := p[c]
				if market.Signal(c) == y[i] {
					diff -= 1
				}
				diff *= w
				gradB[c] += diff
				for j, x := range row {
					gradW[j][c] += diff * x
				}
			}
		}

		lr := m.config.LearningRate
		for c := 0; c < market.NumClasses; c++ {
			m.bias[c] -= lr * gradB[c] / n
			for j := range m.weights {
				m.weights[j][c] -= lr * (gradW[j][c]/n + m.config.L2*m.weights[j][c])
			}
		}
	}

	log.Debug().
		Int("rows", len(X)).
		Int("features", features).
		Int("epochs", m.config.Epochs).
		Msg("Trained softmax classifier")
	return nil
}

// PredictProba returns class probabilities over Sell, Hold, Buy
func (m *Softmax) PredictProba(X [][]float64) ([][market.NumClasses]float64, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	out := make([][market.NumClasses]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.weights) {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), len(m.weights))
		}
		out[i] = m.proba(row)
	}
	return out, nil
}

// Predict returns the most probable signal per row
func (m *Softmax) Predict(X [][]float64) ([]market.Signal, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]market.Signal, len(proba))
	for i, p := range proba {
		out[i] = market.SignalFromProba(p)
	}
	return out, nil
}

func (m *Softmax) proba(row []float64) [market.NumClasses]float64 {
	var z [market.NumClasses]float64
	maxZ := math.Inf(-1)
	for c := 0; c < market.NumClasses; c++ {
		z[c] = m.bias[c]
		for j, x := range row {
			z[c] += m.weights[j][c] * x
		}
		if z[c] > maxZ {
			maxZ = z[c]
		}
	}
	var sum float64
	for c := range z {
		z[c] = math.Exp(z[c] - maxZ)
		sum += z[c]
	}
	for c := range z {
		z[c] /= sum
	}
	return z
}
