package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

// separable data: x < -1 sell, |x| <= 1 hold, x > 1 buy
func separable() ([][]float64, []market.Signal) {
	var X [][]float64
	var y []market.Signal
	for i := -30; i <= 30; i++ {
		x := float64(i) / 10
		X = append(X, []float64{x, x * x})
		switch {
		case x < -1:
			y = append(y, market.Sell)
		case x > 1:
			y = append(y, market.Buy)
		default:
			y = append(y, market.Hold)
		}
	}
	return X, y
}

func TestSoftmax_LearnsSeparableClasses(t *testing.T) {
	X, y := separable()
	cfg := DefaultSoftmaxConfig()
	cfg.Epochs = 3000
	cfg.LearningRate = 0.1
	m := NewSoftmax(cfg)
	require.NoError(t, m.Fit(X, y))

	pred, err := m.Predict([][]float64{{-2.8, 7.84}, {0, 0}, {2.8, 7.84}})
	require.NoError(t, err)
	assert.Equal(t, []market.Signal{market.Sell, market.Hold, market.Buy}, pred)

	proba, err := m.PredictProba(X)
	require.NoError(t, err)
	for _, p := range proba {
		assert.InDelta(t, 1.0, p[0]+p[1]+p[2], 1e-9)
	}
}

func TestSoftmax_Errors(t *testing.T) {
	m := NewSoftmax(DefaultSoftmaxConfig())

	_, err := m.PredictProba([][]float64{{1}})
	require.ErrorIs(t, err, ErrNotFitted)

	assert.Error(t, m.Fit(nil, nil))
	assert.Error(t, m.Fit([][]float64{{1}}, []market.Signal{market.Buy, market.Sell}))
	assert.Error(t, m.Fit([][]float64{{1}}, []market.Signal{market.Signal(9)}))

	require.NoError(t, m.Fit([][]float64{{1, 2}}, []market.Signal{market.Buy}))
	_, err = m.PredictProba([][]float64{{1}})
	assert.Error(t, err)
}

func TestFromParams(t *testing.T) {
	m, err := FromParams(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSoftmaxConfig(), m.config)

	m, err = FromParams(map[string]any{"type": "softmax", "epochs": 50, "learning_rate": 0.2, "class_weights": false})
	require.NoError(t, err)
	assert.Equal(t, 50, m.config.Epochs)
	assert.Equal(t, 0.2, m.config.LearningRate)
	assert.False(t, m.config.ClassWeights)

	_, err = FromParams(map[string]any{"type": "xgboost"})
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = FromParams(map[string]any{"epochs": 0})
	assert.Error(t, err)
}
