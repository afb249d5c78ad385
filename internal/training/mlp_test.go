package training

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

func linearDataset(n int) *Dataset {
	rng := rand.New(rand.NewPCG(1, 2))
	sample := func() ([]float64, float64) {
		x := []float64{rng.Float64(), rng.Float64()}
		return x, 0.5*x[0] + 0.25*x[1]
	}

	data := &Dataset{}
	for i := 0; i < n; i++ {
		x, y := sample()
		if i%4 == 0 {
			data.XTest = append(data.XTest, x)
			data.YTest = append(data.YTest, y)
		} else {
			data.XTrain = append(data.XTrain, x)
			data.YTrain = append(data.YTrain, y)
		}
	}
	return data
}

func meanBaseline(data *Dataset) float64 {
	var mean float64
	for _, y := range data.YTrain {
		mean += y
	}
	mean /= float64(len(data.YTrain))

	var total float64
	for _, y := range data.YTest {
		total += math.Abs(y - mean)
	}
	return total / float64(len(data.YTest))
}

func TestMLPLearner_LearnsLinearTarget(t *testing.T) {
	data := linearDataset(240)
	params := domain.Hyperparameters{
		MaxIter:          400,
		HiddenLayerSizes: []int{8},
		LearningRate:     0.005,
		Momentum:         0.9,
		BatchSize:        16,
	}

	predictor, mae, err := NewMLPLearner(5).Fit(context.Background(), data, params)

	require.NoError(t, err)
	require.NotNil(t, predictor)
	assert.Greater(t, mae, 0.0)
	assert.Less(t, mae, meanBaseline(data)/2)
}

func TestMLPLearner_Deterministic(t *testing.T) {
	data := linearDataset(40)
	params := domain.Hyperparameters{MaxIter: 5, HiddenLayerSizes: []int{4, 3}, LearningRate: 0.05, Momentum: 0.5, BatchSize: 4}

	_, first, err := NewMLPLearner(9).Fit(context.Background(), data, params)
	require.NoError(t, err)
	_, second, err := NewMLPLearner(9).Fit(context.Background(), data, params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMLPLearner_MarshalRoundTrip(t *testing.T) {
	data := linearDataset(20)
	learner := NewMLPLearner(1)
	params := domain.Hyperparameters{MaxIter: 2, HiddenLayerSizes: []int{3}, LearningRate: 0.01, Momentum: 0.1, BatchSize: 32}

	predictor, _, err := learner.Fit(context.Background(), data, params)
	require.NoError(t, err)

	blob, err := learner.Marshal(predictor)
	require.NoError(t, err)

	var restored Network
	require.NoError(t, json.Unmarshal(blob, &restored))
	require.Len(t, restored.Layers, 2)
	assert.True(t, restored.Layers[0].ReLU)
	assert.False(t, restored.Layers[1].ReLU)
	assert.InDelta(t, predictor.Predict(data.XTest[0]), restored.Predict(data.XTest[0]), 1e-12)
}

func TestMLPLearner_EmptyDataset(t *testing.T) {
	_, _, err := NewMLPLearner(1).Fit(context.Background(), &Dataset{}, domain.Hyperparameters{MaxIter: 1, BatchSize: 1})
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
}

func TestMLPLearner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params := domain.Hyperparameters{MaxIter: 10, HiddenLayerSizes: []int{2}, LearningRate: 0.01, BatchSize: 4}
	_, _, err := NewMLPLearner(1).Fit(ctx, linearDataset(20), params)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeNetwork(t *testing.T) {
	data := linearDataset(20)
	learner := NewMLPLearner(3)
	params := domain.Hyperparameters{MaxIter: 2, HiddenLayerSizes: []int{4}, LearningRate: 0.01, Momentum: 0.1, BatchSize: 8}

	predictor, _, err := learner.Fit(context.Background(), data, params)
	require.NoError(t, err)
	blob, err := learner.Marshal(predictor)
	require.NoError(t, err)

	net, err := DecodeNetwork(blob)
	require.NoError(t, err)
	assert.Equal(t, 2, net.Inputs())
	assert.InDelta(t, predictor.Predict(data.XTest[1]), net.Predict(data.XTest[1]), 1e-12)
}

func TestDecodeNetwork_Invalid(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "not json", blob: "h5"},
		{name: "no layers", blob: `{"layers":[]}`},
		{name: "two outputs", blob: `{"layers":[{"weights":[[1],[2]],"biases":[0,0]}]}`},
		{name: "missing biases", blob: `{"layers":[{"weights":[[1]],"biases":[]}]}`},
		{name: "layer widths disagree", blob: `{"layers":[{"weights":[[1,1],[1,1]],"biases":[0,0]},{"weights":[[1,1,1]],"biases":[0]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNetwork([]byte(tt.blob))
			assert.Error(t, err)
		})
	}
}
