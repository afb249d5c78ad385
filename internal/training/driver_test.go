package training

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// scriptedOptimizer evaluates a fixed number of positions and records what the objective returned.
type scriptedOptimizer struct {
	evaluations int
	returned    []float64
}

func (o *scriptedOptimizer) Minimize(ctx context.Context, objective Objective, bounds Bounds, epochs, populationSize int) ([]float64, float64, error) {
	best := math.Inf(1)
	for i := 0; i < o.evaluations; i++ {
		position := append([]float64(nil), bounds.Lower...)
		position[domain.DimMaxIter] = float64(i + 1)
		score, err := objective(ctx, position)
		if err != nil {
			return nil, 0, err
		}
		o.returned = append(o.returned, score)
		best = math.Min(best, score)
	}
	return bounds.Lower, best, nil
}

type constPredictor float64

func (c constPredictor) Predict(x []float64) float64 { return float64(c) }

// scriptedLearner returns errors in order, one per fit.
type scriptedLearner struct {
	errors []float64
	calls  int
}

func (l *scriptedLearner) Fit(ctx context.Context, data *Dataset, params domain.Hyperparameters) (Predictor, float64, error) {
	mse := l.errors[l.calls]
	l.calls++
	return constPredictor(params.MaxIter), mse, nil
}

func (l *scriptedLearner) Marshal(p Predictor) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"max_iter":%v}`, p.Predict(nil))), nil
}

type memoryHistory struct {
	records []domain.History
	failAt  int
}

func (h *memoryHistory) Create(ctx context.Context, history *domain.History) *domain.History {
	if h.failAt > 0 && history.Epoch == h.failAt {
		return nil
	}
	h.records = append(h.records, *history)
	return history
}

func testModel() *domain.Model {
	spec := domain.HyperparameterSpec{
		MaxIter:         domain.Range{Min: 1, Max: 10},
		LearningRate:    domain.Range{Min: 0.01, Max: 0.1},
		Momentum:        domain.Range{Min: 0.1, Max: 0.9},
		BatchSize:       domain.Range{Min: 1, Max: 8},
		HiddenLayerSize: domain.Range{Min: 2, Max: 4},
		HiddenLayers:    1,
	}
	return &domain.Model{ID: 9, Epochs: 1, PopulationSize: 3, GWOParams: spec.Expand()}
}

func newTestDriver(opt Optimizer, learner Learner, history HistoryRecorder) *Driver {
	return NewDriver(opt, learner, history, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDriver_RecordsEveryEvaluation(t *testing.T) {
	opt := &scriptedOptimizer{evaluations: 6}
	learner := &scriptedLearner{errors: []float64{0.5, 0.3, 0.4, 0.2, 0.6, 0.25}}
	history := &memoryHistory{}

	result, err := newTestDriver(opt, learner, history).Run(context.Background(), testModel(), &Dataset{})

	require.NoError(t, err)
	require.Len(t, history.records, 6)
	for i, h := range history.records {
		assert.Equal(t, i+1, h.Epoch)
		assert.Equal(t, int64(9), h.ModelID)
	}

	assert.Equal(t, 0.2, result.MSE)
	assert.Equal(t, 4, result.Params.MaxIter)
	assert.Equal(t, 6, result.Evaluations)
	assert.JSONEq(t, `{"max_iter":4}`, string(result.Artifact))
	assert.Equal(t, learner.errors, opt.returned)
}

func TestDriver_ZeroErrorIsRecordedButNeverBest(t *testing.T) {
	opt := &scriptedOptimizer{evaluations: 3}
	learner := &scriptedLearner{errors: []float64{0.4, 0, 0.3}}
	history := &memoryHistory{}

	result, err := newTestDriver(opt, learner, history).Run(context.Background(), testModel(), &Dataset{})

	require.NoError(t, err)
	assert.Equal(t, 0.0, history.records[1].MSE)
	assert.Equal(t, []float64{0.4, degeneratePenalty, 0.3}, opt.returned)
	assert.Equal(t, 0.3, result.MSE)
}

func TestDriver_NonFiniteErrorIsPenalized(t *testing.T) {
	opt := &scriptedOptimizer{evaluations: 2}
	learner := &scriptedLearner{errors: []float64{math.NaN(), 0.7}}
	history := &memoryHistory{}

	result, err := newTestDriver(opt, learner, history).Run(context.Background(), testModel(), &Dataset{})

	require.NoError(t, err)
	assert.Equal(t, degeneratePenalty, history.records[0].MSE)
	assert.Equal(t, 0.7, result.MSE)
}

func TestDriver_NoViableCandidate(t *testing.T) {
	opt := &scriptedOptimizer{evaluations: 2}
	learner := &scriptedLearner{errors: []float64{0, 0}}

	_, err := newTestDriver(opt, learner, &memoryHistory{}).Run(context.Background(), testModel(), &Dataset{})

	assert.ErrorIs(t, err, ErrNoViableCandidate)
}

func TestDriver_HistoryFailureAbortsRun(t *testing.T) {
	opt := &scriptedOptimizer{evaluations: 5}
	learner := &scriptedLearner{errors: []float64{0.5, 0.4, 0.3, 0.2, 0.1}}
	history := &memoryHistory{failAt: 3}

	_, err := newTestDriver(opt, learner, history).Run(context.Background(), testModel(), &Dataset{})

	assert.ErrorIs(t, err, ErrHistoryNotRecorded)
	// epochs stay gapless: nothing after the failed write was recorded
	assert.Len(t, history.records, 2)
	assert.Equal(t, 3, learner.calls)
}

func TestDriver_InvalidBounds(t *testing.T) {
	model := testModel()
	model.GWOParams.UB = model.GWOParams.UB[:2]

	_, err := newTestDriver(&scriptedOptimizer{}, &scriptedLearner{}, &memoryHistory{}).Run(context.Background(), model, &Dataset{})

	assert.ErrorIs(t, err, domain.ErrInvalidHyperparameters)
}

func TestDriver_WithGreyWolfAndMLP(t *testing.T) {
	history := &memoryHistory{}
	model := testModel()
	model.Epochs = 2
	model.PopulationSize = 3

	driver := newTestDriver(NewGreyWolf(1), NewMLPLearner(1), history)
	result, err := driver.Run(context.Background(), model, linearDataset(40))

	require.NoError(t, err)
	assert.Len(t, history.records, (model.Epochs+1)*model.PopulationSize)
	assert.Equal(t, (model.Epochs+1)*model.PopulationSize, result.Evaluations)
	assert.Greater(t, result.MSE, 0.0)
	assert.NotEmpty(t, result.Artifact)
}
