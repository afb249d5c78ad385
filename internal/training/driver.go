package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
)

var (
	// ErrHistoryNotRecorded is returned when an evaluation could not be written to history
	ErrHistoryNotRecorded = errors.New("evaluation history not recorded")

	// ErrNoViableCandidate is returned when no evaluation produced a usable error
	ErrNoViableCandidate = errors.New("no candidate produced a positive error")
)

// degeneratePenalty is reported to the optimizer for candidates whose error is
// zero or not finite, so they never become the best solution.
const degeneratePenalty = 1.0

// Dataset is a prepared train/test split.
type Dataset struct {
	XTrain [][]float64
	YTrain []float64
	XTest  [][]float64
	YTest  []float64
}

// Encoders are the fitted transforms that produced a Dataset, serialized.
type Encoders struct {
	Neighborhood []byte
	OneHot       []byte
	XMinMax      []byte
	YMinMax      []byte
}

// Objective scores one optimizer position. Lower is better.
type Objective func(ctx context.Context, position []float64) (float64, error)

// Bounds is the box the optimizer searches in.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Optimizer minimizes an objective over a bounded space.
type Optimizer interface {
	Minimize(ctx context.Context, objective Objective, bounds Bounds, epochs, populationSize int) ([]float64, float64, error)
}

// Predictor is a fitted model.
type Predictor interface {
	Predict(x []float64) float64
}

// Learner fits a candidate network for one hyperparameter configuration.
type Learner interface {
	// Fit trains on the train split and returns the error on the test split.
	Fit(ctx context.Context, data *Dataset, params domain.Hyperparameters) (Predictor, float64, error)
	Marshal(p Predictor) ([]byte, error)
}

// HistoryRecorder persists one evaluation.
type HistoryRecorder interface {
	Create(ctx context.Context, history *domain.History) *domain.History
}

// Result is the outcome of a training run.
type Result struct {
	MSE         float64
	Params      domain.Hyperparameters
	Artifact    []byte
	Evaluations int
}

// Driver runs the optimizer against the learner for one model at a time.
type Driver struct {
	optimizer Optimizer
	learner   Learner
	histories HistoryRecorder
	metrics   metrics.Sink
	logger    *slog.Logger
}

// NewDriver creates a training driver.
func NewDriver(optimizer Optimizer, learner Learner, histories HistoryRecorder, sink metrics.Sink, logger *slog.Logger) *Driver {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Driver{
		optimizer: optimizer,
		learner:   learner,
		histories: histories,
		metrics:   sink,
		logger:    logger,
	}
}

// run is the state of one training pass. Epoch numbers each evaluation from 1.
type run struct {
	driver     *Driver
	model      *domain.Model
	data       *Dataset
	epoch      int
	bestMSE    float64
	best       Predictor
	bestParams domain.Hyperparameters
}

// Run searches the model's hyperparameter space and returns the best network found.
// Every evaluation is written to history before the optimizer sees its score;
// a history write failure aborts the run.
func (d *Driver) Run(ctx context.Context, model *domain.Model, data *Dataset) (*Result, error) {
	if err := model.GWOParams.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		driver:  d,
		model:   model,
		data:    data,
		epoch:   1,
		bestMSE: math.Inf(1),
	}

	d.logger.Info("Starting optimization",
		slog.Int64("model_id", model.ID),
		slog.Int("epochs", model.Epochs),
		slog.Int("population_size", model.PopulationSize),
		slog.Int("dimensions", model.GWOParams.Dimensions()),
	)

	bounds := Bounds{Lower: model.GWOParams.LB, Upper: model.GWOParams.UB}
	if _, _, err := d.optimizer.Minimize(ctx, r.evaluate, bounds, model.Epochs, model.PopulationSize); err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	if r.best == nil {
		return nil, ErrNoViableCandidate
	}

	artifact, err := d.learner.Marshal(r.best)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize model: %w", err)
	}

	d.logger.Info("Optimization finished",
		slog.Int64("model_id", model.ID),
		slog.Int("evaluations", r.epoch-1),
		slog.Float64("best_mse", r.bestMSE),
	)

	return &Result{
		MSE:         r.bestMSE,
		Params:      r.bestParams,
		Artifact:    artifact,
		Evaluations: r.epoch - 1,
	}, nil
}

func (r *run) evaluate(ctx context.Context, position []float64) (float64, error) {
	params := domain.DecodePosition(position)

	start := time.Now()
	predictor, mse, err := r.driver.learner.Fit(ctx, r.data, params)
	if err != nil {
		return 0, fmt.Errorf("failed to fit candidate at epoch %d: %w", r.epoch, err)
	}
	r.driver.metrics.EvaluationCompleted(time.Since(start))

	degenerate := mse <= 0 || math.IsNaN(mse) || math.IsInf(mse, 0)
	if degenerate && mse != 0 {
		// not storable as a number
		mse = degeneratePenalty
	}

	history := &domain.History{
		ModelID: r.model.ID,
		Epoch:   r.epoch,
		MSE:     mse,
		Params:  params,
	}
	if r.driver.histories.Create(ctx, history) == nil {
		return 0, fmt.Errorf("%w: model %d epoch %d", ErrHistoryNotRecorded, r.model.ID, r.epoch)
	}

	r.driver.logger.Debug("Candidate evaluated",
		slog.Int64("model_id", r.model.ID),
		slog.Int("epoch", r.epoch),
		slog.Float64("mse", mse),
	)
	r.epoch++

	if degenerate {
		return degeneratePenalty, nil
	}
	if mse < r.bestMSE {
		r.bestMSE = mse
		r.best = predictor
		r.bestParams = params
	}
	return mse, nil
}
