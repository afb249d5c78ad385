package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// Positions of the fixed hyperparameters inside an optimizer position vector.
// Every dimension from DimHiddenLayers on is the neuron count of one hidden layer.
const (
	DimMaxIter = iota
	DimLearningRate
	DimMomentum
	DimBatchSize
	DimHiddenLayers
)

// Range is an inclusive interval searched for one hyperparameter.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) valid() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) && r.Min <= r.Max
}

func (r Range) pair() [2]float64 {
	return [2]float64{r.Min, r.Max}
}

// HyperparameterSpec is the compact search space submitted for a new model.
// The hidden layer range applies to each of HiddenLayers layers.
type HyperparameterSpec struct {
	MaxIter         Range `json:"max_iter"`
	LearningRate    Range `json:"learning_rate"`
	Momentum        Range `json:"momentum"`
	BatchSize       Range `json:"batch_size"`
	HiddenLayerSize Range `json:"hidden_layer_size"`
	HiddenLayers    int   `json:"hidden_layers"`
}

// Upper limits of the search space. They keep a single fit bounded in time and memory.
const (
	MaxMaxIter         = 10000
	MaxBatchSize       = 4096
	MaxHiddenLayerSize = 1024
	MaxHiddenLayers    = 10
)

// Validate checks that every range is non-empty and within the domain of its hyperparameter.
func (s HyperparameterSpec) Validate() error {
	checks := []struct {
		name    string
		r       Range
		floor   float64
		ceiling float64
	}{
		{"max_iter", s.MaxIter, 1, MaxMaxIter},
		{"learning_rate", s.LearningRate, 0, math.Inf(1)},
		{"momentum", s.Momentum, 0, 1},
		{"batch_size", s.BatchSize, 1, MaxBatchSize},
		{"hidden_layer_size", s.HiddenLayerSize, 1, MaxHiddenLayerSize},
	}

	for _, c := range checks {
		if !c.r.valid() {
			return fmt.Errorf("%w: %s lower bound exceeds upper bound", ErrInvalidHyperparameters, c.name)
		}
		if c.r.Min < c.floor {
			return fmt.Errorf("%w: %s must be at least %g", ErrInvalidHyperparameters, c.name, c.floor)
		}
		if c.r.Max > c.ceiling {
			return fmt.Errorf("%w: %s must not exceed %g", ErrInvalidHyperparameters, c.name, c.ceiling)
		}
	}
	if s.LearningRate.Max <= 0 {
		return fmt.Errorf("%w: learning_rate must be positive", ErrInvalidHyperparameters)
	}
	if s.HiddenLayers < 1 {
		return fmt.Errorf("%w: at least one hidden layer is required", ErrInvalidHyperparameters)
	}
	if s.HiddenLayers > MaxHiddenLayers {
		return fmt.Errorf("%w: at most %d hidden layers are allowed", ErrInvalidHyperparameters, MaxHiddenLayers)
	}
	return nil
}

// Expand converts the compact spec into the full optimizer parameter record.
// Bounds are laid out as [max_iter, learning_rate, momentum, batch_size, hidden...].
func (s HyperparameterSpec) Expand() GWOParams {
	dims := DimHiddenLayers + s.HiddenLayers
	lb := make([]float64, 0, dims)
	ub := make([]float64, 0, dims)

	for _, r := range []Range{s.MaxIter, s.LearningRate, s.Momentum, s.BatchSize} {
		lb = append(lb, r.Min)
		ub = append(ub, r.Max)
	}

	hiddenLow := make([]float64, s.HiddenLayers)
	hiddenHigh := make([]float64, s.HiddenLayers)
	for i := 0; i < s.HiddenLayers; i++ {
		hiddenLow[i] = s.HiddenLayerSize.Min
		hiddenHigh[i] = s.HiddenLayerSize.Max
	}
	lb = append(lb, hiddenLow...)
	ub = append(ub, hiddenHigh...)

	return GWOParams{
		LB:               lb,
		UB:               ub,
		MaxIter:          s.MaxIter.pair(),
		LearningRate:     s.LearningRate.pair(),
		Momentum:         s.Momentum.pair(),
		BatchSize:        s.BatchSize.pair(),
		HiddenLayerSizes: [2][]float64{hiddenLow, hiddenHigh},
		MinMax:           "min",
	}
}

// GWOParams is the optimizer parameter record persisted with a model.
// LB and UB are authoritative; the named fields are a readable breakdown of them.
type GWOParams struct {
	LB               []float64    `json:"lb"`
	UB               []float64    `json:"ub"`
	MaxIter          [2]float64   `json:"max_iter"`
	LearningRate     [2]float64   `json:"learning_rate"`
	Momentum         [2]float64   `json:"momentum"`
	BatchSize        [2]float64   `json:"batch_size"`
	HiddenLayerSizes [2][]float64 `json:"hidden_layer_sizes"`
	MinMax           string       `json:"minmax"`
}

// Dimensions returns the length of an optimizer position vector.
func (p GWOParams) Dimensions() int {
	return len(p.LB)
}

// Validate checks that the bounds describe a usable search space.
func (p GWOParams) Validate() error {
	if len(p.LB) != len(p.UB) {
		return fmt.Errorf("%w: %d lower bounds but %d upper bounds", ErrInvalidHyperparameters, len(p.LB), len(p.UB))
	}
	if len(p.LB) <= DimHiddenLayers {
		return fmt.Errorf("%w: expected at least %d dimensions, got %d", ErrInvalidHyperparameters, DimHiddenLayers+1, len(p.LB))
	}
	for i := range p.LB {
		if p.LB[i] > p.UB[i] {
			return fmt.Errorf("%w: dimension %d lower bound exceeds upper bound", ErrInvalidHyperparameters, i)
		}
	}
	return nil
}

// Value implements driver.Valuer for the jsonb column.
func (p GWOParams) Value() (driver.Value, error) {
	return jsonValue(p)
}

// Scan implements sql.Scanner for the jsonb column.
func (p *GWOParams) Scan(src any) error {
	return scanJSON(src, p)
}

// Hyperparameters is one concrete configuration evaluated by the optimizer.
type Hyperparameters struct {
	MaxIter          int     `json:"max_iter"`
	HiddenLayerSizes []int   `json:"hidden_layer_sizes"`
	LearningRate     float64 `json:"learning_rate"`
	Momentum         float64 `json:"momentum"`
	BatchSize        int     `json:"batch_size"`
}

// DecodePosition maps an optimizer position vector onto hyperparameters.
// Integer dimensions are truncated and never drop below 1.
func DecodePosition(position []float64) Hyperparameters {
	hp := Hyperparameters{
		MaxIter:      atLeastOne(position[DimMaxIter]),
		LearningRate: position[DimLearningRate],
		Momentum:     position[DimMomentum],
		BatchSize:    atLeastOne(position[DimBatchSize]),
	}
	for _, v := range position[DimHiddenLayers:] {
		hp.HiddenLayerSizes = append(hp.HiddenLayerSizes, atLeastOne(v))
	}
	return hp
}

// Value implements driver.Valuer for the jsonb column.
func (h Hyperparameters) Value() (driver.Value, error) {
	return jsonValue(h)
}

// Scan implements sql.Scanner for the jsonb column.
func (h *Hyperparameters) Scan(src any) error {
	return scanJSON(src, h)
}

func atLeastOne(v float64) int {
	n := int(v)
	if n < 1 {
		return 1
	}
	return n
}

// jsonValue encodes v as text; lib/pq would send a []byte as bytea.
func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
