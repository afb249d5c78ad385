package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// Layer is one fully connected layer. Weights are indexed [output][input].
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
	ReLU    bool        `json:"relu"`
}

// Network is a feed-forward regression network with a single linear output.
type Network struct {
	Layers []Layer `json:"layers"`
}

var _ Predictor = (*Network)(nil)

// Predict runs x through the network.
func (n *Network) Predict(x []float64) float64 {
	activation := x
	for i := range n.Layers {
		_, activation = n.Layers[i].forward(activation)
	}
	return activation[0]
}

func (l *Layer) forward(in []float64) (pre, out []float64) {
	pre = make([]float64, len(l.Weights))
	out = make([]float64, len(l.Weights))
	for j, weights := range l.Weights {
		sum := l.Biases[j]
		for k, w := range weights {
			sum += w * in[k]
		}
		pre[j] = sum
		if l.ReLU && sum < 0 {
			sum = 0
		}
		out[j] = sum
	}
	return pre, out
}

func newNetwork(inputs int, hidden []int, rng *rand.Rand) *Network {
	sizes := append([]int{inputs}, hidden...)
	sizes = append(sizes, 1)

	net := &Network{Layers: make([]Layer, len(sizes)-1)}
	for l := range net.Layers {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2 / float64(in))

		layer := Layer{
			Weights: make([][]float64, out),
			Biases:  make([]float64, out),
			ReLU:    l < len(net.Layers)-1,
		}
		for j := range layer.Weights {
			layer.Weights[j] = make([]float64, in)
			for k := range layer.Weights[j] {
				layer.Weights[j][k] = rng.NormFloat64() * scale
			}
		}
		net.Layers[l] = layer
	}
	return net
}

// zeroLike returns a network of the same shape with every parameter zero.
func (n *Network) zeroLike() *Network {
	z := &Network{Layers: make([]Layer, len(n.Layers))}
	for l, layer := range n.Layers {
		weights := make([][]float64, len(layer.Weights))
		for j := range weights {
			weights[j] = make([]float64, len(layer.Weights[j]))
		}
		z.Layers[l] = Layer{Weights: weights, Biases: make([]float64, len(layer.Biases)), ReLU: layer.ReLU}
	}
	return z
}

func (n *Network) reset() {
	for l := range n.Layers {
		for j := range n.Layers[l].Weights {
			clear(n.Layers[l].Weights[j])
		}
		clear(n.Layers[l].Biases)
	}
}

// accumulate adds the absolute-error gradient of one sample, multiplied by scale, to grads.
func (n *Network) accumulate(x []float64, y float64, grads *Network, scale float64) {
	last := len(n.Layers) - 1
	activations := make([][]float64, len(n.Layers)+1)
	pre := make([][]float64, len(n.Layers))
	activations[0] = x
	for l := range n.Layers {
		pre[l], activations[l+1] = n.Layers[l].forward(activations[l])
	}

	delta := []float64{sign(activations[last+1][0]-y) * scale}
	if n.Layers[last].ReLU && pre[last][0] <= 0 {
		delta[0] = 0
	}

	for l := last; l >= 0; l-- {
		layer := &n.Layers[l]
		grad := &grads.Layers[l]
		for j := range layer.Weights {
			grad.Biases[j] += delta[j]
			for k, a := range activations[l] {
				grad.Weights[j][k] += delta[j] * a
			}
		}
		if l == 0 {
			break
		}

		previous := make([]float64, len(activations[l]))
		for k := range previous {
			if n.Layers[l-1].ReLU && pre[l-1][k] <= 0 {
				continue
			}
			var sum float64
			for j := range layer.Weights {
				sum += layer.Weights[j][k] * delta[j]
			}
			previous[k] = sum
		}
		delta = previous
	}
}

// step applies SGD with momentum: v = momentum*v - lr*g, w += v.
func (n *Network) step(grads, velocity *Network, learningRate, momentum float64) {
	for l := range n.Layers {
		for j := range n.Layers[l].Weights {
			for k := range n.Layers[l].Weights[j] {
				v := momentum*velocity.Layers[l].Weights[j][k] - learningRate*grads.Layers[l].Weights[j][k]
				velocity.Layers[l].Weights[j][k] = v
				n.Layers[l].Weights[j][k] += v
			}
			v := momentum*velocity.Layers[l].Biases[j] - learningRate*grads.Layers[l].Biases[j]
			velocity.Layers[l].Biases[j] = v
			n.Layers[l].Biases[j] += v
		}
	}
}

// MLPLearner trains dense ReLU networks with mini-batch SGD and momentum on
// absolute error, and scores them by mean absolute error on the test split.
type MLPLearner struct {
	seed uint64
}

// NewMLPLearner creates a learner whose initial weights and shuffles are fixed by seed.
func NewMLPLearner(seed uint64) *MLPLearner {
	return &MLPLearner{seed: seed}
}

var _ Learner = (*MLPLearner)(nil)

func (m *MLPLearner) Fit(ctx context.Context, data *Dataset, params domain.Hyperparameters) (Predictor, float64, error) {
	if len(data.XTrain) == 0 || len(data.XTest) == 0 {
		return nil, 0, domain.ErrEmptyDataset
	}
	if len(data.XTrain) != len(data.YTrain) || len(data.XTest) != len(data.YTest) {
		return nil, 0, fmt.Errorf("features and targets differ in length")
	}

	rng := rand.New(rand.NewPCG(m.seed, uint64(len(data.XTrain))))
	net := newNetwork(len(data.XTrain[0]), params.HiddenLayerSizes, rng)
	grads := net.zeroLike()
	velocity := net.zeroLike()

	samples := len(data.XTrain)
	batchSize := min(max(params.BatchSize, 1), samples)
	order := make([]int, samples)
	for i := range order {
		order[i] = i
	}

	for iter := 0; iter < params.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rng.Shuffle(samples, func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < samples; start += batchSize {
			end := min(start+batchSize, samples)
			grads.reset()
			scale := 1 / float64(end-start)
			for _, idx := range order[start:end] {
				net.accumulate(data.XTrain[idx], data.YTrain[idx], grads, scale)
			}
			net.step(grads, velocity, params.LearningRate, params.Momentum)
		}
	}

	return net, MeanAbsoluteError(net, data.XTest, data.YTest), nil
}

// DecodeNetwork reads a network written by MLPLearner.Marshal.
func DecodeNetwork(blob []byte) (*Network, error) {
	var net Network
	if err := json.Unmarshal(blob, &net); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	if len(net.Layers) == 0 || len(net.Layers[0].Weights) == 0 {
		return nil, errors.New("network has no layers")
	}
	last := net.Layers[len(net.Layers)-1]
	if len(last.Weights) != 1 {
		return nil, fmt.Errorf("network has %d outputs, expected 1", len(last.Weights))
	}
	inputs := len(net.Layers[0].Weights[0])
	for i, layer := range net.Layers {
		if len(layer.Biases) != len(layer.Weights) {
			return nil, fmt.Errorf("layer %d has %d biases for %d units", i, len(layer.Biases), len(layer.Weights))
		}
		for _, weights := range layer.Weights {
			if len(weights) != inputs {
				return nil, fmt.Errorf("layer %d expects %d inputs, got a unit with %d weights", i, inputs, len(weights))
			}
		}
		inputs = len(layer.Weights)
	}
	return &net, nil
}

// Inputs is the number of features the network expects.
func (n *Network) Inputs() int {
	return len(n.Layers[0].Weights[0])
}

func (m *MLPLearner) Marshal(p Predictor) ([]byte, error) {
	net, ok := p.(*Network)
	if !ok {
		return nil, fmt.Errorf("unsupported predictor type %T", p)
	}
	return json.Marshal(net)
}

// MeanAbsoluteError scores p on x against y.
func MeanAbsoluteError(p Predictor, x [][]float64, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var total float64
	for i := range x {
		total += math.Abs(p.Predict(x[i]) - y[i])
	}
	return total / float64(len(x))
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
