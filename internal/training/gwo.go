package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// GreyWolf is a grey wolf optimizer.
//
// The initial pack is evaluated once, then every epoch moves each wolf toward
// the three best wolves found so far (alpha, beta, delta) and keeps the move
// only if it improves that wolf. The exploration coefficient decreases
// linearly from 2 to 0 across epochs. A run makes (epochs+1)*populationSize
// objective calls.
type GreyWolf struct {
	rng *rand.Rand
}

// NewGreyWolf creates an optimizer whose random choices are fixed by seed.
func NewGreyWolf(seed uint64) *GreyWolf {
	return &GreyWolf{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type wolf struct {
	position []float64
	fitness  float64
}

// Minimize returns the best position found and its fitness.
func (g *GreyWolf) Minimize(ctx context.Context, objective Objective, bounds Bounds, epochs, populationSize int) ([]float64, float64, error) {
	if len(bounds.Lower) == 0 || len(bounds.Lower) != len(bounds.Upper) {
		return nil, 0, fmt.Errorf("invalid bounds: %d lower, %d upper", len(bounds.Lower), len(bounds.Upper))
	}
	if populationSize < 1 {
		return nil, 0, fmt.Errorf("population size must be positive, got %d", populationSize)
	}
	if epochs < 0 {
		return nil, 0, fmt.Errorf("epochs must not be negative, got %d", epochs)
	}

	pack := make([]wolf, populationSize)
	for i := range pack {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		position := g.randomPosition(bounds)
		fitness, err := objective(ctx, position)
		if err != nil {
			return nil, 0, err
		}
		pack[i] = wolf{position: position, fitness: fitness}
	}

	dims := len(bounds.Lower)
	for epoch := 0; epoch < epochs; epoch++ {
		alpha, beta, delta := leaders(pack)
		a := 2 - 2*float64(epoch)/float64(epochs)

		for i := range pack {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}

			candidate := make([]float64, dims)
			for d := 0; d < dims; d++ {
				x1 := g.pursue(alpha.position[d], pack[i].position[d], a)
				x2 := g.pursue(beta.position[d], pack[i].position[d], a)
				x3 := g.pursue(delta.position[d], pack[i].position[d], a)
				candidate[d] = clamp((x1+x2+x3)/3, bounds.Lower[d], bounds.Upper[d])
			}

			fitness, err := objective(ctx, candidate)
			if err != nil {
				return nil, 0, err
			}
			if fitness < pack[i].fitness {
				pack[i] = wolf{position: candidate, fitness: fitness}
			}
		}
	}

	best, _, _ := leaders(pack)
	return append([]float64(nil), best.position...), best.fitness, nil
}

// pursue moves one coordinate relative to a leader.
func (g *GreyWolf) pursue(leader, current, a float64) float64 {
	A := 2*a*g.rng.Float64() - a
	C := 2 * g.rng.Float64()
	return leader - A*math.Abs(C*leader-current)
}

func (g *GreyWolf) randomPosition(bounds Bounds) []float64 {
	position := make([]float64, len(bounds.Lower))
	for d := range position {
		position[d] = bounds.Lower[d] + g.rng.Float64()*(bounds.Upper[d]-bounds.Lower[d])
	}
	return position
}

// leaders returns the three fittest wolves, repeating the last one for packs smaller than three.
func leaders(pack []wolf) (wolf, wolf, wolf) {
	order := make([]int, len(pack))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return pack[order[i]].fitness < pack[order[j]].fitness
	})

	pick := func(rank int) wolf {
		if rank >= len(order) {
			rank = len(order) - 1
		}
		return pack[order[rank]]
	}
	return pick(0), pick(1), pick(2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
