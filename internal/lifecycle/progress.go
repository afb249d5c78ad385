package lifecycle

import (
	"sort"
	"time"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// ExpectedEvaluations is the number of history records a complete run writes,
// plus one for the final save.
func ExpectedEvaluations(epochs, populationSize int) int {
	return (epochs+1)*populationSize + 1
}

// EstimateRemaining extrapolates the time left for a TRAINING model from the
// average spacing of its history records. It is zero without at least two
// records and never negative.
func EstimateRemaining(histories []domain.History, epochs, populationSize int) time.Duration {
	if len(histories) < 2 {
		return 0
	}

	sorted := make([]domain.History, len(histories))
	copy(sorted, histories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Epoch < sorted[j].Epoch })

	var total time.Duration
	for i := 1; i < len(sorted); i++ {
		total += sorted[i].CreatedAt.Sub(sorted[i-1].CreatedAt)
	}
	average := total / time.Duration(len(sorted)-1)

	remaining := ExpectedEvaluations(epochs, populationSize) - sorted[len(sorted)-1].Epoch
	if remaining <= 0 || average <= 0 {
		return 0
	}
	return time.Duration(remaining) * average
}
