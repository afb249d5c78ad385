package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

func historyAt(start time.Time, offsets ...time.Duration) []domain.History {
	histories := make([]domain.History, len(offsets))
	for i, off := range offsets {
		histories[i] = domain.History{Epoch: i + 1, CreatedAt: start.Add(off)}
	}
	return histories
}

func TestEstimateRemaining(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		histories  []domain.History
		epochs     int
		population int
		want       time.Duration
	}{
		{
			name:       "average spacing times evaluations left",
			histories:  historyAt(start, 0, 10*time.Second, 30*time.Second, 60*time.Second),
			epochs:     1,
			population: 3,
			// deltas 10s, 20s, 30s average 20s; 7 expected, 4 done
			want: 60 * time.Second,
		},
		{
			name:       "no history",
			histories:  nil,
			epochs:     1,
			population: 3,
			want:       0,
		},
		{
			name:       "single record",
			histories:  historyAt(start, 0),
			epochs:     10,
			population: 10,
			want:       0,
		},
		{
			name:       "more records than expected",
			histories:  historyAt(start, 0, time.Second, 2*time.Second, 3*time.Second),
			epochs:     0,
			population: 2,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateRemaining(tt.histories, tt.epochs, tt.population))
		})
	}
}

func TestEstimateRemaining_UnorderedInput(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	histories := historyAt(start, 0, 10*time.Second, 20*time.Second)
	histories[0], histories[2] = histories[2], histories[0]

	// 3 expected evaluations + 1, last epoch 3, 10s apart
	assert.Equal(t, 10*time.Second, EstimateRemaining(histories, 0, 3))
}

func TestExpectedEvaluations(t *testing.T) {
	assert.Equal(t, 7, ExpectedEvaluations(1, 3))
	assert.Equal(t, 5011, ExpectedEvaluations(500, 10))
}
