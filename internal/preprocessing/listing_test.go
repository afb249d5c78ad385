package preprocessing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	blob, err := json.Marshal(v)
	require.NoError(t, err)
	return blob
}

func testTransformer(t *testing.T) *Transformer {
	t.Helper()

	transformer, err := LoadTransformer(
		mustJSON(t, &LabelEncoder{Classes: []string{"centro", "trindade"}}),
		mustJSON(t, &OneHotEncoder{Column: neighborhoodCol, Categories: 2}),
		mustJSON(t, &MinMaxScaler{Min: []float64{0, 0, 1, 1, 40, 0, 1}, Max: []float64{1, 1, 3, 2, 120, 2, 4}}),
		mustJSON(t, &MinMaxScaler{Min: []float64{100}, Max: []float64{500}}),
	)
	require.NoError(t, err)
	return transformer
}

func TestTransformer_Features(t *testing.T) {
	quota := 9.0

	tests := []struct {
		name    string
		listing Listing
		want    []float64
		wantErr error
	}{
		{
			name:    "default flood quota",
			listing: Listing{Rooms: 2, Bathrooms: 1, Size: 80, ParkingSpace: 1, Neighborhood: "trindade"},
			want:    []float64{0, 1, 0.5, 0, 0.5, 0.5, 1},
		},
		{
			name:    "explicit flood quota",
			listing: Listing{Rooms: 3, Bathrooms: 2, Size: 120, ParkingSpace: 0, Neighborhood: "centro", FloodQuota: &quota},
			want:    []float64{1, 0, 1, 1, 1, 0, 1.0 / 3},
		},
		{
			name:    "unknown neighborhood",
			listing: Listing{Rooms: 2, Neighborhood: "nowhere"},
			wantErr: domain.ErrInvalidListing,
		},
	}

	transformer := testTransformer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transformer.Features(tt.listing)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}
}

func TestTransformer_Price(t *testing.T) {
	transformer := testTransformer(t)

	assert.InDelta(t, 300000, transformer.Price(0.5), 1e-6)
	assert.InDelta(t, 149380, transformer.Price(0.123456), 1e-6)
}

func TestLoadTransformer_Invalid(t *testing.T) {
	labels := mustJSON(t, &LabelEncoder{Classes: []string{"centro"}})
	oneHot := mustJSON(t, &OneHotEncoder{Column: neighborhoodCol, Categories: 1})
	x := mustJSON(t, &MinMaxScaler{Min: []float64{0}, Max: []float64{1}})
	y := mustJSON(t, &MinMaxScaler{Min: []float64{0}, Max: []float64{1}})

	tests := []struct {
		name   string
		labels []byte
		oneHot []byte
		xMM    []byte
		yMM    []byte
	}{
		{name: "corrupt label encoder", labels: []byte("joblib"), oneHot: oneHot, xMM: x, yMM: y},
		{name: "corrupt y scaler", labels: labels, oneHot: oneHot, xMM: x, yMM: []byte("{")},
		{name: "y scaler with two columns", labels: labels, oneHot: oneHot, xMM: x, yMM: mustJSON(t, &MinMaxScaler{Min: []float64{0, 0}, Max: []float64{1, 1}})},
		{name: "x scaler bounds differ", labels: labels, oneHot: oneHot, xMM: mustJSON(t, &MinMaxScaler{Min: []float64{0, 0}, Max: []float64{1}}), yMM: y},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTransformer(tt.labels, tt.oneHot, tt.xMM, tt.yMM)
			assert.Error(t, err)
		})
	}
}
