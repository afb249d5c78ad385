package preprocessing

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// Listing is a property whose price is to be predicted.
type Listing struct {
	Rooms        float64
	Bathrooms    float64
	Size         float64
	ParkingSpace float64
	Neighborhood string
	// FloodQuota falls back to the export default when nil
	FloodQuota *float64
}

// Transformer applies the encoders fitted for one model to new listings.
type Transformer struct {
	labels  LabelEncoder
	oneHot  OneHotEncoder
	xScaler MinMaxScaler
	yScaler MinMaxScaler
}

// LoadTransformer decodes the four encoder artifacts stored with a model.
func LoadTransformer(neighborhood, oneHot, xMinMax, yMinMax []byte) (*Transformer, error) {
	t := &Transformer{}

	blobs := []struct {
		name string
		blob []byte
		dest any
	}{
		{"neighborhood encoder", neighborhood, &t.labels},
		{"one-hot encoder", oneHot, &t.oneHot},
		{"x scaler", xMinMax, &t.xScaler},
		{"y scaler", yMinMax, &t.yScaler},
	}
	for _, b := range blobs {
		if err := json.Unmarshal(b.blob, b.dest); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", b.name, err)
		}
	}

	if len(t.yScaler.Min) != 1 || len(t.yScaler.Max) != 1 {
		return nil, fmt.Errorf("y scaler has %d columns, expected 1", len(t.yScaler.Min))
	}
	if len(t.xScaler.Min) != len(t.xScaler.Max) {
		return nil, fmt.Errorf("x scaler bounds differ in length: %d and %d", len(t.xScaler.Min), len(t.xScaler.Max))
	}
	return t, nil
}

// Features encodes l into the scaled row the network was trained on.
func (t *Transformer) Features(l Listing) ([]float64, error) {
	label, err := t.labels.Transform(l.Neighborhood)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidListing, err)
	}

	floodQuota := defaultFloodQuota
	if l.FloodQuota != nil && !math.IsNaN(*l.FloodQuota) {
		floodQuota = *l.FloodQuota
	}

	row := []float64{l.Rooms, l.Bathrooms, l.Size, l.ParkingSpace, float64(label), SecurityClass(floodQuota)}
	encoded, err := t.oneHot.Transform(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidListing, err)
	}
	if len(encoded) != len(t.xScaler.Min) {
		return nil, fmt.Errorf("%w: %d features, scaler expects %d", domain.ErrInvalidListing, len(encoded), len(t.xScaler.Min))
	}
	return t.xScaler.Transform(encoded), nil
}

// Price maps a scaled network output back to a price. Prices were divided by
// 1000 for training; the result is rounded to cents of that unit first.
func (t *Transformer) Price(scaled float64) float64 {
	v := t.yScaler.Inverse([]float64{scaled})[0]
	return math.Round(v*100) / 100 * 1000
}
