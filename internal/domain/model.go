package domain

import "time"

// Model is a training job and, once READY, the trained model it produced.
type Model struct {
	ID                  int64     `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Status              Status    `db:"status" json:"status"`
	GWOParams           GWOParams `db:"gwo_params" json:"gwo_params"`
	Epochs              int       `db:"epochs" json:"epochs"`
	PopulationSize      int       `db:"population_size" json:"population_size"`
	Path                string    `db:"path" json:"path"`
	NeighborhoodEncoder string    `db:"neighborhood_encoder" json:"neighborhood_encoder"`
	OneHotEncoder       string    `db:"one_hot_encoder" json:"one_hot_encoder"`
	XMinMax             string    `db:"x_min_max" json:"x_min_max"`
	YMinMax             string    `db:"y_min_max" json:"y_min_max"`
	MSE                 float64   `db:"mse" json:"mse"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// ArtifactPaths returns the model path followed by the four encoder paths.
func (m *Model) ArtifactPaths() []string {
	return []string{m.Path, m.NeighborhoodEncoder, m.OneHotEncoder, m.XMinMax, m.YMinMax}
}

// HasArtifacts reports whether every artifact path is set.
func (m *Model) HasArtifacts() bool {
	for _, p := range m.ArtifactPaths() {
		if p == "" {
			return false
		}
	}
	return true
}

// Consistent reports whether the artifact fields agree with the status:
// a READY model has every path and a positive error, any other status has no paths.
func (m *Model) Consistent() bool {
	if m.Status == StatusReady {
		return m.HasArtifacts() && m.MSE > 0
	}
	for _, p := range m.ArtifactPaths() {
		if p != "" {
			return false
		}
	}
	return true
}

// ModelSummary is the lightweight projection returned by status lookups.
type ModelSummary struct {
	ID                        int64     `db:"id" json:"id"`
	Name                      string    `db:"name" json:"name"`
	Status                    Status    `db:"status" json:"status"`
	Epochs                    int       `db:"epochs" json:"epochs"`
	PopulationSize            int       `db:"population_size" json:"population_size"`
	CreatedAt                 time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time `db:"updated_at" json:"updated_at"`
	EstimatedSecondsRemaining *float64  `db:"-" json:"estimated_seconds_remaining,omitempty"`
}

// ModelWithHistory is a model together with its evaluation history.
type ModelWithHistory struct {
	Model
	Histories []History `json:"histories"`
}
