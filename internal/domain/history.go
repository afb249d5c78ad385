package domain

import "time"

// History is one objective evaluation performed while training a model.
// Epoch counts evaluations from 1 and has no gaps within a model.
type History struct {
	ID        int64           `db:"id" json:"id"`
	ModelID   int64           `db:"model_id" json:"model_id"`
	Epoch     int             `db:"epoch" json:"epoch"`
	MSE       float64         `db:"mse" json:"mse"`
	Params    Hyperparameters `db:"params" json:"params"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
