package models

import (
	"time"

	"github.com/google/uuid"
)

// Movement is one scored event within a competition (e.g. squat, snatch).
// Flights subdivide a movement; attempts belong to exactly one movement.
type Movement struct {
	ID            uuid.UUID   `json:"id"`
	CompetitionID uuid.UUID   `json:"competition_id"`
	Name          string      `json:"name"`
	Order         int         `json:"order"`
	Aggregation   Aggregation `json:"aggregation"`
	// TimeLimit is the per-attempt countdown for this movement. Zero means
	// the policy default applies.
	TimeLimit time.Duration `json:"time_limit"`
	CreatedAt time.Time     `json:"created_at"`
}
