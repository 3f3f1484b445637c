package models

import (
	"time"

	"github.com/google/uuid"
)

// Aggregation defines how finished attempts fold into a score.
type Aggregation string

const (
	AggregationMax  Aggregation = "MAX"  // best single attempt
	AggregationSum  Aggregation = "SUM"  // total over attempts
	AggregationTime Aggregation = "TIME" // lowest elapsed, timed events
)

// Score is the derived standing for one (athlete, movement entry).
// Recomputed after every decision; never authored directly.
type Score struct {
	EntryID    uuid.UUID `json:"entry_id"`
	AthleteID  uuid.UUID `json:"athlete_id"`
	MovementID uuid.UUID `json:"movement_id"`
	Best       float64   `json:"best"`
	Total      float64   `json:"total"`
	Rank       int       `json:"rank"`
	ComputedAt time.Time `json:"computed_at"`
}
