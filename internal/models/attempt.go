package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus defines where an attempt is in its lifecycle.
type AttemptStatus string

const (
	AttemptStatusWaiting    AttemptStatus = "WAITING"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusFinished   AttemptStatus = "FINISHED"
)

// AttemptResult defines the scored outcome of a finished attempt.
type AttemptResult string

const (
	AttemptResultNone     AttemptResult = ""
	AttemptResultGoodLift AttemptResult = "GOOD_LIFT"
	AttemptResultNoLift   AttemptResult = "NO_LIFT"
)

// Attempt represents one scored try at a movement by one athlete.
// Within a flight, attempts are totally ordered by (lifting order asc,
// requested weight asc, attempt number asc); across flights, strictly by
// flight order.
type Attempt struct {
	ID              uuid.UUID     `json:"id"`
	CompetitionID   uuid.UUID     `json:"competition_id"`
	MovementID      uuid.UUID     `json:"movement_id"`
	FlightID        uuid.UUID     `json:"flight_id"`
	AthleteID       uuid.UUID     `json:"athlete_id"`
	EntryID         uuid.UUID     `json:"entry_id"`
	Number          int           `json:"number"` // 1..K attempt slot
	RequestedWeight float64       `json:"requested_weight"`
	ActualWeight    *float64      `json:"actual_weight,omitempty"`
	Result          AttemptResult `json:"result,omitempty"`
	Status          AttemptStatus `json:"status"`
	FlightOrder     int           `json:"flight_order"`
	LiftingOrder    *int          `json:"lifting_order,omitempty"` // nil until computed
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Resolved reports whether the attempt has already produced an outcome.
func (a *Attempt) Resolved() bool {
	return a.Status == AttemptStatusFinished
}
