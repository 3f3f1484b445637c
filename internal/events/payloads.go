package events

import (
	"time"
)

// Event payload types shared between the coordinator, broadcast adapter
// and gateway packages.

// TimerUpdatePayload is the payload for a timer_update event.
type TimerUpdatePayload struct {
	TimerID      string    `json:"timer_id"`
	Kind         string    `json:"kind"`
	RemainingSec int       `json:"remaining_sec"`
	DurationSec  int       `json:"duration_sec"`
	State        string    `json:"state"`
	TickedAt     time.Time `json:"ticked_at"`
}

// AttemptUpdatePayload is the payload for an attempt_update event.
type AttemptUpdatePayload struct {
	AttemptID       string     `json:"attempt_id"`
	AthleteID       string     `json:"athlete_id"`
	FlightID        string     `json:"flight_id"`
	Number          int        `json:"number"`
	RequestedWeight float64    `json:"requested_weight"`
	Status          string     `json:"status"`
	Result          string     `json:"result,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// AttemptStartedPayload is the payload for an attempt_started event. It
// carries the countdown duration so displays can run a purely visual
// countdown; the server timer stays authoritative.
type AttemptStartedPayload struct {
	AttemptID    string    `json:"attempt_id"`
	AthleteID    string    `json:"athlete_id"`
	FlightID     string    `json:"flight_id"`
	Number       int       `json:"number"`
	TimeLimitSec int       `json:"time_limit_sec"`
	StartedAt    time.Time `json:"started_at"`
}

// RankingsUpdatePayload is the payload for a rankings_update event.
type RankingsUpdatePayload struct {
	MovementID string        `json:"movement_id"`
	Rankings   []RankedEntry `json:"rankings"`
	ComputedAt time.Time     `json:"computed_at"`
}

// RankedEntry is one row of a rankings_update.
type RankedEntry struct {
	EntryID   string  `json:"entry_id"`
	AthleteID string  `json:"athlete_id"`
	Best      float64 `json:"best"`
	Total     float64 `json:"total"`
	Rank      int     `json:"rank"`
}

// BreakStartedPayload is the payload for a break_started event.
type BreakStartedPayload struct {
	TimerID     string    `json:"timer_id"`
	Kind        string    `json:"kind"` // FLIGHT_BREAK or EVENT_BREAK
	DurationSec int       `json:"duration_sec"`
	StartedAt   time.Time `json:"started_at"`
}

// BreakEndedPayload is the payload for a break_ended event.
type BreakEndedPayload struct {
	TimerID string    `json:"timer_id"`
	Kind    string    `json:"kind"`
	EndedAt time.Time `json:"ended_at"`
}
