package broadcast

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies a broadcast event.
type Type string

const (
	TypeTimerUpdate    Type = "timer_update"
	TypeAttemptStarted Type = "attempt_started"
	TypeAttemptUpdate  Type = "attempt_update"
	TypeRankingsUpdate Type = "rankings_update"
	TypeBreakStarted   Type = "break_started"
	TypeBreakEnded     Type = "break_ended"
)

// Event is the envelope every state change leaves the core in. The
// dispatcher publishes events in the exact order they were enqueued, which
// is the order the in-memory transitions committed.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	CompetitionID uuid.UUID       `json:"competition_id"`
	Type          Type            `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// New builds an event envelope around a JSON-marshalable payload.
func New(competitionID uuid.UUID, typ Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		Type:          typ,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}, nil
}
