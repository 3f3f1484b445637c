package models

import (
	"time"

	"github.com/google/uuid"
)

// RefereeDecision is a single referee's vote on an attempt. A re-vote by
// the same referee replaces the earlier one.
type RefereeDecision struct {
	AttemptID uuid.UUID     `json:"attempt_id"`
	RefereeID uuid.UUID     `json:"referee_id"`
	Seat      string        `json:"seat,omitempty"` // left, center, right
	Decision  AttemptResult `json:"decision"`
	Card      string        `json:"card,omitempty"` // optional infraction card color
	DecidedAt time.Time     `json:"decided_at"`
}
