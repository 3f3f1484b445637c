package models

import (
	"time"

	"github.com/google/uuid"
)

// Flight is an ordered subgroup of athletes competing together in one
// movement. Read-only during live running except for IsActive.
type Flight struct {
	ID            uuid.UUID `json:"id"`
	CompetitionID uuid.UUID `json:"competition_id"`
	MovementID    uuid.UUID `json:"movement_id"`
	Name          string    `json:"name"`
	Order         int       `json:"order"` // primary cross-flight tie break
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}
