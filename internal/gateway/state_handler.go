package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StateProvider defines what the HTTP handlers need from the live state.
type StateProvider interface {
	NextAttempt(ctx context.Context, competitionID, athleteID uuid.UUID) (*NextAttemptView, error)
	Timers(competitionID uuid.UUID) map[string]TimerView
}

// StateHandler serves the polling query surface: next-attempt views and
// live timer listings.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// HandleNextAttempt handles
// GET /api/competitions/{id}/athletes/{athleteID}/next-attempt.
func (h *StateHandler) HandleNextAttempt(w http.ResponseWriter, r *http.Request) {
	competitionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid competition id", http.StatusBadRequest)
		return
	}
	athleteID, err := uuid.Parse(r.PathValue("athleteID"))
	if err != nil {
		http.Error(w, "invalid athlete id", http.StatusBadRequest)
		return
	}

	view, err := h.provider.NextAttempt(r.Context(), competitionID, athleteID)
	if err != nil {
		log.Error().
			Err(err).
			Str("competition_id", competitionID.String()).
			Str("athlete_id", athleteID.String()).
			Msg("failed to resolve next attempt")
		http.Error(w, "failed to resolve next attempt", http.StatusInternalServerError)
		return
	}

	writeJSON(w, view)
}

// HandleTimers handles GET /api/competitions/{id}/timers.
func (h *StateHandler) HandleTimers(w http.ResponseWriter, r *http.Request) {
	competitionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid competition id", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.provider.Timers(competitionID))
}

// RegisterStateRoutes registers the query routes with an HTTP mux.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/competitions/{id}/athletes/{athleteID}/next-attempt", h.HandleNextAttempt)
	mux.HandleFunc("GET /api/competitions/{id}/timers", h.HandleTimers)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
