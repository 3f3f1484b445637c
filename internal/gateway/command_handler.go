package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/liftline/liftline/internal/attempt"
	"github.com/liftline/liftline/internal/models"
)

// Coordinator defines what the command handlers need from the attempt
// lifecycle coordinator.
type Coordinator interface {
	StartAttempt(ctx context.Context, competitionID, attemptID uuid.UUID) error
	RecordResult(ctx context.Context, competitionID, attemptID uuid.UUID, result models.AttemptResult) error
	AbortAttempt(ctx context.Context, competitionID, attemptID uuid.UUID) error
	UpdateRequestedWeight(ctx context.Context, competitionID, attemptID uuid.UUID, weight float64) error
	SubmitRefereeDecision(ctx context.Context, competitionID, attemptID, refereeID uuid.UUID, seat string, decision models.AttemptResult) (*models.AttemptResult, error)
}

// CommandHandler serves the meet-control surface: starting attempts,
// recording results, weight changes and referee votes.
type CommandHandler struct {
	coordinator Coordinator
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(coordinator Coordinator) *CommandHandler {
	return &CommandHandler{coordinator: coordinator}
}

// HandleStartAttempt handles
// POST /api/competitions/{id}/attempts/{attemptID}/start.
func (h *CommandHandler) HandleStartAttempt(w http.ResponseWriter, r *http.Request) {
	competitionID, attemptID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.StartAttempt(r.Context(), competitionID, attemptID); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecordResult handles
// POST /api/competitions/{id}/attempts/{attemptID}/result.
func (h *CommandHandler) HandleRecordResult(w http.ResponseWriter, r *http.Request) {
	competitionID, attemptID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	var body struct {
		Result models.AttemptResult `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.coordinator.RecordResult(r.Context(), competitionID, attemptID, body.Result); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAbortAttempt handles
// POST /api/competitions/{id}/attempts/{attemptID}/abort.
func (h *CommandHandler) HandleAbortAttempt(w http.ResponseWriter, r *http.Request) {
	competitionID, attemptID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.AbortAttempt(r.Context(), competitionID, attemptID); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateWeight handles
// PUT /api/competitions/{id}/attempts/{attemptID}/weight.
func (h *CommandHandler) HandleUpdateWeight(w http.ResponseWriter, r *http.Request) {
	competitionID, attemptID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	var body struct {
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.coordinator.UpdateRequestedWeight(r.Context(), competitionID, attemptID, body.Weight); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefereeDecision handles
// POST /api/competitions/{id}/attempts/{attemptID}/decisions.
func (h *CommandHandler) HandleRefereeDecision(w http.ResponseWriter, r *http.Request) {
	competitionID, attemptID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	var body struct {
		RefereeID uuid.UUID            `json:"referee_id"`
		Seat      string               `json:"seat"`
		Decision  models.AttemptResult `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	final, err := h.coordinator.SubmitRefereeDecision(r.Context(), competitionID, attemptID, body.RefereeID, body.Seat, body.Decision)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"final":  final != nil,
		"result": final,
	})
}

// RegisterCommandRoutes registers the control routes with an HTTP mux.
func (h *CommandHandler) RegisterCommandRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/competitions/{id}/attempts/{attemptID}/start", h.HandleStartAttempt)
	mux.HandleFunc("POST /api/competitions/{id}/attempts/{attemptID}/result", h.HandleRecordResult)
	mux.HandleFunc("POST /api/competitions/{id}/attempts/{attemptID}/abort", h.HandleAbortAttempt)
	mux.HandleFunc("PUT /api/competitions/{id}/attempts/{attemptID}/weight", h.HandleUpdateWeight)
	mux.HandleFunc("POST /api/competitions/{id}/attempts/{attemptID}/decisions", h.HandleRefereeDecision)
}

func pathIDs(w http.ResponseWriter, r *http.Request) (competitionID, attemptID uuid.UUID, ok bool) {
	competitionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid competition id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	attemptID, err = uuid.Parse(r.PathValue("attemptID"))
	if err != nil {
		http.Error(w, "invalid attempt id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return competitionID, attemptID, true
}

// writeCommandError maps coordinator errors to HTTP statuses: business
// rejections are client errors, everything else is a 500.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attempt.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, attempt.ErrAlreadyActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, attempt.ErrTooLateToChange), errors.Is(err, attempt.ErrInconsistentState):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Msg("command failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
