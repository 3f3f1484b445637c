package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for competition
// subscriptions.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleCompetitionConnection handles WebSocket connections for one
// competition.
func (h *WebSocketHandler) HandleCompetitionConnection(w http.ResponseWriter, r *http.Request) {
	competitionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid competition id", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, competitionID); err != nil {
		log.Error().
			Err(err).
			Str("competition_id", competitionID.String()).
			Msg("failed to upgrade WebSocket connection")
		// Upgrade already wrote the HTTP error response.
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, competitions := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections":   total,
		"active_competitions": competitions,
	})
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/competitions/{id}", h.HandleCompetitionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
