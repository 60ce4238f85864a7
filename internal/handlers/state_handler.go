package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/realtime"
	"github.com/focusguard/backend/internal/services"
)

type StateHandler struct {
	state *services.BlockStateService
	hub   *realtime.Hub
}

func NewStateHandler(state *services.BlockStateService, hub *realtime.Hub) *StateHandler {
	return &StateHandler{state: state, hub: hub}
}

// Check answers whether ?url= may be loaded right now.
func (h *StateHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"url": "URL is required"}))
		return
	}

	res, err := h.state.Check(r.Context(), userID, target)
	if err != nil {
		writeError(w, r, err, "Failed to evaluate URL")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

// State returns the full snapshot. The snapshot version doubles as an ETag
// so polling clients get 304 when nothing changed.
func (h *StateHandler) State(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	snap, err := h.state.Snapshot(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Failed to build state")
		return
	}

	etag := `"` + snap.Version + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(snap))
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if c == etag || c == "*" {
			return true
		}
	}
	return false
}

// WebSocket upgrades to a push channel of snapshots.
func (h *StateHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.hub.ServeWS(w, r, userID); err != nil {
		// the upgrader has already written the error response
		slog.Warn("WebSocket upgrade failed", "error", err, "user_id", userID)
	}
}
