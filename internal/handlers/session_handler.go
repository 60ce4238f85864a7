package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.StartSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.sessions.Start(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(sess))
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.End(r.Context(), userID, chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, err, "Failed to end session")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sess))
}

func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Active(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sess))
}

// List returns recent sessions, newest first. ?limit= caps the count.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("limit must be a positive integer"))
			return
		}
		limit = n
	}

	sessions, err := h.sessions.List(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err, "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sessions))
}
