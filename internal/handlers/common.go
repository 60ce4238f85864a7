package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/focusguard/backend/internal/middleware"
	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/services"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return "", false
	}
	return userID, true
}

// writeError maps service errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a 500 with fallback as the message.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(verr.Fields))
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found"))
	case errors.Is(err, services.ErrDuplicateSite),
		errors.Is(err, services.ErrSessionActive),
		errors.Is(err, services.ErrSessionEnded):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse(err.Error()))
	case errors.Is(err, services.ErrInvalidDay):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(err.Error()))
	default:
		slog.Error(fallback, "error", err, "path", r.URL.Path, "user_id", middleware.GetUserID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(fallback))
	}
}
