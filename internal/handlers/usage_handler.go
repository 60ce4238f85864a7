package handlers

import (
	"net/http"

	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/services"
)

type UsageHandler struct {
	usage *services.UsageService
}

func NewUsageHandler(usage *services.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

func (h *UsageHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.UsageReport
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.usage.Report(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err, "Failed to record usage")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sum, err := h.usage.Summary(r.Context(), userID, r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, r, err, "Failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sum))
}
