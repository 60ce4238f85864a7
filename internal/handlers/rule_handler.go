package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/focusguard/backend/internal/models"
	"github.com/focusguard/backend/internal/services"
)

type RuleHandler struct {
	rules *services.RuleService
}

func NewRuleHandler(rules *services.RuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

func (h *RuleHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sites, err := h.rules.ListSites(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Failed to list sites")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sites))
}

func (h *RuleHandler) AddSite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.AddSiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	site, err := h.rules.AddSite(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err, "Failed to add site")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(site))
}

func (h *RuleHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.rules.DeleteSite(r.Context(), userID, chi.URLParam(r, "siteId")); err != nil {
		writeError(w, r, err, "Failed to delete site")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.MessageResponse{Message: "Site removed"}))
}

func (h *RuleHandler) ListLimits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limits, err := h.rules.ListLimits(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Failed to list limits")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(limits))
}

func (h *RuleHandler) UpsertLimit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.UpsertLimitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	limit, err := h.rules.UpsertLimit(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err, "Failed to save limit")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(limit))
}

func (h *RuleHandler) DeleteLimit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.rules.DeleteLimit(r.Context(), userID, chi.URLParam(r, "limitId")); err != nil {
		writeError(w, r, err, "Failed to delete limit")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.MessageResponse{Message: "Limit removed"}))
}

func (h *RuleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	schedules, err := h.rules.ListSchedules(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(schedules))
}

func (h *RuleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.ScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sched, err := h.rules.CreateSchedule(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err, "Failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(sched))
}

func (h *RuleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.ScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sched, err := h.rules.UpdateSchedule(r.Context(), userID, chi.URLParam(r, "scheduleId"), &req)
	if err != nil {
		writeError(w, r, err, "Failed to update schedule")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sched))
}

func (h *RuleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.rules.DeleteSchedule(r.Context(), userID, chi.URLParam(r, "scheduleId")); err != nil {
		writeError(w, r, err, "Failed to delete schedule")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.MessageResponse{Message: "Schedule removed"}))
}

func (h *RuleHandler) GetBlockPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, err := h.rules.BlockPage(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Failed to load block page")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(page))
}

func (h *RuleHandler) PutBlockPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.BlockPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	page, err := h.rules.PutBlockPage(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err, "Failed to save block page")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(page))
}
