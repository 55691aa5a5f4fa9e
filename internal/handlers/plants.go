package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"plantcare/internal/auth"
	"plantcare/internal/models"
	"plantcare/internal/reminder"
)

type SnoozeResponse struct {
	Plant   *models.Plant   `json:"plant"`
	Rebuild reminder.Result `json:"rebuild"`
}

// authorizePlant loads the plant and checks the caller belongs to its
// household. Strangers get the same 404 as a missing plant.
func (h *Handler) authorizePlant(w http.ResponseWriter, r *http.Request) (*models.Plant, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	plant, err := h.plantStore.Get(r.Context(), chi.URLParam(r, "plantID"))
	if err != nil {
		h.fail(w, r, "failed to load plant", err)
		return nil, false
	}

	member, err := h.members.IsMember(r.Context(), plant.HouseholdID, uid)
	if err != nil {
		h.fail(w, r, "failed to check membership", err)
		return nil, false
	}
	if !member {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return plant, true
}

func (h *Handler) Snooze(w http.ResponseWriter, r *http.Request) {
	var req models.SnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	plant, ok := h.authorizePlant(w, r)
	if !ok {
		return
	}

	until := h.now().AddDate(0, 0, req.Days)
	if req.Until != nil {
		until = *req.Until
	}

	updated, res, err := h.reminders.Snooze(r.Context(), plant.ID, until)
	if err != nil {
		h.fail(w, r, "failed to snooze plant", err)
		return
	}
	writeJSON(w, http.StatusOK, SnoozeResponse{Plant: updated, Rebuild: res})
}

func (h *Handler) ClearSnooze(w http.ResponseWriter, r *http.Request) {
	plant, ok := h.authorizePlant(w, r)
	if !ok {
		return
	}

	updated, res, err := h.reminders.ClearSnooze(r.Context(), plant.ID)
	if err != nil {
		h.fail(w, r, "failed to clear snooze", err)
		return
	}
	writeJSON(w, http.StatusOK, SnoozeResponse{Plant: updated, Rebuild: res})
}
