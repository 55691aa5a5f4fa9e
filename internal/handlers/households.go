package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"plantcare/internal/models"
	"plantcare/internal/urgency"
)

type PlantUrgency struct {
	Plant models.Plant  `json:"plant"`
	State urgency.State `json:"state"`
}

func (h *Handler) Urgency(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "householdID")
	plants, err := h.plants.List(r.Context(), householdID)
	if err != nil {
		h.fail(w, r, "failed to list plants", err)
		return
	}

	now := h.now()
	out := make([]PlantUrgency, 0, len(plants))
	for _, p := range plants {
		out = append(out, PlantUrgency{Plant: p, State: h.classifier.ClassifyPlant(p, now)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(r, "days", h.upcomingDays, 0, 60)
	if !ok {
		http.Error(w, "days must be between 0 and 60", http.StatusBadRequest)
		return
	}

	householdID := chi.URLParam(r, "householdID")
	plants, err := h.plants.List(r.Context(), householdID)
	if err != nil {
		h.fail(w, r, "failed to list plants", err)
		return
	}
	writeJSON(w, http.StatusOK, h.classifier.Upcoming(plants, h.now(), days))
}

func (h *Handler) RebuildReminders(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "householdID")
	res, err := h.reminders.Rebuild(r.Context(), householdID)
	if err != nil {
		h.fail(w, r, "failed to rebuild reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) PendingAlerts(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "householdID")
	ids, err := h.reminders.Alerts(householdID).ListPending(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list pending alerts", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": ids})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "householdID")
	st, err := h.stats.Stats(r.Context(), householdID)
	if err != nil {
		h.fail(w, r, "failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
