package handlers

import (
	"net/http"

	"plantcare/internal/auth"
	"plantcare/internal/models"
	"plantcare/internal/storage"
)

func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.notifier.SendTest(r.Context(), uid)
	if err != nil {
		h.fail(w, r, "failed to send test notification", err)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "no notification channel is configured", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) DeliveryLog(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, ok := queryInt(r, "limit", storage.DefaultLogLimit, 1, 500)
	if !ok {
		http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}

	entries, err := h.deliveryLog.ListRecentForUser(r.Context(), uid, limit)
	if err != nil {
		h.fail(w, r, "failed to list delivery log", err)
		return
	}
	if entries == nil {
		entries = []models.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type ChannelSummary struct {
	Channel   models.Channel `json:"channel"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	LastError string         `json:"last_error,omitempty"`
}

// DeliverySummary counts outcomes per channel over the caller's recent log.
func (h *Handler) DeliverySummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, ok := queryInt(r, "limit", storage.DefaultLogLimit, 1, 500)
	if !ok {
		http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}

	entries, err := h.deliveryLog.ListRecentForUser(r.Context(), uid, limit)
	if err != nil {
		h.fail(w, r, "failed to list delivery log", err)
		return
	}
	writeJSON(w, http.StatusOK, Summarize(entries))
}

// Summarize expects entries newest first, as the delivery log returns them.
func Summarize(entries []models.NotificationLogEntry) []ChannelSummary {
	out := []ChannelSummary{
		{Channel: models.ChannelPush},
		{Channel: models.ChannelEmail},
	}
	for _, e := range entries {
		var s *ChannelSummary
		for i := range out {
			if out[i].Channel == e.Channel {
				s = &out[i]
			}
		}
		if s == nil {
			continue
		}
		if e.Success {
			s.Succeeded++
			continue
		}
		s.Failed++
		if s.LastError == "" {
			s.LastError = e.Error
		}
	}
	return out
}
