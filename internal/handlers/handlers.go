// Package handlers exposes the care engine over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"plantcare/internal/models"
	"plantcare/internal/reminder"
	"plantcare/internal/stats"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

// PlantLister is the catalog snapshot view of a household's plants.
type PlantLister interface {
	List(ctx context.Context, householdID string) ([]models.Plant, error)
}

type Notifier interface {
	SendTest(ctx context.Context, userID string) ([]models.NotificationLogEntry, error)
}

type Deps struct {
	Plants       PlantLister
	PlantStore   storage.PlantStore
	Members      storage.MemberStore
	DeliveryLog  storage.DeliveryLog
	Reminders    *reminder.Registry
	Stats        *stats.Aggregator
	Notifier     Notifier
	Classifier   urgency.Classifier
	UpcomingDays int
	Logger       *slog.Logger
}

type Handler struct {
	plants       PlantLister
	plantStore   storage.PlantStore
	members      storage.MemberStore
	deliveryLog  storage.DeliveryLog
	reminders    *reminder.Registry
	stats        *stats.Aggregator
	notifier     Notifier
	classifier   urgency.Classifier
	upcomingDays int
	validate     *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
}

func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	upcoming := d.UpcomingDays
	if upcoming <= 0 {
		upcoming = urgency.DefaultUpcomingWindowDays
	}
	return &Handler{
		plants:       d.Plants,
		plantStore:   d.PlantStore,
		members:      d.Members,
		deliveryLog:  d.DeliveryLog,
		reminders:    d.Reminders,
		stats:        d.Stats,
		notifier:     d.Notifier,
		classifier:   d.Classifier,
		upcomingDays: upcoming,
		validate:     validator.New(),
		logger:       logger.With("module", "api"),
		now:          time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps engine errors to status codes. Unexpected errors are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, reminder.ErrSnoozeInPast):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		h.logger.Error(msg, "path", r.URL.Path, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
