// Package sender fans a reminder out over every channel a user has set up and
// writes one delivery log row per attempt.
//
// Channels are independent. A push success next to an email failure is a
// normal outcome, and nothing is retried: a failed attempt lives on only as a
// log row.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"plantcare/internal/delivery"
	"plantcare/internal/metrics"
	"plantcare/internal/models"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

type Sender struct {
	settings storage.SettingsStore
	log      storage.DeliveryLog
	channels []delivery.Channel
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func New(settings storage.SettingsStore, deliveryLog storage.DeliveryLog, channels []delivery.Channel, m *metrics.Metrics, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		settings: settings,
		log:      deliveryLog,
		channels: channels,
		metrics:  m,
		logger:   logger.With("module", "sender"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SendForPlant sends the reminder for a plant in the given state.
func (s *Sender) SendForPlant(ctx context.Context, userID string, plant models.Plant, st urgency.State) ([]models.NotificationLogEntry, error) {
	title, body := urgency.Describe(plant, st)
	return s.Send(ctx, userID, delivery.Message{
		Title:   title,
		Body:    body,
		Urgent:  st.Status == urgency.StatusOverdue,
		PlantID: plant.ID,
	})
}

// SendTest checks a user's credentials. It never looks at plant state.
func (s *Sender) SendTest(ctx context.Context, userID string) ([]models.NotificationLogEntry, error) {
	return s.Send(ctx, userID, delivery.Message{
		Title: "Test notification",
		Body:  "Your plant care reminders are set up correctly.",
	})
}

// Send attempts every eligible channel once. The returned entries are the rows
// written to the delivery log; the error reports settings or log failures, not
// delivery failures.
func (s *Sender) Send(ctx context.Context, userID string, msg delivery.Message) ([]models.NotificationLogEntry, error) {
	settings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification settings: %w", err)
	}

	var plantID *string
	if msg.PlantID != "" {
		id := msg.PlantID
		plantID = &id
	}

	entries := make([]models.NotificationLogEntry, 0, len(s.channels))
	var logErrs []error
	for _, ch := range s.channels {
		name := ch.Name()
		if !delivery.Eligible(name, settings) {
			continue
		}

		start := s.now()
		deliverErr := ch.Deliver(ctx, settings, msg)
		s.metrics.RecordDelivery(string(name), deliverErr == nil, s.now().Sub(start))

		entry := models.NotificationLogEntry{
			ID:      s.newID(),
			UserID:  userID,
			PlantID: plantID,
			Title:   msg.Title,
			Message: msg.Body,
			Channel: name,
			Success: deliverErr == nil,
			SentAt:  start,
		}
		if deliverErr != nil {
			entry.Error = deliverErr.Error()
			s.logger.Warn("delivery failed", "user_id", userID, "channel", name, "plant_id", msg.PlantID, "error", deliverErr)
		} else {
			s.logger.Info("delivered", "user_id", userID, "channel", name, "plant_id", msg.PlantID)
		}

		// a cancelled request must not drop the row for an attempt already made
		if err := s.log.Append(context.WithoutCancel(ctx), &entry); err != nil {
			s.logger.Error("failed to write delivery log", "user_id", userID, "channel", name, "error", err)
			logErrs = append(logErrs, fmt.Errorf("%s: %w", name, err))
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		s.logger.Debug("no eligible channels", "user_id", userID)
	}
	return entries, errors.Join(logErrs...)
}
