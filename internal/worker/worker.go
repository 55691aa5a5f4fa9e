// Package worker runs the reminder sweep and delivers the jobs it produces.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/rabbitmq"

	"plantcare/internal/models"
	"plantcare/internal/urgency"
)

// Notifier is the part of the sender the worker needs.
type Notifier interface {
	SendForPlant(ctx context.Context, userID string, plant models.Plant, st urgency.State) ([]models.NotificationLogEntry, error)
}

type Consumer interface {
	StartConsumer(ctx context.Context, handler rabbitmq.MessageHandler) error
}

// DefaultMaxJobAge drops jobs that sat in the queue past the day they were
// made for.
const DefaultMaxJobAge = 24 * time.Hour

func deliver(ctx context.Context, n Notifier, job models.DispatchJob) error {
	plant := models.Plant{
		ID:           job.PlantID,
		HouseholdID:  job.HouseholdID,
		Name:         job.PlantName,
		LocationName: job.Location,
	}
	st := urgency.State{Status: urgency.Status(job.Status), DaysUntil: job.DaysUntil}
	_, err := n.SendForPlant(ctx, job.UserID, plant, st)
	return err
}

// DirectDispatcher sends in-process when no broker is configured.
type DirectDispatcher struct {
	notifier Notifier
}

func NewDirectDispatcher(n Notifier) *DirectDispatcher {
	return &DirectDispatcher{notifier: n}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, job models.DispatchJob) error {
	return deliver(ctx, d.notifier, job)
}

// Processor consumes dispatch jobs from the queue. Every well-formed message
// is acked whatever the delivery outcome; the delivery log is the record.
type Processor struct {
	consumer Consumer
	notifier Notifier
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(consumer Consumer, n Notifier, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		consumer: consumer,
		notifier: n,
		maxAge:   DefaultMaxJobAge,
		logger:   logger.With("module", "processor"),
		now:      time.Now,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	if err := p.consumer.StartConsumer(ctx, p.handleMessage); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	p.logger.Info("processor started")
	return nil
}

func (p *Processor) handleMessage(ctx context.Context, delivery amqp091.Delivery) error {
	var job models.DispatchJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		p.logger.Error("failed to unmarshal dispatch job", "error", err)
		return fmt.Errorf("failed to unmarshal dispatch job: %w", err)
	}

	if !job.SnapshotAt.IsZero() && p.now().Sub(job.SnapshotAt) > p.maxAge {
		p.logger.Warn("dropping stale dispatch job", "plant_id", job.PlantID, "user_id", job.UserID, "snapshot_at", job.SnapshotAt)
		return nil
	}

	if err := deliver(ctx, p.notifier, job); err != nil {
		p.logger.Error("failed to send reminder", "plant_id", job.PlantID, "user_id", job.UserID, "error", err)
	}
	return nil
}
