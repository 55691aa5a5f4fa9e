// Package queue carries dispatch jobs from the sweep to the processors over
// RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"

	"plantcare/internal/models"
)

const (
	Exchange    = "plantcare"
	DispatchKey = "dispatch"
	// DispatchQueue is bound to Exchange with DispatchKey.
	DispatchQueue = "plantcare.dispatch"
)

type Manager struct {
	client    *rabbitmq.RabbitClient
	publisher *rabbitmq.Publisher
	consumer  *rabbitmq.Consumer
	workers   int
	logger    *slog.Logger
}

func NewManager(url string, workers int, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	config := rabbitmq.ClientConfig{
		URL:       url,
		Heartbeat: 10 * time.Second,
		ReconnectStrat: retry.Strategy{
			Attempts: 10,
			Delay:    2 * time.Second,
			Backoff:  2,
		},
		ProducingStrat: retry.Strategy{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
			Backoff:  2,
		},
		ConsumingStrat: retry.Strategy{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
			Backoff:  2,
		},
	}

	client, err := rabbitmq.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	if err := declareTopology(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to declare dispatch topology: %w", err)
	}

	m := &Manager{
		client:    client,
		publisher: rabbitmq.NewPublisher(client, Exchange, "application/json"),
		workers:   workers,
		logger:    logger.With("module", "queue"),
	}
	m.logger.Info("RabbitMQ manager initialized", "exchange", Exchange, "queue", DispatchQueue)
	return m, nil
}

func declareTopology(client *rabbitmq.RabbitClient) error {
	if err := client.DeclareExchange(Exchange, "direct", true, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err := client.DeclareQueue(
		DispatchQueue,
		Exchange,
		DispatchKey,
		true,
		false,
		true,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dispatch queue: %w", err)
	}
	return nil
}

// Dispatch publishes one job. The client's producing strategy covers
// transient broker errors; the reminder itself is never re-sent.
func (m *Manager) Dispatch(ctx context.Context, job models.DispatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch job: %w", err)
	}

	if err := m.publisher.Publish(ctx, body, DispatchKey); err != nil {
		return fmt.Errorf("failed to publish dispatch job: %w", err)
	}

	m.logger.Debug("published dispatch job", "household_id", job.HouseholdID, "plant_id", job.PlantID, "user_id", job.UserID)
	return nil
}

func (m *Manager) StartConsumer(ctx context.Context, handler rabbitmq.MessageHandler) error {
	config := rabbitmq.ConsumerConfig{
		Queue:         DispatchQueue,
		ConsumerTag:   "plantcare-dispatch",
		AutoAck:       false,
		Workers:       m.workers,
		PrefetchCount: m.workers * 4,
		Ask: rabbitmq.AskConfig{
			Multiple: false,
		},
		// a failed reminder is terminal; requeueing would re-send it
		Nack: rabbitmq.NackConfig{
			Multiple: false,
			Requeue:  false,
		},
		Args: nil,
	}

	m.consumer = rabbitmq.NewConsumer(m.client, config, handler)

	go func() {
		if err := m.consumer.Start(ctx); err != nil {
			m.logger.Error("consumer stopped", "error", err)
		}
	}()

	m.logger.Info("consumer started", "queue", DispatchQueue, "workers", m.workers)
	return nil
}

func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
