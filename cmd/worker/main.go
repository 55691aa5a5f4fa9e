package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"plantcare/internal/app"
	"plantcare/internal/config"
	"plantcare/internal/queue"
	"plantcare/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var dispatcher worker.Dispatcher = worker.NewDirectDispatcher(a.Sender)
	if cfg.AMQPURL != "" {
		queueManager, err := queue.NewManager(cfg.AMQPURL, cfg.QueueWorkers, logger)
		if err != nil {
			logger.Error("failed to create RabbitMQ manager", "error", err)
			os.Exit(1)
		}
		defer queueManager.Close()

		processor := worker.NewProcessor(queueManager, a.Sender, logger)
		if err := processor.Start(ctx); err != nil {
			logger.Error("failed to start processor", "error", err)
			os.Exit(1)
		}
		dispatcher = queueManager
	} else {
		logger.Warn("AMQP_URL not set, reminders are sent in-process")
	}

	sweep := worker.NewSweep(a.Catalog, a.Store, a.Guard, dispatcher, a.Classifier, cfg.SweepInterval, a.Metrics, logger)
	sweep.Start(ctx)

	logger.Info("worker started")
	<-ctx.Done()
	sweep.Stop()
	logger.Info("worker stopped")
}
