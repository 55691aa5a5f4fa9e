// Package app wires the engine's components from configuration. The api,
// worker and carectl binaries share it.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"plantcare/internal/catalog"
	"plantcare/internal/config"
	"plantcare/internal/delivery"
	"plantcare/internal/metrics"
	"plantcare/internal/reminder"
	"plantcare/internal/sender"
	"plantcare/internal/stats"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
	"plantcare/internal/worker"
)

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Store      *storage.GormStorage
	Redis      *redis.Client
	Catalog    *catalog.Repository
	Classifier urgency.Classifier
	Reminders  *reminder.Registry
	Sender     *sender.Sender
	Stats      *stats.Aggregator
	Guard      worker.DispatchGuard
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := storage.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	migrate := storage.MigrateDeliveryLog
	if cfg.DatabaseDriver == "sqlite" {
		migrate = storage.AutoMigrate
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	store := storage.NewGormStorage(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Store:      store,
		Catalog:    catalog.NewRepository(store, cfg.SnapshotTTL, cfg.SnapshotTTL*2),
		Classifier: urgency.NewClassifier(cfg.SoonThresholdDays, cfg.DeviceLocation),
		Metrics:    m,
		Gatherer:   reg,
	}

	alertsFor := func(string) reminder.AlertScheduler { return storage.NewMemoryAlertStore(time.Now) }
	a.Guard = storage.NewMemoryDispatchGuard(cfg.SweepInterval)
	if cfg.RedisAddr != "" {
		client, err := storage.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		alertsFor = func(householdID string) reminder.AlertScheduler {
			return storage.NewRedisAlertStore(client, householdID)
		}
		a.Guard = storage.NewRedisDispatchGuard(client)
	} else {
		logger.Warn("REDIS_ADDR not set, pending alerts and dispatch claims are kept in memory", "module", "app")
	}

	a.Reminders = reminder.NewRegistry(a.Catalog, store, alertsFor, a.ReminderConfig(), m, logger)

	a.Sender = sender.New(store, store, a.channels(), m, logger)
	a.Stats = stats.NewAggregator(a.Catalog, store, store, a.Classifier, cfg.StatsLocation,
		stats.StreakPolicy{GraceDays: cfg.StreakGraceDays}, logger)

	return a, nil
}

func (a *App) ReminderConfig() reminder.Config {
	return reminder.Config{
		SoonThresholdDays: a.Config.SoonThresholdDays,
		LookaheadDays:     a.Config.LookaheadDays,
		AlertHour:         a.Config.AlertHour,
		AlertMinute:       a.Config.AlertMinute,
		OverdueDelay:      a.Config.OverdueAlertDelay,
		Location:          a.Config.DeviceLocation,
	}
}

func (a *App) channels() []delivery.Channel {
	chs := []delivery.Channel{delivery.NewPushoverChannel(a.Config.DeliveryTimeout)}
	if a.Config.SMTPHost == "" {
		a.Logger.Info("SMTP_HOST not set, email channel disabled", "module", "app")
		return chs
	}
	return append(chs, delivery.NewEmailChannel(delivery.SMTPServer{
		Host: a.Config.SMTPHost,
		Port: a.Config.SMTPPort,
		From: a.Config.EmailFrom,
	}, a.Config.DeliveryTimeout))
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
