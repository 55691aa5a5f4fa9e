package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plantcare/internal/app"
	"plantcare/internal/auth"
	"plantcare/internal/config"
	"plantcare/internal/handlers"
	router "plantcare/internal/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireServer(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	h := handlers.New(handlers.Deps{
		Plants:       a.Catalog,
		PlantStore:   a.Store,
		Members:      a.Store,
		DeliveryLog:  a.Store,
		Reminders:    a.Reminders,
		Stats:        a.Stats,
		Notifier:     a.Sender,
		Classifier:   a.Classifier,
		UpcomingDays: cfg.UpcomingDays,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(cfg, h, auth.NewJWT(cfg.JWTSecret), a.Store, a.Gatherer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("API server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
