package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"plantcare/internal/catalog"
	"plantcare/internal/metrics"
	"plantcare/internal/models"
	"plantcare/internal/storage"
)

var ErrSnoozeInPast = errors.New("snooze must end in the future")

// SnapshotSource serves plant lists and can be told to reload a household.
type SnapshotSource interface {
	PlantLister
	Refresh(ctx context.Context, householdID string) (*catalog.Snapshot, error)
}

// AlertStoreFactory returns the alert store a household's alerts live in.
type AlertStoreFactory func(householdID string) AlertScheduler

// Registry owns one Scheduler per household so rebuilds are single-flight per
// alert store, and applies snooze changes followed by a rebuild.
type Registry struct {
	mu         sync.Mutex
	schedulers map[string]*Scheduler

	snapshots SnapshotSource
	plants    storage.PlantStore
	alertsFor AlertStoreFactory
	cfg       Config
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

func NewRegistry(snapshots SnapshotSource, plants storage.PlantStore, alertsFor AlertStoreFactory, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		schedulers: make(map[string]*Scheduler),
		snapshots:  snapshots,
		plants:     plants,
		alertsFor:  alertsFor,
		cfg:        cfg,
		metrics:    m,
		log:        logger,
		now:        time.Now,
	}
}

func (r *Registry) Scheduler(householdID string) *Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedulers[householdID]
	if !ok {
		s = NewScheduler(householdID, r.snapshots, r.alertsFor(householdID), r.cfg, r.metrics, r.log)
		s.now = r.now
		r.schedulers[householdID] = s
	}
	return s
}

// Alerts returns the household's alert store.
func (r *Registry) Alerts(householdID string) AlertScheduler {
	return r.Scheduler(householdID).alerts
}

// Rebuild rebuilds a household's alerts. The scheduler reloads the snapshot
// inside its rebuild lock.
func (r *Registry) Rebuild(ctx context.Context, householdID string) (Result, error) {
	return r.Scheduler(householdID).Rebuild(ctx)
}

func (r *Registry) Snooze(ctx context.Context, plantID string, until time.Time) (*models.Plant, Result, error) {
	if !until.After(r.now()) {
		return nil, Result{}, ErrSnoozeInPast
	}
	return r.setSnooze(ctx, plantID, &until)
}

func (r *Registry) ClearSnooze(ctx context.Context, plantID string) (*models.Plant, Result, error) {
	return r.setSnooze(ctx, plantID, nil)
}

func (r *Registry) setSnooze(ctx context.Context, plantID string, until *time.Time) (*models.Plant, Result, error) {
	if err := r.plants.SetSnooze(ctx, plantID, until); err != nil {
		return nil, Result{}, fmt.Errorf("failed to update snooze: %w", err)
	}

	plant, err := r.plants.Get(ctx, plantID)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to reload plant: %w", err)
	}

	res, err := r.Rebuild(ctx, plant.HouseholdID)
	if err != nil {
		// the snooze is stored; the next rebuild picks it up
		r.log.Warn("rebuild after snooze failed", "module", "reminder", "plant_id", plantID, "error", err)
	}
	return plant, res, nil
}
