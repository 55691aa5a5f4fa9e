// Package reminder rebuilds a household's on-device alert set from plant state.
//
// Every rebuild cancels all plant alerts and schedules them again from scratch,
// so stored alerts cannot drift from the plants they describe. Rebuilds of the
// same household never overlap.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"plantcare/internal/catalog"
	"plantcare/internal/metrics"
	"plantcare/internal/models"
	"plantcare/internal/urgency"
)

// AlertScheduler is the platform's alert store. Scheduling an id that is
// already pending replaces it.
type AlertScheduler interface {
	Schedule(ctx context.Context, alert models.Alert) error
	Cancel(ctx context.Context, ids []string) error
	ListPending(ctx context.Context) ([]string, error)
}

type PlantLister interface {
	List(ctx context.Context, householdID string) ([]models.Plant, error)
}

// refresher is implemented by plant sources that cache. The scheduler reloads
// them while holding the rebuild lock, so a rebuild always reads the store
// after every mutation its ticket covers.
type refresher interface {
	Refresh(ctx context.Context, householdID string) (*catalog.Snapshot, error)
}

const AlertIDPrefix = "plant-"

func AlertID(plantID string) string { return AlertIDPrefix + plantID }

type Config struct {
	SoonThresholdDays int
	LookaheadDays     int
	AlertHour         int
	AlertMinute       int
	// OverdueDelay is how soon after a rebuild an immediate alert fires.
	OverdueDelay time.Duration
	Location     *time.Location
}

func DefaultConfig() Config {
	return Config{
		SoonThresholdDays: urgency.DefaultSoonThresholdDays,
		LookaheadDays:     30,
		AlertHour:         8,
		AlertMinute:       0,
		OverdueDelay:      5 * time.Second,
		Location:          time.Local,
	}
}

type Result struct {
	Cancelled       int  `json:"cancelled"`
	Scheduled       int  `json:"scheduled"`
	Snoozed         int  `json:"snoozed"`
	BeyondLookahead int  `json:"beyond_lookahead"`
	Failed          int  `json:"failed"`
	Coalesced       bool `json:"coalesced,omitempty"`
}

type Scheduler struct {
	householdID string
	plants      PlantLister
	alerts      AlertScheduler
	classifier  urgency.Classifier
	cfg         Config
	metrics     *metrics.Metrics
	log         *slog.Logger
	now         func() time.Time

	sem *semaphore.Weighted
	// requested numbers rebuild calls. lastStarted and lastResult are only
	// touched while holding sem.
	requested   atomic.Uint64
	lastStarted uint64
	lastResult  Result
}

func NewScheduler(householdID string, plants PlantLister, alerts AlertScheduler, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		householdID: householdID,
		plants:      plants,
		alerts:      alerts,
		classifier:  urgency.NewClassifier(cfg.SoonThresholdDays, cfg.Location),
		cfg:         cfg,
		metrics:     m,
		log:         logger.With("module", "reminder", "household_id", householdID),
		now:         time.Now,
		sem:         semaphore.NewWeighted(1),
	}
}

// Rebuild waits for any rebuild in progress. If a rebuild that started after
// this call arrived has already finished, its result is returned instead of
// running again.
func (s *Scheduler) Rebuild(ctx context.Context) (Result, error) {
	ticket := s.requested.Add(1)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("failed to wait for rebuild: %w", err)
	}
	defer s.sem.Release(1)

	if s.lastStarted >= ticket {
		res := s.lastResult
		res.Coalesced = true
		s.metrics.RecordRebuild("coalesced")
		return res, nil
	}

	started := s.requested.Load()
	res, err := s.rebuild(ctx)
	if err != nil {
		s.metrics.RecordRebuild("failed")
		return res, err
	}

	s.lastStarted = started
	s.lastResult = res
	s.metrics.RecordRebuild("completed")
	return res, nil
}

func (s *Scheduler) rebuild(ctx context.Context) (Result, error) {
	var res Result

	plants, err := s.listPlants(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list plants: %w", err)
	}

	pending, err := s.alerts.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list pending alerts: %w", err)
	}

	stale := make([]string, 0, len(pending))
	for _, id := range pending {
		if strings.HasPrefix(id, AlertIDPrefix) {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.alerts.Cancel(ctx, stale); err != nil {
			// scheduling replaces by id, so surviving alerts are overwritten below
			s.log.Warn("failed to cancel pending alerts", "count", len(stale), "error", err)
		} else {
			res.Cancelled = len(stale)
		}
	}

	now := s.now()
	seen := make(map[string]bool, len(plants))
	for _, p := range plants {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		st := s.classifier.ClassifyPlant(p, now)
		if st.Status == urgency.StatusSnoozed {
			res.Snoozed++
			continue
		}
		if st.DaysUntil > s.cfg.LookaheadDays {
			res.BeyondLookahead++
			continue
		}

		alert := s.alertFor(p, st, now)
		if err := s.alerts.Schedule(ctx, alert); err != nil {
			s.log.Warn("alert rejected", "plant_id", p.ID, "error", err)
			s.metrics.RecordAlertFailure()
			res.Failed++
			continue
		}

		kind := "dated"
		if alert.Trigger.Immediate {
			kind = "immediate"
		}
		s.metrics.RecordAlert(kind)
		res.Scheduled++
	}

	s.log.Info("reminders rebuilt",
		"cancelled", res.Cancelled,
		"scheduled", res.Scheduled,
		"snoozed", res.Snoozed,
		"beyond_lookahead", res.BeyondLookahead,
		"failed", res.Failed)
	return res, nil
}

func (s *Scheduler) listPlants(ctx context.Context) ([]models.Plant, error) {
	r, ok := s.plants.(refresher)
	if !ok {
		return s.plants.List(ctx, s.householdID)
	}
	snap, err := r.Refresh(ctx, s.householdID)
	if err != nil {
		return nil, err
	}
	return snap.Plants, nil
}

func (s *Scheduler) alertFor(p models.Plant, st urgency.State, now time.Time) models.Alert {
	alert := models.Alert{
		ID:          AlertID(p.ID),
		HouseholdID: p.HouseholdID,
		PlantID:     p.ID,
	}

	if st.Status == urgency.StatusOverdue {
		alert.Title, alert.Body = urgency.Describe(p, st)
		alert.Trigger = models.AlertTrigger{At: now.Add(s.cfg.OverdueDelay), Immediate: true}
		alert.Urgent = true
		return alert
	}

	// the copy is read on the due date
	atFire := st
	atFire.DaysUntil = 0
	alert.Title, alert.Body = urgency.Describe(p, atFire)

	y, m, d := st.NextDue.In(s.cfg.Location).Date()
	at := time.Date(y, m, d, s.cfg.AlertHour, s.cfg.AlertMinute, 0, 0, s.cfg.Location)
	if !at.After(now) {
		alert.Trigger = models.AlertTrigger{At: now.Add(s.cfg.OverdueDelay), Immediate: true}
		return alert
	}
	alert.Trigger = models.AlertTrigger{At: at}
	return alert
}
