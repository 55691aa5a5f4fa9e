package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wb-go/wbf/retry"

	"plantcare/internal/catalog"
	"plantcare/internal/metrics"
	"plantcare/internal/models"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

// SnapshotSource is the catalog as seen by the sweep.
type SnapshotSource interface {
	Households(ctx context.Context) ([]string, error)
	Refresh(ctx context.Context, householdID string) (*catalog.Snapshot, error)
}

// DispatchGuard claims a key at most once per ttl.
type DispatchGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job models.DispatchJob) error
}

const dispatchClaimTTL = 36 * time.Hour

type SweepResult struct {
	Households int `json:"households"`
	Dispatched int `json:"dispatched"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Sweep periodically finds plants that need water today and hands one job per
// household member to the dispatcher.
type Sweep struct {
	snapshots  SnapshotSource
	members    storage.MemberStore
	guard      DispatchGuard
	dispatcher Dispatcher
	classifier urgency.Classifier
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	startOnce sync.Once
	stopChan  chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewSweep(snapshots SnapshotSource, members storage.MemberStore, guard DispatchGuard, dispatcher Dispatcher, classifier urgency.Classifier, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sweep {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweep{
		snapshots:  snapshots,
		members:    members,
		guard:      guard,
		dispatcher: dispatcher,
		classifier: classifier,
		interval:   interval,
		metrics:    m,
		logger:     logger.With("module", "sweep"),
		now:        time.Now,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *Sweep) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
		s.logger.Info("sweep started", "interval", s.interval)
	})
}

// Stop ends the loop and waits for an in-progress pass to return. A sweep
// stopped before Start never runs.
func (s *Sweep) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
	s.logger.Info("sweep stopped")
}

func (s *Sweep) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweep) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	s.logger.Info("sweep finished",
		"households", res.Households,
		"dispatched", res.Dispatched,
		"duplicates", res.Duplicates,
		"failed", res.Failed)
}

var sweepRetry = retry.Strategy{
	Attempts: 3,
	Delay:    100 * time.Millisecond,
	Backoff:  2,
}

// RunOnce performs one pass. Each household's snapshot is refreshed once at the
// start of its turn; a plant watered after that may still get one reminder.
func (s *Sweep) RunOnce(ctx context.Context) (SweepResult, error) {
	start := s.now()
	defer func() { s.metrics.ObserveSweep(s.now().Sub(start)) }()

	var households []string
	err := retry.DoContext(ctx, sweepRetry, func() error {
		var listErr error
		households, listErr = s.snapshots.Households(ctx)
		return listErr
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list households: %w", err)
	}

	var res SweepResult
	for _, hh := range households {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.sweepHousehold(ctx, hh, &res); err != nil {
			s.logger.Error("household sweep failed", "household_id", hh, "error", err)
			continue
		}
		res.Households++
	}
	return res, nil
}

func (s *Sweep) sweepHousehold(ctx context.Context, householdID string, res *SweepResult) error {
	snap, err := s.snapshots.Refresh(ctx, householdID)
	if err != nil {
		return fmt.Errorf("failed to refresh snapshot: %w", err)
	}
	at := s.now()

	type due struct {
		plant models.Plant
		state urgency.State
	}
	var duePlants []due
	for _, p := range snap.Plants {
		st := s.classifier.ClassifyPlant(p, at)
		if st.NeedsWaterToday() {
			duePlants = append(duePlants, due{plant: p, state: st})
		}
	}
	if len(duePlants) == 0 {
		return nil
	}

	var members []models.Member
	err = retry.DoContext(ctx, sweepRetry, func() error {
		var listErr error
		members, listErr = s.members.ListMembers(ctx, householdID)
		return listErr
	})
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}

	day := s.dayKey(at)
	for _, d := range duePlants {
		for _, m := range members {
			job := models.DispatchJob{
				HouseholdID: householdID,
				PlantID:     d.plant.ID,
				PlantName:   d.plant.Name,
				Location:    d.plant.LocationName,
				UserID:      m.UserID,
				Status:      string(d.state.Status),
				DaysUntil:   d.state.DaysUntil,
				SnapshotAt:  at,
			}
			s.dispatch(ctx, job, day, res)
		}
	}
	return nil
}

func (s *Sweep) dispatch(ctx context.Context, job models.DispatchJob, day string, res *SweepResult) {
	key := fmt.Sprintf("%s:%s:%s", job.PlantID, job.UserID, day)
	claimed, err := s.guard.Claim(ctx, key, dispatchClaimTTL)
	if err != nil {
		res.Failed++
		s.metrics.RecordDispatch("guard_error")
		s.logger.Error("failed to claim dispatch", "key", key, "error", err)
		return
	}
	if !claimed {
		res.Duplicates++
		s.metrics.RecordDispatch("duplicate")
		return
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		res.Failed++
		s.metrics.RecordDispatch("failed")
		s.logger.Error("failed to dispatch reminder", "plant_id", job.PlantID, "user_id", job.UserID, "error", err)
		return
	}
	res.Dispatched++
	s.metrics.RecordDispatch("dispatched")
}

func (s *Sweep) dayKey(t time.Time) string {
	loc := s.classifier.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}
