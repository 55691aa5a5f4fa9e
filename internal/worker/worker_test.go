package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/rabbitmq"
	"go.uber.org/goleak"

	"plantcare/internal/catalog"
	"plantcare/internal/models"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	sweepNow   = time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	quietLog   = slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier = urgency.NewClassifier(urgency.DefaultSoonThresholdDays, time.UTC)
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []models.DispatchJob
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job models.DispatchJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

func daysAgo(n int) *time.Time {
	t := sweepNow.AddDate(0, 0, -n)
	return &t
}

func seed() *storage.MemoryStorage {
	mem := storage.NewMemoryStorage()
	mem.PutPlant(models.Plant{ID: "overdue", HouseholdID: "h1", Name: "Fern", LocationName: "Hall", LastCareDate: daysAgo(9), WateringFrequencyDays: 7})
	mem.PutPlant(models.Plant{ID: "today", HouseholdID: "h1", Name: "Ivy", LastCareDate: daysAgo(7), WateringFrequencyDays: 7})
	mem.PutPlant(models.Plant{ID: "tomorrow", HouseholdID: "h1", Name: "Palm", LastCareDate: daysAgo(6), WateringFrequencyDays: 7})
	snooze := sweepNow.Add(72 * time.Hour)
	mem.PutPlant(models.Plant{ID: "snoozed", HouseholdID: "h1", Name: "Cactus", LastCareDate: daysAgo(30), WateringFrequencyDays: 7, SnoozedUntil: &snooze})
	mem.PutMember(models.Member{HouseholdID: "h1", UserID: "u1"})
	mem.PutMember(models.Member{HouseholdID: "h1", UserID: "u2"})
	return mem
}

func newTestSweep(mem *storage.MemoryStorage, d Dispatcher) *Sweep {
	repo := catalog.NewRepository(mem, time.Minute, 0)
	s := NewSweep(repo, mem, storage.NewMemoryDispatchGuard(0), d, classifier, time.Hour, nil, quietLog)
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestSweep_DispatchesDuePlantsPerMember(t *testing.T) {
	mem := seed()
	d := &recordingDispatcher{}
	s := newTestSweep(mem, d)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Households)
	assert.Equal(t, 4, res.Dispatched)
	assert.Equal(t, 0, res.Failed)

	seen := map[string]int{}
	for _, j := range d.jobs {
		seen[j.PlantID]++
		assert.Equal(t, "h1", j.HouseholdID)
	}
	assert.Equal(t, map[string]int{"overdue": 2, "today": 2}, seen)
}

func TestSweep_AtMostOncePerDay(t *testing.T) {
	mem := seed()
	d := &recordingDispatcher{}
	s := newTestSweep(mem, d)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Dispatched)
	assert.Equal(t, 4, res.Duplicates)
	assert.Equal(t, 4, d.count())
}

func TestSweep_DispatchFailureIsCounted(t *testing.T) {
	mem := seed()
	d := &recordingDispatcher{err: errors.New("broker down")}
	s := newTestSweep(mem, d)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, 0, res.Dispatched)
}

func TestSweep_StartStop(t *testing.T) {
	mem := seed()
	d := &recordingDispatcher{}
	s := newTestSweep(mem, d)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return d.count() == 4 }, time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestSweep_StopWithoutStart(t *testing.T) {
	d := &recordingDispatcher{}
	s := newTestSweep(seed(), d)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a sweep that was never started")
	}

	s.Start(context.Background())
	s.Stop()
	assert.Equal(t, 0, d.count())
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []models.Plant
	state []urgency.State
	users []string
	err   error
}

func (f *fakeNotifier) SendForPlant(ctx context.Context, userID string, plant models.Plant, st urgency.State) ([]models.NotificationLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, plant)
	f.state = append(f.state, st)
	f.users = append(f.users, userID)
	return nil, f.err
}

func TestDirectDispatcher(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDirectDispatcher(n)
	job := models.DispatchJob{HouseholdID: "h1", PlantID: "p1", PlantName: "Fern", Location: "Hall", UserID: "u1", Status: "overdue", DaysUntil: -2}

	require.NoError(t, d.Dispatch(context.Background(), job))
	require.Len(t, n.calls, 1)
	assert.Equal(t, "Fern", n.calls[0].Name)
	assert.Equal(t, "Hall", n.calls[0].LocationName)
	assert.Equal(t, urgency.StatusOverdue, n.state[0].Status)
	assert.Equal(t, 2, n.state[0].DaysOverdue())
	assert.Equal(t, "u1", n.users[0])
}

type fakeConsumer struct {
	handler rabbitmq.MessageHandler
}

func (c *fakeConsumer) StartConsumer(ctx context.Context, handler rabbitmq.MessageHandler) error {
	c.handler = handler
	return nil
}

func body(t *testing.T, job models.DispatchJob) amqp091.Delivery {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return amqp091.Delivery{Body: b}
}

func TestProcessor_HandleMessage(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	c := &fakeConsumer{}
	p := NewProcessor(c, n, quietLog)
	p.now = func() time.Time { return sweepNow }
	require.NoError(t, p.Start(ctx))
	require.NotNil(t, c.handler)

	job := models.DispatchJob{PlantID: "p1", PlantName: "Fern", UserID: "u1", Status: "due_soon", SnapshotAt: sweepNow.Add(-time.Hour)}

	t.Run("delivers fresh job", func(t *testing.T) {
		require.NoError(t, p.handleMessage(ctx, body(t, job)))
		assert.Len(t, n.calls, 1)
	})

	t.Run("acks even when delivery fails", func(t *testing.T) {
		n.err = errors.New("smtp down")
		defer func() { n.err = nil }()
		require.NoError(t, p.handleMessage(ctx, body(t, job)))
		assert.Len(t, n.calls, 2)
	})

	t.Run("drops stale job", func(t *testing.T) {
		stale := job
		stale.SnapshotAt = sweepNow.Add(-48 * time.Hour)
		require.NoError(t, p.handleMessage(ctx, body(t, stale)))
		assert.Len(t, n.calls, 2)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		require.Error(t, p.handleMessage(ctx, amqp091.Delivery{Body: []byte("{")}))
		assert.Len(t, n.calls, 2)
	})
}
