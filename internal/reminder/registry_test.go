package reminder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantcare/internal/catalog"
	"plantcare/internal/models"
	"plantcare/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStorage, map[string]*storage.MemoryAlertStore) {
	t.Helper()

	mem := storage.NewMemoryStorage()
	seedPlants(mem)
	mem.PutPlant(models.Plant{ID: "other", HouseholdID: "h2", LastCareDate: ago(1), WateringFrequencyDays: 2})

	stores := map[string]*storage.MemoryAlertStore{}
	factory := func(householdID string) AlertScheduler {
		st := storage.NewMemoryAlertStore(func() time.Time { return testNow })
		stores[householdID] = st
		return st
	}

	repo := catalog.NewRepository(mem, time.Hour, 0)
	r := NewRegistry(repo, mem, factory, testConfig(), nil, discard())
	r.now = func() time.Time { return testNow }
	return r, mem, stores
}

func TestRegistry_OneSchedulerPerHousehold(t *testing.T) {
	r, _, stores := newTestRegistry(t)

	assert.Same(t, r.Scheduler("h1"), r.Scheduler("h1"))
	assert.NotSame(t, r.Scheduler("h1"), r.Scheduler("h2"))
	assert.Len(t, stores, 2)
}

func TestRegistry_RebuildIsHouseholdScoped(t *testing.T) {
	r, _, stores := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Rebuild(ctx, "h2")
	require.NoError(t, err)

	ids, err := stores["h2"].ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"plant-other"}, ids)
}

func TestRegistry_SnoozeRemovesAlertAndClearRestoresIt(t *testing.T) {
	r, mem, stores := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Rebuild(ctx, "h1")
	require.NoError(t, err)
	_, ok := stores["h1"].Alert("plant-late")
	require.True(t, ok)

	plant, res, err := r.Snooze(ctx, "late", testNow.Add(72*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, plant.SnoozedUntil)
	assert.Equal(t, 2, res.Snoozed)
	_, ok = stores["h1"].Alert("plant-late")
	assert.False(t, ok)

	stored, err := mem.Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, *ago(10), *stored.LastCareDate)

	_, _, err = r.ClearSnooze(ctx, "late")
	require.NoError(t, err)
	a, ok := stores["h1"].Alert("plant-late")
	require.True(t, ok)
	assert.True(t, a.Urgent)
}

func TestRegistry_SnoozeValidation(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, _, err := r.Snooze(ctx, "late", testNow.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrSnoozeInPast)

	_, _, err = r.Snooze(ctx, "missing", testNow.Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// heldRead lets one armed List read the store, then holds the result until
// released.
type heldRead struct {
	*storage.MemoryStorage
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (h *heldRead) List(ctx context.Context, householdID string) ([]models.Plant, error) {
	plants, err := h.MemoryStorage.List(ctx, householdID)
	if h.armed.CompareAndSwap(true, false) {
		close(h.read)
		<-h.release
	}
	return plants, err
}

func TestRegistry_SnoozeDuringSlowRebuildWins(t *testing.T) {
	mem := storage.NewMemoryStorage()
	seedPlants(mem)
	store := &heldRead{MemoryStorage: mem, read: make(chan struct{}), release: make(chan struct{})}
	alerts := storage.NewMemoryAlertStore(func() time.Time { return testNow })

	repo := catalog.NewRepository(store, time.Hour, 0)
	r := NewRegistry(repo, mem, func(string) AlertScheduler { return alerts }, testConfig(), nil, discard())
	r.now = func() time.Time { return testNow }

	ctx := context.Background()
	_, err := r.Rebuild(ctx, "h1")
	require.NoError(t, err)
	_, ok := alerts.Alert("plant-late")
	require.True(t, ok)

	store.armed.Store(true)
	rebuilt := make(chan error, 1)
	go func() {
		_, err := r.Rebuild(ctx, "h1")
		rebuilt <- err
	}()
	<-store.read

	snoozed := make(chan error, 1)
	go func() {
		_, _, err := r.Snooze(ctx, "late", testNow.Add(72*time.Hour))
		snoozed <- err
	}()
	require.Eventually(t, func() bool {
		p, err := mem.Get(ctx, "late")
		return err == nil && p.SnoozedUntil != nil
	}, time.Second, time.Millisecond)

	close(store.release)
	require.NoError(t, <-rebuilt)
	require.NoError(t, <-snoozed)

	_, ok = alerts.Alert("plant-late")
	assert.False(t, ok)

	plants, err := repo.List(ctx, "h1")
	require.NoError(t, err)
	for _, p := range plants {
		if p.ID == "late" {
			assert.NotNil(t, p.SnoozedUntil)
		}
	}
}
