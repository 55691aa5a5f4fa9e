// Package catalog keeps per-household plant snapshots. Nothing updates a
// snapshot behind the caller's back: it changes only on Refresh or expiry.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"plantcare/internal/models"
	"plantcare/internal/storage"
)

type Snapshot struct {
	HouseholdID string
	Plants      []models.Plant
	TakenAt     time.Time
	// seq orders reads of the plant store. A higher seq started reading later.
	seq uint64
}

type Repository struct {
	plants    storage.PlantStore
	snapshots *cache.Cache
	now       func() time.Time

	// mu guards the compare-and-replace in Refresh.
	mu      sync.Mutex
	readSeq atomic.Uint64
}

// NewRepository caches snapshots for ttl. A zero cleanup interval disables the
// background janitor.
func NewRepository(plants storage.PlantStore, ttl, cleanupInterval time.Duration) *Repository {
	return &Repository{
		plants:    plants,
		snapshots: cache.New(ttl, cleanupInterval),
		now:       time.Now,
	}
}

// Refresh reloads the household from the plant store and replaces its snapshot.
// A slow read never overwrites a snapshot whose read started after it; the
// newer snapshot is returned instead.
func (r *Repository) Refresh(ctx context.Context, householdID string) (*Snapshot, error) {
	seq := r.readSeq.Add(1)
	plants, err := r.plants.List(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh household %s: %w", householdID, err)
	}

	snap := &Snapshot{
		HouseholdID: householdID,
		Plants:      plants,
		TakenAt:     r.now(),
		seq:         seq,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.snapshots.Get(householdID); ok {
		if cur := v.(*Snapshot); cur.seq > seq {
			return cur, nil
		}
	}
	r.snapshots.SetDefault(householdID, snap)
	return snap, nil
}

// Snapshot returns the cached snapshot, loading it on a miss.
func (r *Repository) Snapshot(ctx context.Context, householdID string) (*Snapshot, error) {
	if v, ok := r.snapshots.Get(householdID); ok {
		return v.(*Snapshot), nil
	}
	return r.Refresh(ctx, householdID)
}

// List returns a copy of the snapshot's plants so callers cannot mutate it.
func (r *Repository) List(ctx context.Context, householdID string) ([]models.Plant, error) {
	snap, err := r.Snapshot(ctx, householdID)
	if err != nil {
		return nil, err
	}
	plants := make([]models.Plant, len(snap.Plants))
	copy(plants, snap.Plants)
	return plants, nil
}

func (r *Repository) Invalidate(householdID string) {
	r.snapshots.Delete(householdID)
}

func (r *Repository) Households(ctx context.Context) ([]string, error) {
	return r.plants.Households(ctx)
}
