package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"plantcare/internal/models"
)

type MemoryStorage struct {
	mu         sync.RWMutex
	plants     map[string]*models.Plant
	activities []models.CareActivity
	settings   map[string]models.NotificationSettings
	members    map[string][]models.Member
	log        []models.NotificationLogEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		plants:   make(map[string]*models.Plant),
		settings: make(map[string]models.NotificationSettings),
		members:  make(map[string][]models.Member),
	}
}

func (s *MemoryStorage) PutPlant(p models.Plant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plants[p.ID] = &p
}

func (s *MemoryStorage) DeletePlant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.plants, id)
}

func (s *MemoryStorage) AddActivity(a models.CareActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activities = append(s.activities, a)
}

func (s *MemoryStorage) PutSettings(ns models.NotificationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[ns.UserID] = ns
}

func (s *MemoryStorage) PutMember(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members[m.HouseholdID] = append(s.members[m.HouseholdID], m)
}

func (s *MemoryStorage) List(ctx context.Context, householdID string) ([]models.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plants := make([]models.Plant, 0)
	for _, p := range s.plants {
		if p.HouseholdID == householdID {
			plants = append(plants, *p)
		}
	}
	sort.Slice(plants, func(i, j int) bool { return plants[i].ID < plants[j].ID })
	return plants, nil
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*models.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.plants[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStorage) SetSnooze(ctx context.Context, id string, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.plants[id]
	if !exists {
		return ErrNotFound
	}
	if until == nil {
		p.SnoozedUntil = nil
	} else {
		u := *until
		p.SnoozedUntil = &u
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) Households(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, p := range s.plants {
		if !seen[p.HouseholdID] {
			seen[p.HouseholdID] = true
			ids = append(ids, p.HouseholdID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStorage) ListForHousehold(ctx context.Context, householdID string, since *time.Time) ([]models.CareActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CareActivity, 0)
	for _, a := range s.activities {
		if a.HouseholdID != householdID {
			continue
		}
		if since != nil && a.PerformedAt.Before(*since) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryStorage) GetSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.settings[userID]
	if !ok {
		return models.NotificationSettings{UserID: userID}, nil
	}
	return ns, nil
}

func (s *MemoryStorage) Append(ctx context.Context, entry *models.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, *entry)
	return nil
}

func (s *MemoryStorage) ListRecent(ctx context.Context, limit int) ([]models.NotificationLogEntry, error) {
	return s.ListRecentForUser(ctx, "", limit)
}

func (s *MemoryStorage) ListRecentForUser(ctx context.Context, userID string, limit int) ([]models.NotificationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	out := make([]models.NotificationLogEntry, 0, limit)
	for i := len(s.log) - 1; i >= 0 && len(out) < limit; i-- {
		if userID != "" && s.log[i].UserID != userID {
			continue
		}
		out = append(out, s.log[i])
	}
	return out, nil
}

func (s *MemoryStorage) ListMembers(ctx context.Context, householdID string) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]models.Member, len(s.members[householdID]))
	copy(members, s.members[householdID])
	return members, nil
}

func (s *MemoryStorage) IsMember(ctx context.Context, householdID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members[householdID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// MemoryAlertStore keeps pending alerts in process. Scheduling an id that is
// already pending replaces it. Alerts that fired more than alertKeepAfterFire
// ago are dropped on ListPending.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]models.Alert
	now    func() time.Time
}

func NewMemoryAlertStore(now func() time.Time) *MemoryAlertStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryAlertStore{alerts: make(map[string]models.Alert), now: now}
}

func (s *MemoryAlertStore) Schedule(ctx context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[alert.ID] = alert
	return nil
}

func (s *MemoryAlertStore) Cancel(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.alerts, id)
	}
	return nil
}

func (s *MemoryAlertStore) ListPending(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-alertKeepAfterFire)
	ids := make([]string, 0, len(s.alerts))
	for id, a := range s.alerts {
		if !a.Trigger.At.After(cutoff) {
			delete(s.alerts, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryAlertStore) Alert(id string) (models.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	return a, ok
}

// MemoryDispatchGuard remembers claimed keys until they expire.
type MemoryDispatchGuard struct {
	claims *cache.Cache
}

func NewMemoryDispatchGuard(cleanupInterval time.Duration) *MemoryDispatchGuard {
	return &MemoryDispatchGuard{claims: cache.New(cache.NoExpiration, cleanupInterval)}
}

// Claim returns true the first time key is seen within ttl.
func (g *MemoryDispatchGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := g.claims.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}
